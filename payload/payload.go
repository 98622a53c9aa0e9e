// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload defines what controllers put inside adapter envelopes.
package payload

import (
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"

	"github.com/luxfi/multibridge"
)

// AddressedCall binds an opaque payload to the contract that emitted it on
// the origin chain. Adapters carry it as their envelope body so the
// destination learns the originating controller.
type AddressedCall struct {
	SourceAddress common.Address
	Payload       []byte
}

// NewAddressedCall creates a new addressed call payload
func NewAddressedCall(source common.Address, payload []byte) (*AddressedCall, error) {
	ac := &AddressedCall{
		SourceAddress: source,
		Payload:       payload,
	}
	if err := ac.Verify(); err != nil {
		return nil, err
	}
	return ac, nil
}

// ParseAddressedCall decodes and verifies an addressed call.
func ParseAddressedCall(b []byte) (*AddressedCall, error) {
	ac := &AddressedCall{}
	if err := rlp.DecodeBytes(b, ac); err != nil {
		return nil, fmt.Errorf("%w: %v", multibridge.ErrInvalidPayload, err)
	}
	if err := ac.Verify(); err != nil {
		return nil, err
	}
	return ac, nil
}

// Verify verifies the addressed call payload
func (a *AddressedCall) Verify() error {
	if a.SourceAddress == (common.Address{}) {
		return fmt.Errorf("%w: empty source address", multibridge.ErrInvalidPayload)
	}
	if len(a.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", multibridge.ErrInvalidPayload)
	}
	return nil
}

// Bytes returns the byte representation of the payload
func (a *AddressedCall) Bytes() []byte {
	bytes, _ := rlp.EncodeToBytes(a)
	return bytes
}

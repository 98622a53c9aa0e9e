// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/multibridge"
)

// TransferVersion is the only accepted transfer payload layout.
const TransferVersion uint8 = 1

// transferLen is version, id, sender, recipient, amount, unwrap, threshold, nonce.
const transferLen = 1 + 32 + 20 + 20 + 32 + 1 + 8 + 8

// TransferPayload is what an asset controller relays for each transfer.
type TransferPayload struct {
	Version   uint8
	ID        common.Hash
	Sender    common.Address
	Recipient common.Address
	Amount    *uint256.Int
	Unwrap    bool
	// Threshold is chosen by the source controller and trusted as-is by the
	// destination.
	Threshold uint64
	Nonce     uint64
}

// NewTransferPayload builds a payload and derives its id.
func NewTransferPayload(
	sender, recipient common.Address,
	amount *uint256.Int,
	unwrap bool,
	threshold, nonce uint64,
	originChainID, destChainID uint64,
) (*TransferPayload, error) {
	p := &TransferPayload{
		Version:   TransferVersion,
		ID:        multibridge.TransferID(sender, recipient, amount, nonce, originChainID, destChainID),
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount.Clone(),
		Unwrap:    unwrap,
		Threshold: threshold,
		Nonce:     nonce,
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// Verify performs basic validation
func (p *TransferPayload) Verify() error {
	switch {
	case p.Version != TransferVersion:
		return fmt.Errorf("%w: unsupported transfer version %d", multibridge.ErrInvalidPayload, p.Version)
	case p.Recipient == (common.Address{}):
		return fmt.Errorf("%w: recipient", multibridge.ErrZeroAddress)
	case p.Amount == nil || p.Amount.IsZero():
		return multibridge.ErrZeroAmount
	case p.Threshold == 0:
		return fmt.Errorf("%w: zero threshold", multibridge.ErrInvalidThreshold)
	}
	return nil
}

// MatchesRoute reports whether the carried id is the one derived from the
// payload fields for the given route.
func (p *TransferPayload) MatchesRoute(originChainID, destChainID uint64) bool {
	return p.ID == multibridge.TransferID(p.Sender, p.Recipient, p.Amount, p.Nonce, originChainID, destChainID)
}

// Bytes serializes the transfer payload
func (p *TransferPayload) Bytes() []byte {
	buf := make([]byte, transferLen)
	offset := 0

	buf[offset] = p.Version
	offset++

	copy(buf[offset:], p.ID[:])
	offset += 32

	copy(buf[offset:], p.Sender[:])
	offset += 20
	copy(buf[offset:], p.Recipient[:])
	offset += 20

	amount := multibridge.OrZero(p.Amount).Bytes32()
	copy(buf[offset:], amount[:])
	offset += 32

	if p.Unwrap {
		buf[offset] = 1
	}
	offset++

	binary.BigEndian.PutUint64(buf[offset:], p.Threshold)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], p.Nonce)

	return buf
}

// ParseTransferPayload deserializes and verifies a transfer payload
func ParseTransferPayload(data []byte) (*TransferPayload, error) {
	if len(data) != transferLen {
		return nil, fmt.Errorf("%w: transfer payload is %d bytes, want %d", multibridge.ErrInvalidPayload, len(data), transferLen)
	}

	offset := 0
	p := &TransferPayload{}

	p.Version = data[offset]
	offset++

	copy(p.ID[:], data[offset:offset+32])
	offset += 32

	copy(p.Sender[:], data[offset:offset+20])
	offset += 20
	copy(p.Recipient[:], data[offset:offset+20])
	offset += 20

	p.Amount = new(uint256.Int).SetBytes32(data[offset : offset+32])
	offset += 32

	switch data[offset] {
	case 0:
	case 1:
		p.Unwrap = true
	default:
		return nil, fmt.Errorf("%w: unwrap flag %d", multibridge.ErrInvalidPayload, data[offset])
	}
	offset++

	p.Threshold = binary.BigEndian.Uint64(data[offset:])
	offset += 8
	p.Nonce = binary.BigEndian.Uint64(data[offset:])

	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

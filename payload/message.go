// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/multibridge"
)

// MessagePayload is what the message controller relays: an ordered batch of
// calls to run on the destination chain.
type MessagePayload struct {
	ID        common.Hash
	Sender    common.Address
	Targets   []common.Address
	Calldatas [][]byte
	Threshold uint64
	Nonce     uint64
}

// NewMessagePayload builds a payload and derives its id.
func NewMessagePayload(
	sender common.Address,
	targets []common.Address,
	calldatas [][]byte,
	threshold, nonce uint64,
	originChainID, destChainID uint64,
) (*MessagePayload, error) {
	p := &MessagePayload{
		Sender:    sender,
		Targets:   targets,
		Calldatas: calldatas,
		Threshold: threshold,
		Nonce:     nonce,
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	p.ID = p.derive(originChainID, destChainID)
	return p, nil
}

func (p *MessagePayload) derive(originChainID, destChainID uint64) common.Hash {
	return multibridge.MessageID(p.Sender, multibridge.PayloadHash(p.Targets, p.Calldatas), p.Nonce, originChainID, destChainID)
}

// MatchesRoute reports whether the carried id is the one derived from the
// payload fields for the given route.
func (p *MessagePayload) MatchesRoute(originChainID, destChainID uint64) bool {
	return p.ID == p.derive(originChainID, destChainID)
}

// Verify performs basic validation
func (p *MessagePayload) Verify() error {
	switch {
	case len(p.Targets) == 0:
		return fmt.Errorf("%w: no targets", multibridge.ErrInvalidParams)
	case len(p.Targets) != len(p.Calldatas):
		return fmt.Errorf("%w: %d targets, %d calldatas", multibridge.ErrArrayLengthMismatch, len(p.Targets), len(p.Calldatas))
	case p.Threshold == 0:
		return fmt.Errorf("%w: zero threshold", multibridge.ErrInvalidThreshold)
	}
	return nil
}

// Bytes serializes the message payload
func (p *MessagePayload) Bytes() ([]byte, error) {
	return multibridge.Codec.Marshal(multibridge.CodecVersion, p)
}

// ParseMessagePayload deserializes and verifies a message payload
func ParseMessagePayload(b []byte) (*MessagePayload, error) {
	p := &MessagePayload{}
	if _, err := multibridge.Codec.Unmarshal(b, p); err != nil {
		return nil, err
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

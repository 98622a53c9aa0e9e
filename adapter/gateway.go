// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package adapter models bridge transports as interchangeable gateways that
// carry opaque payloads between controllers on different chains.
package adapter

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// Gateway is the outbound side of a transport as seen by a controller.
type Gateway interface {
	Address() common.Address
	Kind() Kind
	// Controller is the local controller every relayed payload names as
	// its origin.
	Controller() common.Address
	// CanRelay reports whether a payload paying fee could currently be
	// relayed to destChainID, without side effects.
	CanRelay(destChainID uint64, fee *uint256.Int) error
	// Relay hands a payload to the transport and returns the transport's
	// own message id.
	Relay(ctx context.Context, req *RelayRequest) (ids.ID, error)
}

// Receiver is the inbound side: the controller an adapter hands verified
// payloads to. adapter is the local adapter making the call.
type Receiver interface {
	Deliver(ctx context.Context, adapter common.Address, originChainID uint64, originSender common.Address, payload []byte) error
}

// RelayRequest is one outbound payload.
type RelayRequest struct {
	DestChainID uint64
	// Target is the controller on the destination chain.
	Target  common.Address
	Payload []byte
	Options []byte
	Fee     *uint256.Int
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// Endpoint is the Gateway handed to a controller by Adapter.Bind. Every
// payload it relays carries that controller as the origin sender.
type Endpoint struct {
	adapter    *Adapter
	controller common.Address
}

func (e *Endpoint) Address() common.Address { return e.adapter.address }

func (e *Endpoint) Kind() Kind { return e.adapter.kind }

func (e *Endpoint) Controller() common.Address { return e.controller }

// CanRelay implements Gateway
func (e *Endpoint) CanRelay(destChainID uint64, fee *uint256.Int) error {
	return e.adapter.CanRelay(destChainID, fee)
}

// Relay implements Gateway
func (e *Endpoint) Relay(ctx context.Context, req *RelayRequest) (ids.ID, error) {
	return e.adapter.relay(ctx, e.controller, req)
}

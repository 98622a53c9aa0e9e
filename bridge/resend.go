// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/multibridge"
)

// ResendRequest re-relays a multi-bridge transfer or message through
// additional adapters.
type ResendRequest struct {
	ID       common.Hash
	Adapters []common.Address
	Fees     []*uint256.Int
	Options  [][]byte
	Value    *uint256.Int
}

// Resend relays the stored payload of a multi-bridge send through more
// adapters. It never changes the threshold; the destination counts the new
// legs like any other delivery and rejects an adapter that already
// delivered. Anyone may call it.
func (c *Core) Resend(ctx context.Context, req *ResendRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	events, err := c.resend(context.WithoutCancel(ctx), req.ID, req.Adapters, req.Fees, req.Options, req.Value, true)
	c.mu.Unlock()

	c.publish(events)
	return err
}

// ResendSingle relays a single-bridge send again through one adapter,
// usually a replacement for the one that failed to deliver. Anyone may
// call it.
func (c *Core) ResendSingle(
	ctx context.Context,
	id common.Hash,
	adapterAddr common.Address,
	fee *uint256.Int,
	options []byte,
	value *uint256.Int,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	events, err := c.resend(
		context.WithoutCancel(ctx),
		id,
		[]common.Address{adapterAddr},
		[]*uint256.Int{fee},
		[][]byte{options},
		value,
		false,
	)
	c.mu.Unlock()

	c.publish(events)
	return err
}

func (c *Core) resend(
	ctx context.Context,
	id common.Hash,
	addrs []common.Address,
	fees []*uint256.Int,
	options [][]byte,
	value *uint256.Int,
	multi bool,
) ([]Event, error) {
	rec, ok, err := c.store.Outbound(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load outbound record %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", multibridge.ErrUnknownTransfer, id)
	}
	switch {
	case multi && !rec.MultiBridge:
		return nil, fmt.Errorf("%w: %s is a single-bridge send", multibridge.ErrInvalidParams, id)
	case !multi && rec.MultiBridge:
		return nil, fmt.Errorf("%w: %s is a multi-bridge send", multibridge.ErrInvalidParams, id)
	}

	target, err := c.validateRoute(rec.DestChainID)
	if err != nil {
		return nil, err
	}
	r, err := c.validateAdapters(rec.DestChainID, target, addrs, fees, options, value, multi)
	if err != nil {
		return nil, err
	}

	legs, relayErr := c.relayAll(ctx, r, rec.Payload)
	if len(legs) == 0 {
		return nil, relayErr
	}

	now := c.now()
	events := make([]Event, 0, len(legs))
	for _, leg := range legs {
		if !rec.UsedAdapter(leg.adapter) {
			rec.Adapters = append(rec.Adapters, leg.adapter)
		}
		events = append(events, Event{
			Type:        TransferResent,
			ID:          id,
			ChainID:     rec.DestChainID,
			Adapter:     leg.adapter,
			TransportID: leg.transportID,
			At:          now,
		})
	}
	rec.LastRelayedAt = now
	c.metrics.resendCount.WithLabelValues(c.name, modeLabel(multi)).Add(float64(len(legs)))

	if err := c.store.PutOutbound(rec); err != nil {
		return events, fmt.Errorf("failed to store outbound record %s: %w", id, err)
	}
	c.log.Info("resent",
		log.Stringer("id", id),
		log.Uint64("destChainID", rec.DestChainID),
		log.Uint64("legs", uint64(len(legs))),
	)
	return events, relayErr
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/multibridge"
)

var ErrUnknownPacket = errors.New("unknown packet")

// Packet is an envelope in transit together with its routing metadata.
type Packet struct {
	ID            ids.ID
	OriginChainID uint64
	DestChainID   uint64
	Envelope      *Envelope
}

type endpoint struct {
	chainID uint64
	address common.Address
}

// Network is an in-memory message bus connecting adapters across chains.
// Packets wait in a queue until a relayer (or a test) delivers them, in any
// order.
type Network struct {
	mu        sync.Mutex
	endpoints map[endpoint]*Adapter
	pending   []*Packet
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[endpoint]*Adapter),
	}
}

// Register attaches an adapter to the network.
func (n *Network) Register(a *Adapter) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := endpoint{chainID: a.chainID, address: a.address}
	if _, ok := n.endpoints[key]; ok {
		return fmt.Errorf("%w: adapter %s already registered on chain %d", multibridge.ErrInvalidParams, a.address, a.chainID)
	}
	n.endpoints[key] = a
	return nil
}

// Publish queues a packet for delivery.
func (n *Network) Publish(p *Packet) error {
	if p == nil || p.Envelope == nil {
		return fmt.Errorf("%w: empty packet", multibridge.ErrInvalidPayload)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.pending = append(n.pending, p)
	return nil
}

// Pending returns the queued packets in publish order.
func (n *Network) Pending() []*Packet {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.pending)
}

// Deliver hands the queued packet id to its destination adapter. The packet
// leaves the queue when it is accepted or rejected for good; transient
// failures keep it queued.
func (n *Network) Deliver(ctx context.Context, id ids.ID) error {
	n.mu.Lock()
	idx := n.indexOf(id)
	if idx < 0 {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPacket, id)
	}
	p := n.pending[idx]
	n.mu.Unlock()

	err := n.Redeliver(ctx, p)
	if err == nil || Terminal(err) {
		n.mu.Lock()
		if idx := n.indexOf(id); idx >= 0 {
			n.pending = slices.Delete(n.pending, idx, idx+1)
		}
		n.mu.Unlock()
	}
	return err
}

// Redeliver hands p to its destination adapter without touching the queue,
// as a relayer retry on the same transport would.
func (n *Network) Redeliver(ctx context.Context, p *Packet) error {
	n.mu.Lock()
	dst, ok := n.endpoints[endpoint{chainID: p.DestChainID, address: p.Envelope.Recipient}]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no adapter %s on chain %d", multibridge.ErrChainNotSupported, p.Envelope.Recipient, p.DestChainID)
	}
	return dst.Receive(ctx, p.Envelope)
}

// DeliverAll attempts every queued packet once, in publish order.
func (n *Network) DeliverAll(ctx context.Context) (int, error) {
	var (
		delivered int
		errs      []error
	)
	for _, p := range n.Pending() {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := n.Deliver(ctx, p.ID); err != nil {
			errs = append(errs, fmt.Errorf("packet %s: %w", p.ID, err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Drop removes a packet without delivering it, simulating a lost message.
func (n *Network) Drop(id ids.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx := n.indexOf(id)
	if idx < 0 {
		return false
	}
	n.pending = slices.Delete(n.pending, idx, idx+1)
	return true
}

func (n *Network) indexOf(id ids.ID) int {
	return slices.IndexFunc(n.pending, func(p *Packet) bool { return p.ID == id })
}

// Terminal reports whether a delivery error can never succeed on retry.
func Terminal(err error) bool {
	switch multibridge.KindOf(err) {
	case multibridge.KindReplay, multibridge.KindAuthorization, multibridge.KindConfig:
		return true
	default:
		return false
	}
}

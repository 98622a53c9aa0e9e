// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"slices"

	"github.com/luxfi/geth/common"
)

// Status is the lifecycle position of an inbound record.
type Status uint8

const (
	StatusUnseen Status = iota
	StatusPending
	StatusExecutable
	StatusExecuted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusUnseen:
		return "unseen"
	case StatusPending:
		return "pending"
	case StatusExecutable:
		return "executable"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Inbound is the destination-side record for one transfer or message id.
type Inbound struct {
	ID            common.Hash
	OriginChainID uint64
	// Threshold is fixed by the first delivery.
	Threshold     uint64
	ReceivedSoFar uint64
	DeliveredBy   []common.Address
	Executed      bool
	Cancelled     bool
	CreatedAt     uint64
	ExecutableAt  uint64
	ExpiresAt     uint64
	Payload       []byte
}

// HasDelivered reports whether adapter already counted toward this record.
func (r *Inbound) HasDelivered(adapter common.Address) bool {
	return slices.Contains(r.DeliveredBy, adapter)
}

// ThresholdMet reports whether enough distinct adapters have delivered.
func (r *Inbound) ThresholdMet() bool {
	return r.Threshold > 0 && r.ReceivedSoFar >= r.Threshold
}

// Status derives the lifecycle position from the record's flags.
func (r *Inbound) Status() Status {
	switch {
	case r == nil:
		return StatusUnseen
	case r.Executed:
		return StatusExecuted
	case r.Cancelled:
		return StatusCancelled
	case r.ThresholdMet():
		return StatusExecutable
	default:
		return StatusPending
	}
}

// Clone returns a deep copy.
func (r *Inbound) Clone() *Inbound {
	c := *r
	c.DeliveredBy = slices.Clone(r.DeliveredBy)
	c.Payload = slices.Clone(r.Payload)
	return &c
}

// Outbound is the source-side record kept so a transfer can be resent.
type Outbound struct {
	ID          common.Hash
	DestChainID uint64
	Sender      common.Address
	Nonce       uint64
	Threshold   uint64
	MultiBridge bool
	// Adapters lists every adapter the payload was relayed through,
	// including resends.
	Adapters  []common.Address
	Payload   []byte
	CreatedAt uint64
	// LastRelayedAt is the time of the latest send or resend.
	LastRelayedAt uint64
}

// Clone returns a deep copy.
func (r *Outbound) Clone() *Outbound {
	c := *r
	c.Adapters = slices.Clone(r.Adapters)
	c.Payload = slices.Clone(r.Payload)
	return &c
}

// UsedAdapter reports whether the payload was already relayed via adapter.
func (r *Outbound) UsedAdapter(adapter common.Address) bool {
	return slices.Contains(r.Adapters, adapter)
}

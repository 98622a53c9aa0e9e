// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus counts independent adapter deliveries of one id and
// decides when its effect may be applied.
package consensus

import (
	"fmt"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/registry"
)

// Mode selects what happens when a record reaches its threshold.
type Mode uint8

const (
	// ApplyOnThreshold applies the effect in the delivery that completes
	// the threshold.
	ApplyOnThreshold Mode = iota
	// Timelocked only marks the record executable; Execute applies the
	// effect inside the [executableAt, expiresAt] window.
	Timelocked
)

func (m Mode) String() string {
	switch m {
	case ApplyOnThreshold:
		return "apply-on-threshold"
	case Timelocked:
		return "timelocked"
	default:
		return "unknown"
	}
}

// ApplyFunc performs the side effect of a record. An error aborts the
// calling operation and leaves the record untouched.
type ApplyFunc func(*registry.Inbound) error

// Delivery is one adapter's claim that id arrived from the origin chain.
type Delivery struct {
	ID            common.Hash
	Adapter       common.Address
	OriginChainID uint64
	Threshold     uint64
	Payload       []byte
}

// Outcome describes what a delivery changed.
type Outcome struct {
	Record *registry.Inbound
	// Created is set when the delivery opened the record.
	Created bool
	// Reached is set when this delivery completed the threshold.
	Reached bool
	// Applied is set when the effect ran as part of this delivery.
	Applied bool
}

// Config configures an Engine
type Config struct {
	Mode          Mode
	Store         registry.Store
	TimelockDelay time.Duration
	Expiry        time.Duration
	Now           func() uint64
	Log           log.Logger
}

// Engine is not safe for concurrent use; controllers serialize calls.
type Engine struct {
	mode     Mode
	store    registry.Store
	timelock uint64
	expiry   uint64
	now      func() uint64
	log      log.Logger
}

// New creates a new consensus engine
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: nil store", multibridge.ErrInvalidParams)
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("%w: nil logger", multibridge.ErrInvalidParams)
	}
	if cfg.Mode == Timelocked && cfg.Expiry <= 0 {
		return nil, fmt.Errorf("%w: message expiry", multibridge.ErrZeroDuration)
	}
	now := cfg.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Engine{
		mode:     cfg.Mode,
		store:    cfg.Store,
		timelock: seconds(cfg.TimelockDelay),
		expiry:   seconds(cfg.Expiry),
		now:      now,
		log:      cfg.Log,
	}, nil
}

func seconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}

// Mode returns the engine's threshold behaviour.
func (e *Engine) Mode() Mode {
	return e.mode
}

// SetTimelockDelay changes the delay applied to records that reach their
// threshold from now on.
func (e *Engine) SetTimelockDelay(d time.Duration) {
	e.timelock = seconds(d)
}

// SetExpiry changes the execution window applied from now on.
func (e *Engine) SetExpiry(d time.Duration) error {
	if seconds(d) == 0 {
		return multibridge.ErrZeroDuration
	}
	e.expiry = seconds(d)
	return nil
}

// Record returns the stored record for id.
func (e *Engine) Record(id common.Hash) (*registry.Inbound, bool, error) {
	return e.store.Inbound(id)
}

// Deliver counts d toward its record. In ApplyOnThreshold mode apply runs
// exactly once, in the delivery that completes the threshold; if it fails
// the delivery is rejected and nothing is recorded.
func (e *Engine) Deliver(d Delivery, apply ApplyFunc) (*Outcome, error) {
	rec, ok, err := e.store.Inbound(d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", d.ID, err)
	}
	out := &Outcome{}
	if !ok {
		if d.Threshold == 0 {
			return nil, fmt.Errorf("%w: zero threshold for %s", multibridge.ErrInvalidThreshold, d.ID)
		}
		rec = &registry.Inbound{
			ID:            d.ID,
			OriginChainID: d.OriginChainID,
			Threshold:     d.Threshold,
			CreatedAt:     e.now(),
			Payload:       d.Payload,
		}
		out.Created = true
	}

	if rec.Executed {
		return nil, fmt.Errorf("%w: %s", e.executedErr(), d.ID)
	}
	if rec.HasDelivered(d.Adapter) {
		return nil, fmt.Errorf("%w: adapter %s, id %s", multibridge.ErrTransferResentByAdapter, d.Adapter, d.ID)
	}
	if rec.Threshold == 0 {
		// opened by a cancel before any delivery
		rec.OriginChainID = d.OriginChainID
		rec.Threshold = d.Threshold
		rec.Payload = d.Payload
	}

	wasMet := rec.ThresholdMet()
	rec.ReceivedSoFar++
	rec.DeliveredBy = append(rec.DeliveredBy, d.Adapter)
	out.Reached = !wasMet && rec.ThresholdMet()

	if out.Reached && !rec.Cancelled {
		switch e.mode {
		case ApplyOnThreshold:
			if err := apply(rec); err != nil {
				return nil, err
			}
			rec.Executed = true
			out.Applied = true
		case Timelocked:
			now := e.now()
			rec.ExecutableAt = now + e.timelock
			rec.ExpiresAt = rec.ExecutableAt + e.expiry
		}
	}

	if err := e.store.PutInbound(rec); err != nil {
		return nil, fmt.Errorf("failed to store record %s: %w", d.ID, err)
	}
	e.log.Debug("delivery accepted",
		log.Stringer("id", d.ID),
		log.Stringer("adapter", d.Adapter),
		log.Uint64("receivedSoFar", rec.ReceivedSoFar),
		log.Uint64("threshold", rec.Threshold),
	)
	out.Record = rec
	return out, nil
}

// Execute applies a timelocked record's effect inside its window.
func (e *Engine) Execute(id common.Hash, apply ApplyFunc) (*registry.Inbound, error) {
	rec, ok, err := e.store.Inbound(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", multibridge.ErrUnknownTransfer, multibridge.ErrMsgNotExecutable, id)
	}
	if err := e.checkExecutable(rec); err != nil {
		return nil, err
	}
	if err := apply(rec); err != nil {
		return nil, err
	}
	rec.Executed = true
	if err := e.store.PutInbound(rec); err != nil {
		return nil, fmt.Errorf("failed to store record %s: %w", id, err)
	}
	return rec, nil
}

// Executable reports whether Execute would currently run for id.
func (e *Engine) Executable(id common.Hash) bool {
	rec, ok, err := e.store.Inbound(id)
	if err != nil || !ok {
		return false
	}
	return e.checkExecutable(rec) == nil
}

func (e *Engine) checkExecutable(rec *registry.Inbound) error {
	now := e.now()
	switch {
	case rec.Cancelled:
		return fmt.Errorf("%w: %w: %s", multibridge.ErrMsgCancelled, multibridge.ErrMsgNotExecutable, rec.ID)
	case rec.Executed:
		return fmt.Errorf("%w: %s", multibridge.ErrMsgNotExecutable, rec.ID)
	case !rec.ThresholdMet():
		return fmt.Errorf("%w: %d of %d for %s", multibridge.ErrThresholdNotMet, rec.ReceivedSoFar, rec.Threshold, rec.ID)
	case now < rec.ExecutableAt:
		return fmt.Errorf("%w: %s executable at %d", multibridge.ErrMsgNotExecutableYet, rec.ID, rec.ExecutableAt)
	case now > rec.ExpiresAt:
		return fmt.Errorf("%w: %s expired at %d", multibridge.ErrMsgExpired, rec.ID, rec.ExpiresAt)
	}
	return nil
}

// Cancel permanently blocks execution of id. It may be called before any
// delivery arrived; later deliveries are still recorded but never become
// executable.
func (e *Engine) Cancel(id common.Hash) (*registry.Inbound, error) {
	rec, ok, err := e.store.Inbound(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if !ok {
		rec = &registry.Inbound{ID: id, CreatedAt: e.now()}
	}
	switch {
	case rec.Executed:
		return nil, fmt.Errorf("%w: %s already executed", multibridge.ErrMsgNotExecutable, id)
	case rec.Cancelled:
		return nil, fmt.Errorf("%w: %s", multibridge.ErrMsgCancelled, id)
	}
	rec.Cancelled = true
	if err := e.store.PutInbound(rec); err != nil {
		return nil, fmt.Errorf("failed to store record %s: %w", id, err)
	}
	return rec, nil
}

func (e *Engine) executedErr() error {
	if e.mode == Timelocked {
		return multibridge.ErrMsgNotExecutable
	}
	return multibridge.ErrTransferNotExecutable
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package ratelimit tracks per-bridge mint and burn allowances that refill
// linearly over a fixed replenish duration.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/multibridge"
)

// Wildcard is the bridge key of the shared pool that multi-bridge transfers
// draw from.
var Wildcard = common.Address{}

// Direction selects the mint or burn side of a bridge's limits.
type Direction uint8

const (
	Mint Direction = iota
	Burn
)

func (d Direction) String() string {
	switch d {
	case Mint:
		return "mint"
	case Burn:
		return "burn"
	default:
		return "unknown"
	}
}

// Params is one side of a bridge's allowance.
type Params struct {
	MaxLimit      *uint256.Int
	CurrentLimit  *uint256.Int
	RatePerSecond *uint256.Int
	LastUpdated   uint64
}

func (p Params) clone() Params {
	return Params{
		MaxLimit:      multibridge.OrZero(p.MaxLimit).Clone(),
		CurrentLimit:  multibridge.OrZero(p.CurrentLimit).Clone(),
		RatePerSecond: multibridge.OrZero(p.RatePerSecond).Clone(),
		LastUpdated:   p.LastUpdated,
	}
}

// BridgeLimits holds both directions for a bridge.
type BridgeLimits struct {
	Minter Params
	Burner Params
}

func (b BridgeLimits) clone() BridgeLimits {
	return BridgeLimits{Minter: b.Minter.clone(), Burner: b.Burner.clone()}
}

// Limiter is safe for concurrent use.
type Limiter struct {
	duration uint64
	now      func() uint64

	mu     sync.Mutex
	limits map[common.Address]*BridgeLimits
}

// New returns a limiter whose allowances refill fully over replenish. now
// supplies the current unix time in seconds; nil uses the wall clock.
func New(replenish time.Duration, now func() uint64) (*Limiter, error) {
	seconds := uint64(replenish / time.Second)
	if seconds == 0 {
		return nil, multibridge.ErrZeroDuration
	}
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Limiter{
		duration: seconds,
		now:      now,
		limits:   make(map[common.Address]*BridgeLimits),
	}, nil
}

// Duration returns the replenish duration in seconds.
func (l *Limiter) Duration() uint64 {
	return l.duration
}

// SetLimits configures both directions for bridge. The current limit is
// settled at the old rate before being rebased onto the new maximum.
func (l *Limiter) SetLimits(bridge common.Address, mintLimit, burnLimit *uint256.Int) error {
	mintLimit = multibridge.OrZero(mintLimit)
	burnLimit = multibridge.OrZero(burnLimit)
	if mintLimit.Gt(multibridge.MaxLimit) || burnLimit.Gt(multibridge.MaxLimit) {
		return fmt.Errorf("%w: bridge %s", multibridge.ErrLimitTooHigh, bridge)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.entry(bridge)
	now := l.now()
	l.changeLimit(&b.Minter, mintLimit, now)
	l.changeLimit(&b.Burner, burnLimit, now)
	return nil
}

func (l *Limiter) changeLimit(p *Params, limit *uint256.Int, now uint64) {
	oldLimit := p.MaxLimit
	current := l.currentLimit(p, now)
	p.MaxLimit = limit.Clone()
	p.CurrentLimit = rebase(limit, oldLimit, current)
	p.RatePerSecond = new(uint256.Int).Div(limit, uint256.NewInt(l.duration))
	p.LastUpdated = now
}

func rebase(limit, oldLimit, current *uint256.Int) *uint256.Int {
	if oldLimit.Gt(limit) {
		diff := new(uint256.Int).Sub(oldLimit, limit)
		if current.Gt(diff) {
			return new(uint256.Int).Sub(current, diff)
		}
		return new(uint256.Int)
	}
	diff := new(uint256.Int).Sub(limit, oldLimit)
	return new(uint256.Int).Add(current, diff)
}

// CurrentLimit returns the allowance available to bridge right now.
func (l *Limiter) CurrentLimit(bridge common.Address, dir Direction) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.limits[bridge]
	if !ok {
		return new(uint256.Int)
	}
	return l.currentLimit(side(b, dir), l.now())
}

// MaxLimit returns the configured maximum for bridge.
func (l *Limiter) MaxLimit(bridge common.Address, dir Direction) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.limits[bridge]
	if !ok {
		return new(uint256.Int)
	}
	return side(b, dir).MaxLimit.Clone()
}

// Check reports whether amount fits in the current allowance without
// consuming it.
func (l *Limiter) Check(bridge common.Address, amount *uint256.Int, dir Direction) error {
	if l.CurrentLimit(bridge, dir).Lt(amount) {
		return fmt.Errorf("%w: %s %s limit for %s", multibridge.ErrNotHighEnoughLimits, amount.Dec(), dir, bridge)
	}
	return nil
}

// Consume debits amount from bridge's allowance. On failure nothing changes.
func (l *Limiter) Consume(bridge common.Address, amount *uint256.Int, dir Direction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.limits[bridge]
	if !ok {
		return fmt.Errorf("%w: no %s limit for %s", multibridge.ErrLimitExceeded, dir, bridge)
	}
	p := side(b, dir)
	current := l.currentLimit(p, now)
	if amount.Gt(current) {
		return fmt.Errorf("%w: %s > %s", multibridge.ErrLimitExceeded, amount.Dec(), current.Dec())
	}
	p.CurrentLimit = new(uint256.Int).Sub(current, amount)
	p.LastUpdated = now
	return nil
}

// Snapshot copies bridge's state so a failed operation can Restore it.
func (l *Limiter) Snapshot(bridge common.Address) (BridgeLimits, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.limits[bridge]
	if !ok {
		return BridgeLimits{}, false
	}
	return b.clone(), true
}

// Restore reinstates a snapshot taken by Snapshot.
func (l *Limiter) Restore(bridge common.Address, snapshot BridgeLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()

	restored := snapshot.clone()
	l.limits[bridge] = &restored
}

func (l *Limiter) currentLimit(p *Params, now uint64) *uint256.Int {
	maxLimit := multibridge.OrZero(p.MaxLimit)
	current := multibridge.OrZero(p.CurrentLimit)
	switch {
	case current.Eq(maxLimit):
		return maxLimit.Clone()
	case p.LastUpdated+l.duration <= now:
		return maxLimit.Clone()
	case now < p.LastUpdated:
		return current.Clone()
	default:
		elapsed := uint256.NewInt(now - p.LastUpdated)
		refill, overflow := new(uint256.Int).MulOverflow(elapsed, multibridge.OrZero(p.RatePerSecond))
		if overflow {
			return maxLimit.Clone()
		}
		calculated, overflow := new(uint256.Int).AddOverflow(current, refill)
		if overflow {
			return maxLimit.Clone()
		}
		return multibridge.MinU256(calculated, maxLimit).Clone()
	}
}

func (l *Limiter) entry(bridge common.Address) *BridgeLimits {
	b, ok := l.limits[bridge]
	if !ok {
		b = &BridgeLimits{
			Minter: Params{}.clone(),
			Burner: Params{}.clone(),
		}
		l.limits[bridge] = b
	}
	return b
}

func side(b *BridgeLimits, dir Direction) *Params {
	if dir == Burn {
		return &b.Burner
	}
	return &b.Minter
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/multibridge"
)

// Lockbox converts the bridged token into the native asset it wraps.
type Lockbox struct {
	address common.Address
	token   *Token

	mu     sync.Mutex
	fail   bool
	native map[common.Address]*uint256.Int
}

// NewLockbox creates a new lockbox
func NewLockbox(address common.Address, token *Token) *Lockbox {
	return &Lockbox{
		address: address,
		token:   token,
		native:  make(map[common.Address]*uint256.Int),
	}
}

// SetFailing makes every following call fail.
func (l *Lockbox) SetFailing(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = fail
}

// Withdraw takes amount of the bridged token from owner and pays the
// native asset out to to.
func (l *Lockbox) Withdraw(owner, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fail {
		return fmt.Errorf("lockbox withdraw: %w", ErrInjected)
	}
	if err := l.token.Transfer(owner, l.address, amount); err != nil {
		return err
	}
	l.native[to] = new(uint256.Int).Add(multibridge.OrZero(l.native[to]), amount)
	return nil
}

// Deposit wraps amount of the native asset held by from back into the
// bridged token and credits it to owner.
func (l *Lockbox) Deposit(from, owner common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fail {
		return fmt.Errorf("lockbox deposit: %w", ErrInjected)
	}
	held := multibridge.OrZero(l.native[from])
	if held.Lt(amount) {
		return fmt.Errorf("lockbox deposit: %s holds %s, need %s", from, held, amount)
	}
	if err := l.token.Transfer(l.address, owner, amount); err != nil {
		return err
	}
	l.native[from] = new(uint256.Int).Sub(held, amount)
	return nil
}

// NativeBalance returns the native asset paid out to account.
func (l *Lockbox) NativeBalance(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return multibridge.OrZero(l.native[account]).Clone()
}

// FeeCollector charges a basis-point fee on multi-bridge transfers.
type FeeCollector struct {
	token    *Token
	treasury common.Address
	rateBps  uint64
}

// NewFeeCollector creates a new fee collector
func NewFeeCollector(token *Token, treasury common.Address, rateBps uint64) *FeeCollector {
	return &FeeCollector{token: token, treasury: treasury, rateBps: rateBps}
}

func (f *FeeCollector) Quote(amount *uint256.Int) *uint256.Int {
	return bps(amount, f.rateBps)
}

func (f *FeeCollector) Collect(from common.Address, fee *uint256.Int) error {
	if fee.IsZero() {
		return nil
	}
	return f.token.Transfer(from, f.treasury, fee)
}

func (f *FeeCollector) Refund(to common.Address, fee *uint256.Int) error {
	if fee.IsZero() {
		return nil
	}
	return f.token.Transfer(f.treasury, to, fee)
}

// Strategy parks idle pool liquidity and tracks the principal deployed.
type Strategy struct {
	address common.Address
	asset   common.Address
	token   *Token

	mu        sync.Mutex
	fail      bool
	principal *uint256.Int
}

// NewStrategy creates a strategy for asset whose funds live at address.
func NewStrategy(address, asset common.Address, token *Token) *Strategy {
	return &Strategy{address: address, asset: asset, token: token, principal: new(uint256.Int)}
}

// SetFailing makes every following withdrawal fail.
func (s *Strategy) SetFailing(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *Strategy) Asset() common.Address { return s.asset }

func (s *Strategy) Principal() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal.Clone()
}

func (s *Strategy) Deposit(from common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.token.Transfer(from, s.address, amount); err != nil {
		return err
	}
	s.principal.Add(s.principal, amount)
	return nil
}

func (s *Strategy) Withdraw(to common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdraw(to, amount)
}

func (s *Strategy) WithdrawMax(to common.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount := s.principal.Clone()
	if err := s.withdraw(to, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (s *Strategy) withdraw(to common.Address, amount *uint256.Int) error {
	if s.fail {
		return fmt.Errorf("strategy withdraw: %w", ErrInjected)
	}
	if s.principal.Lt(amount) {
		return fmt.Errorf("%w: principal %s, requested %s", multibridge.ErrInsufficientLiquidity, s.principal.Dec(), amount.Dec())
	}
	if err := s.token.Transfer(s.address, to, amount); err != nil {
		return err
	}
	s.principal.Sub(s.principal, amount)
	return nil
}

// Call is one executed message call.
type Call struct {
	Target   common.Address
	Calldata []byte
}

// Executor records message calls instead of running them.
type Executor struct {
	mu       sync.Mutex
	failing  map[common.Address]bool
	executed []Call
}

// NewExecutor creates a new executor
func NewExecutor() *Executor {
	return &Executor{failing: make(map[common.Address]bool)}
}

// FailOn makes calls to target fail.
func (e *Executor) FailOn(target common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failing[target] = true
}

// Execute runs a batch of calls atomically: either all are recorded or,
// if any target fails, none are.
func (e *Executor) Execute(ctx context.Context, targets []common.Address, calldatas [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(targets) != len(calldatas) {
		return multibridge.ErrArrayLengthMismatch
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, target := range targets {
		if e.failing[target] {
			return fmt.Errorf("call to %s: %w", target, ErrInjected)
		}
	}
	for i, target := range targets {
		e.executed = append(e.executed, Call{Target: target, Calldata: slices.Clone(calldatas[i])})
	}
	return nil
}

// Calls returns the calls executed so far.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.executed)
}

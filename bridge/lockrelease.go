// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/payload"
)

// LockReleaseController bridges a token by locking it in the controller on
// the source chain and releasing pooled liquidity on the destination. Idle
// liquidity can be parked in a yield strategy.
type LockReleaseController struct {
	*AssetController

	strategy YieldStrategy
}

// NewLockReleaseController creates a lock-release controller.
func NewLockReleaseController(cfg AssetConfig) (*LockReleaseController, error) {
	a, err := newAssetController(cfg)
	if err != nil {
		return nil, err
	}
	l := &LockReleaseController{AssetController: a}
	a.custody = l
	return l, nil
}

// Strategy returns the attached strategy, if any.
func (l *LockReleaseController) Strategy() (YieldStrategy, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.strategy, l.strategy != nil
}

// Liquidity returns the idle balance plus the principal in the strategy.
func (l *LockReleaseController) Liquidity() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := l.token.BalanceOf(l.address)
	if l.strategy != nil {
		total.Add(total, l.strategy.Principal())
	}
	return total
}

// AttachStrategy connects s. Its asset must be the controller's token.
func (l *LockReleaseController) AttachStrategy(caller common.Address, s YieldStrategy) error {
	if err := requireRole(l.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("%w: strategy", multibridge.ErrZeroAddress)
	}
	if s.Asset() != l.token.Address() {
		return fmt.Errorf("%w: strategy asset %s, token %s", multibridge.ErrAssetMismatch, s.Asset(), l.token.Address())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strategy != nil {
		return multibridge.ErrStrategyAttached
	}
	l.strategy = s
	return nil
}

// DetachStrategy pulls all principal back into the pool and disconnects
// the strategy.
func (l *LockReleaseController) DetachStrategy(caller common.Address) error {
	if err := requireRole(l.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strategy == nil {
		return multibridge.ErrStrategyNotAttached
	}
	if !l.strategy.Principal().IsZero() {
		if _, err := l.strategy.WithdrawMax(l.address); err != nil {
			return fmt.Errorf("failed to withdraw from strategy: %w", err)
		}
	}
	l.strategy = nil
	return nil
}

// DeployToStrategy moves amount of idle liquidity into the strategy.
func (l *LockReleaseController) DeployToStrategy(caller common.Address, amount *uint256.Int) error {
	if err := requireRole(l.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	amount = multibridge.OrZero(amount)
	if amount.IsZero() {
		return multibridge.ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strategy == nil {
		return multibridge.ErrStrategyNotAttached
	}
	if balance := l.token.BalanceOf(l.address); balance.Lt(amount) {
		return fmt.Errorf("%w: idle %s, requested %s", multibridge.ErrInsufficientLiquidity, balance.Dec(), amount.Dec())
	}
	if err := l.strategy.Deposit(l.address, amount); err != nil {
		return err
	}
	l.log.Info("deployed to strategy", log.Stringer("amount", amount))
	return nil
}

// WithdrawFromStrategy moves amount of principal back into the pool.
func (l *LockReleaseController) WithdrawFromStrategy(caller common.Address, amount *uint256.Int) error {
	if err := requireRole(l.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	amount = multibridge.OrZero(amount)
	if amount.IsZero() {
		return multibridge.ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strategy == nil {
		return multibridge.ErrStrategyNotAttached
	}
	if principal := l.strategy.Principal(); principal.Lt(amount) {
		return fmt.Errorf("%w: principal %s, requested %s", multibridge.ErrInsufficientLiquidity, principal.Dec(), amount.Dec())
	}
	return l.strategy.Withdraw(l.address, amount)
}

// WithdrawMaxFromStrategy moves all principal back into the pool and
// returns the amount moved.
func (l *LockReleaseController) WithdrawMaxFromStrategy(caller common.Address) (*uint256.Int, error) {
	if err := requireRole(l.roles, DefaultAdminRole, caller); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strategy == nil {
		return nil, multibridge.ErrStrategyNotAttached
	}
	return l.strategy.WithdrawMax(l.address)
}

func (l *LockReleaseController) take(from common.Address, amount *uint256.Int, j *journal) error {
	if err := l.token.Transfer(from, l.address, amount); err != nil {
		return err
	}
	j.add(func() error { return l.token.Transfer(l.address, from, amount) })
	return nil
}

func (l *LockReleaseController) release(p *payload.TransferPayload, j *journal) (*released, error) {
	balance := l.token.BalanceOf(l.address)
	if balance.Lt(p.Amount) {
		deficit := new(uint256.Int).Sub(p.Amount, balance)
		if err := l.drawFromStrategy(deficit, j); err != nil {
			return nil, err
		}
	}
	return l.payOut(p.Recipient, p.Amount, p.Unwrap, j)
}

func (l *LockReleaseController) drawFromStrategy(deficit *uint256.Int, j *journal) error {
	if l.strategy == nil {
		return fmt.Errorf("%w: short %s and no strategy attached", multibridge.ErrNotEnoughTokensInPool, deficit.Dec())
	}
	if principal := l.strategy.Principal(); principal.Lt(deficit) {
		return fmt.Errorf("%w: short %s, strategy holds %s", multibridge.ErrNotEnoughTokensInPool, deficit.Dec(), principal.Dec())
	}
	if err := l.strategy.Withdraw(l.address, deficit); err != nil {
		return fmt.Errorf("%w: %w", multibridge.ErrNotEnoughTokensInPool, err)
	}
	j.add(func() error { return l.strategy.Deposit(l.address, deficit) })
	return nil
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger provides in-memory token, lockbox, fee, yield and call
// collaborators for controllers running outside a chain.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/multibridge"
)

// BasisPoints is the denominator for fee and tax rates.
const BasisPoints = 10_000

// ErrInjected is returned by collaborators switched into failure mode.
var ErrInjected = errors.New("injected failure")

// Token is a mintable, burnable balance sheet.
type Token struct {
	address common.Address
	taxBps  uint64

	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
}

// NewToken creates a token that withholds taxBps of every bridged mint.
func NewToken(address common.Address, taxBps uint64) *Token {
	return &Token{
		address:  address,
		taxBps:   taxBps,
		balances: make(map[common.Address]*uint256.Int),
		supply:   new(uint256.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return multibridge.OrZero(t.balances[account]).Clone()
}

// TotalSupply returns the sum of all balances.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply.Clone()
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint recipient", multibridge.ErrZeroAddress)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(to, amount)
	t.supply.Add(t.supply, amount)
	return nil
}

func (t *Token) Burn(from common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.supply.Sub(t.supply, amount)
	return nil
}

// BridgeTax returns the part of amount withheld on a bridged mint.
func (t *Token) BridgeTax(amount *uint256.Int) *uint256.Int {
	return bps(amount, t.taxBps)
}

func (t *Token) debit(from common.Address, amount *uint256.Int) error {
	balance := multibridge.OrZero(t.balances[from])
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", multibridge.ErrInsufficientBalance, from, balance.Dec(), amount.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	return nil
}

func (t *Token) credit(to common.Address, amount *uint256.Int) {
	t.balances[to] = new(uint256.Int).Add(multibridge.OrZero(t.balances[to]), amount)
}

func bps(amount *uint256.Int, rate uint64) *uint256.Int {
	if rate == 0 {
		return new(uint256.Int)
	}
	out := new(uint256.Int).Mul(amount, uint256.NewInt(rate))
	return out.Div(out, uint256.NewInt(BasisPoints))
}

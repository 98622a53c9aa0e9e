// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Token is the bridged asset.
type Token interface {
	Address() common.Address
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error
	// BridgeTax returns the part of amount withheld on a bridged mint.
	BridgeTax(amount *uint256.Int) *uint256.Int
}

// Lockbox unwraps the bridged token into the native asset it wraps.
type Lockbox interface {
	Withdraw(owner, to common.Address, amount *uint256.Int) error
	// Deposit reverses a Withdraw.
	Deposit(from, owner common.Address, amount *uint256.Int) error
}

// FeeCollector charges the protocol fee on multi-bridge transfers.
type FeeCollector interface {
	Quote(amount *uint256.Int) *uint256.Int
	Collect(from common.Address, fee *uint256.Int) error
	Refund(to common.Address, fee *uint256.Int) error
}

// YieldStrategy holds idle liquidity of a lock-release pool.
type YieldStrategy interface {
	Asset() common.Address
	Principal() *uint256.Int
	Deposit(from common.Address, amount *uint256.Int) error
	Withdraw(to common.Address, amount *uint256.Int) error
	WithdrawMax(to common.Address) (*uint256.Int, error)
}

// Executor runs the calls of an executed message. A batch either runs
// completely or not at all.
type Executor interface {
	Execute(ctx context.Context, targets []common.Address, calldatas [][]byte) error
}

// PauseState exposes whether a controller accepts operations.
type PauseState interface {
	Paused() bool
}

// ControllerRegistry resolves the trusted controller on a remote chain.
type ControllerRegistry interface {
	ControllerForChain(chainID uint64) (common.Address, bool)
}

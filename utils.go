// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package multibridge

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

var errOverflow = errors.New("arithmetic overflow")

// MaxLimit is the largest rate limit a bridge may be configured with.
var MaxLimit = new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 1)

// AddUint64 adds two uint64 values and returns an error if overflow
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, errOverflow
	}
	return a + b, nil
}

// SumFees totals per-adapter fees, treating nil entries as zero.
func SumFees(fees []*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, fee := range fees {
		if fee == nil {
			continue
		}
		var overflow bool
		total, overflow = new(uint256.Int).AddOverflow(total, fee)
		if overflow {
			return nil, errOverflow
		}
	}
	return total, nil
}

// HasDuplicates reports whether any address appears twice.
func HasDuplicates(addrs []common.Address) bool {
	seen := set.NewSet[common.Address](len(addrs))
	for _, a := range addrs {
		if seen.Contains(a) {
			return true
		}
		seen.Add(a)
	}
	return false
}

// OrZero returns v, or a fresh zero when v is nil.
func OrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// MinU256 returns the smaller of a and b.
func MinU256(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

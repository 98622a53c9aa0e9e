// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package ratelimit

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/luxfi/multibridge"
)

var bridgeA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")

type fakeClock struct{ t uint64 }

func (c *fakeClock) now() uint64             { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t += uint64(d / time.Second) }

func newLimiter(t *testing.T, clock *fakeClock) *Limiter {
	l, err := New(time.Hour, clock.now)
	require.NoError(t, err)
	return l
}

func TestNewRejectsZeroDuration(t *testing.T) {
	_, err := New(0, nil)
	require.ErrorIs(t, err, multibridge.ErrZeroDuration)
	require.Equal(t, multibridge.KindConfig, multibridge.KindOf(err))

	_, err = New(500*time.Millisecond, nil)
	require.ErrorIs(t, err, multibridge.ErrZeroDuration)
}

func TestConsumeAndReplenish(t *testing.T) {
	require := require.New(t)

	clock := &fakeClock{t: 1_000}
	l := newLimiter(t, clock)
	require.NoError(l.SetLimits(bridgeA, uint256.NewInt(10), uint256.NewInt(10)))

	require.NoError(l.Consume(bridgeA, uint256.NewInt(10), Mint))
	err := l.Consume(bridgeA, uint256.NewInt(1), Mint)
	require.ErrorIs(err, multibridge.ErrLimitExceeded)
	require.Equal(multibridge.KindCapacity, multibridge.KindOf(err))

	// burn side is independent
	require.Equal(uint64(10), l.CurrentLimit(bridgeA, Burn).Uint64())

	clock.advance(time.Hour)
	require.Equal(uint64(10), l.CurrentLimit(bridgeA, Mint).Uint64())
	require.NoError(l.Consume(bridgeA, uint256.NewInt(10), Mint))
}

func TestLinearReplenishment(t *testing.T) {
	require := require.New(t)

	clock := &fakeClock{t: 1_000}
	l := newLimiter(t, clock)
	require.NoError(l.SetLimits(bridgeA, uint256.NewInt(3600), uint256.NewInt(0)))
	require.NoError(l.Consume(bridgeA, uint256.NewInt(3600), Mint))

	clock.advance(15 * time.Minute)
	require.Equal(uint64(900), l.CurrentLimit(bridgeA, Mint).Uint64())

	require.NoError(l.Consume(bridgeA, uint256.NewInt(400), Mint))
	clock.advance(10 * time.Minute)
	require.Equal(uint64(1100), l.CurrentLimit(bridgeA, Mint).Uint64())
}

func TestSetLimitsRebase(t *testing.T) {
	tests := []struct {
		name     string
		consume  uint64
		newLimit uint64
		want     uint64
	}{
		{name: "raise adds difference", consume: 40, newLimit: 150, want: 110},
		{name: "lower subtracts difference", consume: 40, newLimit: 80, want: 40},
		{name: "lower floors at zero", consume: 90, newLimit: 50, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			clock := &fakeClock{t: 1_000}
			l := newLimiter(t, clock)
			require.NoError(l.SetLimits(bridgeA, uint256.NewInt(100), uint256.NewInt(100)))
			require.NoError(l.Consume(bridgeA, uint256.NewInt(tt.consume), Mint))

			require.NoError(l.SetLimits(bridgeA, uint256.NewInt(tt.newLimit), uint256.NewInt(100)))
			require.Equal(tt.want, l.CurrentLimit(bridgeA, Mint).Uint64())
			require.Equal(tt.newLimit, l.MaxLimit(bridgeA, Mint).Uint64())
		})
	}
}

func TestSetLimitsRejectsHugeLimit(t *testing.T) {
	require := require.New(t)

	l := newLimiter(t, &fakeClock{})
	tooHigh := new(uint256.Int).AddUint64(multibridge.MaxLimit, 1)
	err := l.SetLimits(bridgeA, tooHigh, uint256.NewInt(1))
	require.ErrorIs(err, multibridge.ErrLimitTooHigh)
	require.True(l.MaxLimit(bridgeA, Mint).IsZero())

	require.NoError(l.SetLimits(bridgeA, multibridge.MaxLimit, multibridge.MaxLimit))
}

func TestWildcardPoolIsSeparate(t *testing.T) {
	require := require.New(t)

	l := newLimiter(t, &fakeClock{t: 1})
	require.NoError(l.SetLimits(bridgeA, uint256.NewInt(5), uint256.NewInt(5)))
	require.NoError(l.SetLimits(Wildcard, uint256.NewInt(50), uint256.NewInt(50)))

	require.NoError(l.Consume(Wildcard, uint256.NewInt(50), Burn))
	require.Equal(uint64(5), l.CurrentLimit(bridgeA, Burn).Uint64())
	require.ErrorIs(l.Check(Wildcard, uint256.NewInt(1), Burn), multibridge.ErrNotHighEnoughLimits)
}

func TestSnapshotRestore(t *testing.T) {
	require := require.New(t)

	l := newLimiter(t, &fakeClock{t: 1})
	require.NoError(l.SetLimits(bridgeA, uint256.NewInt(5), uint256.NewInt(5)))
	snap, ok := l.Snapshot(bridgeA)
	require.True(ok)

	require.NoError(l.Consume(bridgeA, uint256.NewInt(5), Mint))
	l.Restore(bridgeA, snap)
	require.Equal(uint64(5), l.CurrentLimit(bridgeA, Mint).Uint64())
}

func TestRateLimitBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := &fakeClock{t: 1}
		l, err := New(time.Hour, clock.now)
		if err != nil {
			t.Fatal(err)
		}
		maxLimit := rapid.Uint64Range(1, 1<<40).Draw(t, "max")
		if err := l.SetLimits(bridgeA, uint256.NewInt(maxLimit), uint256.NewInt(maxLimit)); err != nil {
			t.Fatal(err)
		}

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clock.t += rapid.Uint64Range(0, 7200).Draw(t, "elapsed")
			amount := uint256.NewInt(rapid.Uint64Range(0, maxLimit).Draw(t, "amount"))

			before := l.CurrentLimit(bridgeA, Mint)
			err := l.Consume(bridgeA, amount, Mint)
			after := l.CurrentLimit(bridgeA, Mint)
			if amount.Gt(before) {
				if err == nil {
					t.Fatalf("consumed %s with only %s available", amount.Dec(), before.Dec())
				}
				if !after.Eq(before) {
					t.Fatalf("failed consume changed state: %s -> %s", before.Dec(), after.Dec())
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if after.Gt(uint256.NewInt(maxLimit)) {
				t.Fatalf("current %s exceeds max %d", after.Dec(), maxLimit)
			}
		}
	})
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTTLCacheSingleKey(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cache := NewTTLCache[common.Hash, bool](time.Minute, clock.now)
	id := common.HexToHash("0x01")

	fetches := 0
	fetch := func(common.Hash) (bool, error) {
		fetches++
		return true, nil
	}

	tests := []struct {
		name       string
		advance    time.Duration
		invalidate bool
		wantCount  int
	}{
		{
			name:      "empty cache fetches",
			wantCount: 1,
		},
		{
			name:      "fresh entry is reused",
			advance:   30 * time.Second,
			wantCount: 1,
		},
		{
			name:       "invalidated entry is fetched again",
			invalidate: true,
			wantCount:  2,
		},
		{
			name:      "expired entry is fetched again",
			advance:   time.Minute,
			wantCount: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			clock.t = clock.t.Add(tt.advance)
			if tt.invalidate {
				cache.Invalidate(id)
			}
			v, err := cache.Get(id, fetch)
			require.NoError(err)
			require.True(v)
			require.Equal(tt.wantCount, fetches)
		})
	}
}

func TestTTLCacheFetchErrorNotCached(t *testing.T) {
	require := require.New(t)
	cache := NewTTLCache[uint64, string](time.Minute, nil)
	errFetch := errors.New("unreachable")

	_, err := cache.Get(7, func(uint64) (string, error) { return "", errFetch })
	require.ErrorIs(err, errFetch)
	require.Zero(cache.Len())

	v, err := cache.Get(7, func(uint64) (string, error) { return "seven", nil })
	require.NoError(err)
	require.Equal("seven", v)
}

func TestTTLCacheCollapsesConcurrentFetches(t *testing.T) {
	require := require.New(t)
	cache := NewTTLCache[string, int](time.Minute, nil)

	var (
		calls   atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
	)
	fetch := func(string) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.Get("status", fetch)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	require.Eventually(func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(calls.Load(), int32(len(results)))
	for _, v := range results {
		require.Equal(42, v)
	}
}

func TestTTLCachePrune(t *testing.T) {
	require := require.New(t)
	clock := &fakeClock{t: time.Unix(0, 0)}
	cache := NewTTLCache[int, int](time.Second, clock.now)

	for i := range 3 {
		_, err := cache.Get(i, func(k int) (int, error) { return k, nil })
		require.NoError(err)
		clock.t = clock.t.Add(400 * time.Millisecond)
	}
	require.Equal(3, cache.Len())
	require.Equal(1, cache.Prune())
	require.Equal(2, cache.Len())
}

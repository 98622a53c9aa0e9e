// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/payload"
	"github.com/luxfi/multibridge/ratelimit"
	"github.com/luxfi/multibridge/registry"
)

func TestSingleBridgeTransfer(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 100, 0)

	id, err := p.transfer(100, false, 0)
	require.NoError(err)
	require.Equal(uint64(900), p.tokenA.BalanceOf(alice).Uint64())
	require.Equal(uint64(900), p.tokenA.TotalSupply().Uint64())
	require.Equal(uint64(900), p.a.CurrentLimit(p.src(0), ratelimit.Burn).Uint64())

	out, ok, err := p.a.Outbound(id)
	require.NoError(err)
	require.True(ok)
	require.False(out.MultiBridge)
	require.Equal(uint64(1), out.Threshold)
	require.Equal([]common.Address{p.src(0)}, out.Adapters)

	require.Len(p.network.Pending(), 1)
	require.Equal(1, p.deliverAll())

	// 1% bridge tax is withheld
	require.Equal(uint64(99), p.tokenB.BalanceOf(bob).Uint64())
	require.Equal(uint64(900), p.b.CurrentLimit(p.dst(0), ratelimit.Mint).Uint64())
	rec, ok, err := p.b.Inbound(id)
	require.NoError(err)
	require.True(ok)
	require.Equal(registry.StatusExecuted, rec.Status())
	require.Equal(uint64(1), rec.ReceivedSoFar)

	err = p.b.Deliver(context.Background(), p.dst(0), chainA, controllerA, out.Payload)
	require.ErrorIs(err, multibridge.ErrTransferNotExecutable)
	require.Equal(multibridge.KindReplay, multibridge.KindOf(err))
	require.Equal(uint64(99), p.tokenB.BalanceOf(bob).Uint64())

	require.Equal([]EventType{TransferCreated, TransferRelayed}, p.eventTypes(controllerA))
	require.Equal([]EventType{TransferReceived, TransferExecuted}, p.eventTypes(controllerB))

	require.Equal(1.0, testutil.ToFloat64(p.a.metrics.createdCount.WithLabelValues("A", "single")))
	require.Equal(1.0, testutil.ToFloat64(p.b.metrics.executedCount.WithLabelValues("B")))
	require.Equal(1.0, testutil.ToFloat64(p.b.metrics.deliveryCount.WithLabelValues("B", "accepted")))
	require.Equal(1.0, testutil.ToFloat64(p.b.metrics.deliveryCount.WithLabelValues("B", "replay")))
}

func TestMultiBridgeTransfer(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 0, 100)

	id, err := p.transfer(100, false, 0, 1)
	require.NoError(err)

	// amount plus the 1% protocol fee
	require.Equal(uint64(899), p.tokenA.BalanceOf(alice).Uint64())
	require.Equal(uint64(1), p.tokenA.BalanceOf(treasury).Uint64())
	require.Equal(uint64(900), p.a.CurrentLimit(ratelimit.Wildcard, ratelimit.Burn).Uint64())
	require.Equal(uint64(1000), p.a.CurrentLimit(p.src(0), ratelimit.Burn).Uint64())

	out, ok, err := p.a.Outbound(id)
	require.NoError(err)
	require.True(ok)
	require.True(out.MultiBridge)
	require.Equal(uint64(DefaultMinBridges), out.Threshold)

	require.NoError(p.deliverFrom(1))
	rec, ok, err := p.b.Inbound(id)
	require.NoError(err)
	require.True(ok)
	require.Equal(uint64(1), rec.ReceivedSoFar)
	require.Equal(registry.StatusPending, rec.Status())
	require.True(p.tokenB.BalanceOf(bob).IsZero())

	require.NoError(p.deliverFrom(0))
	rec, _, err = p.b.Inbound(id)
	require.NoError(err)
	require.Equal(uint64(2), rec.ReceivedSoFar)
	require.True(rec.Executed)
	require.Equal(uint64(100), p.tokenB.BalanceOf(bob).Uint64())
	require.Equal(uint64(900), p.b.CurrentLimit(ratelimit.Wildcard, ratelimit.Mint).Uint64())
	require.Equal(uint64(1000), p.b.CurrentLimit(p.dst(0), ratelimit.Mint).Uint64())

	require.Equal([]EventType{TransferReceived, TransferReceived, TransferExecuted}, p.eventTypes(controllerB))
}

func TestTransferToRejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *assetPair)
		from  common.Address
		req   func(p *assetPair) *TransferRequest
		want  error
	}{
		{
			name: "zero amount",
			req: func(p *assetPair) *TransferRequest {
				return &TransferRequest{Recipient: bob, Amount: new(uint256.Int), DestChainID: chainB, Adapters: []common.Address{p.src(0)}, Fees: fees(1), Options: opts(1)}
			},
			want: multibridge.ErrZeroAmount,
		},
		{
			name: "zero recipient",
			req: func(p *assetPair) *TransferRequest {
				return &TransferRequest{Amount: uint256.NewInt(1), DestChainID: chainB, Adapters: []common.Address{p.src(0)}, Fees: fees(1), Options: opts(1)}
			},
			want: multibridge.ErrZeroAddress,
		},
		{
			name: "unknown destination",
			req: func(p *assetPair) *TransferRequest {
				return &TransferRequest{Recipient: bob, Amount: uint256.NewInt(1), DestChainID: 99, Adapters: []common.Address{p.src(0)}, Fees: fees(1), Options: opts(1)}
			},
			want: multibridge.ErrControllerChainNotSupported,
		},
		{
			name: "destination paused",
			setup: func(p *assetPair) {
				require.NoError(t, p.a.Roles().(*AccessControl).Grant(admin, PauserRole, admin))
				require.NoError(t, p.a.SetDestinationPaused(admin, chainB, true))
			},
			req:  validRequest(0),
			want: multibridge.ErrTransfersPausedToDestination,
		},
		{
			name: "controller paused",
			setup: func(p *assetPair) {
				require.NoError(t, p.a.Roles().(*AccessControl).Grant(admin, PauserRole, admin))
				require.NoError(t, p.a.Pause(admin))
			},
			req:  validRequest(0),
			want: multibridge.ErrPaused,
		},
		{
			name: "no adapters",
			req:  validRequest(),
			want: multibridge.ErrInvalidParams,
		},
		{
			name: "duplicate adapter",
			req:  validRequest(0, 0),
			want: multibridge.ErrDuplicateAdapter,
		},
		{
			name: "adapter not whitelisted for multi-bridge",
			req:  validRequest(0, 2),
			want: multibridge.ErrAdapterNotAllowed,
		},
		{
			name: "unknown adapter",
			req: func(p *assetPair) *TransferRequest {
				r := validRequest(0)(p)
				r.Adapters = []common.Address{common.HexToAddress("0xdead")}
				return r
			},
			want: multibridge.ErrAdapterNotAllowed,
		},
		{
			name: "fees do not match value",
			req: func(p *assetPair) *TransferRequest {
				r := validRequest(0)(p)
				r.Fees = []*uint256.Int{uint256.NewInt(5)}
				r.Value = uint256.NewInt(4)
				return r
			},
			want: multibridge.ErrFeesSumMismatch,
		},
		{
			name: "fees length mismatch",
			req: func(p *assetPair) *TransferRequest {
				r := validRequest(0)(p)
				r.Fees = fees(2)
				return r
			},
			want: multibridge.ErrArrayLengthMismatch,
		},
		{
			name: "options omitted",
			req: func(p *assetPair) *TransferRequest {
				r := validRequest(0)(p)
				r.Options = nil
				return r
			},
			want: multibridge.ErrArrayLengthMismatch,
		},
		{
			name: "fewer adapters than min bridges",
			setup: func(p *assetPair) {
				require.NoError(t, p.a.SetMinBridges(admin, 3))
			},
			req:  validRequest(0, 1),
			want: multibridge.ErrMinBridgesNotMet,
		},
		{
			name: "burn limit",
			req: func(p *assetPair) *TransferRequest {
				r := validRequest(0)(p)
				r.Amount = uint256.NewInt(1001)
				return r
			},
			want: multibridge.ErrNotHighEnoughLimits,
		},
		{
			name: "wildcard burn limit",
			setup: func(p *assetPair) {
				require.NoError(t, p.a.SetLimits(admin, ratelimit.Wildcard, uint256.NewInt(1000), uint256.NewInt(10)))
			},
			req:  validRequest(0, 1),
			want: multibridge.ErrNotHighEnoughLimits,
		},
		{
			name: "insufficient balance",
			from: bob,
			req:  validRequest(0),
			want: multibridge.ErrInsufficientBalance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			p := newAssetPair(t, 0, 0)
			if tt.setup != nil {
				tt.setup(p)
			}
			from := tt.from
			if from == (common.Address{}) {
				from = alice
			}

			_, err := p.a.TransferTo(context.Background(), from, tt.req(p))
			require.ErrorIs(err, tt.want)

			require.Equal(uint64(1000), p.tokenA.BalanceOf(alice).Uint64())
			require.Empty(p.network.Pending())
			require.Empty(p.events[controllerA])
		})
	}
}

func validRequest(adapters ...int) func(p *assetPair) *TransferRequest {
	return func(p *assetPair) *TransferRequest {
		addrs := make([]common.Address, len(adapters))
		for i, idx := range adapters {
			addrs[i] = p.src(idx)
		}
		return &TransferRequest{
			Recipient:   bob,
			Amount:      uint256.NewInt(100),
			DestChainID: chainB,
			Adapters:    addrs,
			Fees:        fees(len(addrs)),
			Options:     opts(len(addrs)),
		}
	}
}

func TestDeliverRejects(t *testing.T) {
	stranger := common.HexToAddress("0x5757")

	newPayload := func(threshold uint64, recipient common.Address) []byte {
		tp, err := payload.NewTransferPayload(alice, recipient, uint256.NewInt(10), false, threshold, 7, chainA, chainB)
		require.NoError(t, err)
		return tp.Bytes()
	}
	tampered := func() []byte {
		tp, err := payload.NewTransferPayload(alice, bob, uint256.NewInt(10), false, 1, 7, chainA, chainB)
		require.NoError(t, err)
		tp.Amount = uint256.NewInt(1000)
		return tp.Bytes()
	}

	tests := []struct {
		name     string
		setup    func(p *assetPair)
		adapter  func(p *assetPair) common.Address
		sender   common.Address
		origin   uint64
		payload  []byte
		want     error
		wantKind multibridge.ErrorKind
	}{
		{
			name:     "origin sender is not the registered controller",
			adapter:  func(p *assetPair) common.Address { return p.dst(0) },
			sender:   stranger,
			origin:   chainA,
			payload:  newPayload(1, bob),
			want:     multibridge.ErrInvalidOriginSender,
			wantKind: multibridge.KindAuthorization,
		},
		{
			name:     "origin chain has no controller",
			adapter:  func(p *assetPair) common.Address { return p.dst(0) },
			sender:   controllerA,
			origin:   5,
			payload:  newPayload(1, bob),
			want:     multibridge.ErrInvalidOriginSender,
			wantKind: multibridge.KindAuthorization,
		},
		{
			name:     "caller is not a local adapter",
			adapter:  func(*assetPair) common.Address { return stranger },
			sender:   controllerA,
			origin:   chainA,
			payload:  newPayload(1, bob),
			want:     multibridge.ErrAdapterNotAllowed,
			wantKind: multibridge.KindAuthorization,
		},
		{
			name:     "multi-bridge payload through a non-whitelisted adapter",
			adapter:  func(p *assetPair) common.Address { return p.dst(2) },
			sender:   controllerA,
			origin:   chainA,
			payload:  newPayload(2, bob),
			want:     multibridge.ErrAdapterNotAllowed,
			wantKind: multibridge.KindAuthorization,
		},
		{
			name:     "id does not match payload",
			adapter:  func(p *assetPair) common.Address { return p.dst(0) },
			sender:   controllerA,
			origin:   chainA,
			payload:  tampered(),
			want:     multibridge.ErrInvalidParams,
			wantKind: multibridge.KindConfig,
		},
		{
			name:     "garbage payload",
			adapter:  func(p *assetPair) common.Address { return p.dst(0) },
			sender:   controllerA,
			origin:   chainA,
			payload:  []byte{1, 2, 3},
			want:     multibridge.ErrInvalidPayload,
			wantKind: multibridge.KindConfig,
		},
		{
			name: "paused",
			setup: func(p *assetPair) {
				require.NoError(t, p.b.Roles().(*AccessControl).Grant(admin, PauserRole, admin))
				require.NoError(t, p.b.Pause(admin))
			},
			adapter:  func(p *assetPair) common.Address { return p.dst(0) },
			sender:   controllerA,
			origin:   chainA,
			payload:  newPayload(1, bob),
			want:     multibridge.ErrPaused,
			wantKind: multibridge.KindState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			p := newAssetPair(t, 0, 0)
			if tt.setup != nil {
				tt.setup(p)
			}

			err := p.b.Deliver(context.Background(), tt.adapter(p), tt.origin, tt.sender, tt.payload)
			require.ErrorIs(err, tt.want)
			require.Equal(tt.wantKind, multibridge.KindOf(err))
			require.True(p.tokenB.TotalSupply().IsZero())
			require.Empty(p.events[controllerB])
		})
	}
}

func TestMintLimitDefersRelease(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 0, 0)
	require.NoError(p.b.SetLimits(admin, p.dst(0), uint256.NewInt(50), uint256.NewInt(50)))

	id, err := p.transfer(100, false, 0)
	require.NoError(err)

	_, err = p.network.DeliverAll(context.Background())
	require.ErrorIs(err, multibridge.ErrNotHighEnoughLimits)
	require.Len(p.network.Pending(), 1)

	_, ok, err := p.b.Inbound(id)
	require.NoError(err)
	require.False(ok)
	require.True(p.tokenB.TotalSupply().IsZero())
	require.Equal(uint64(50), p.b.CurrentLimit(p.dst(0), ratelimit.Mint).Uint64())

	require.NoError(p.b.SetLimits(admin, p.dst(0), uint256.NewInt(1000), uint256.NewInt(1000)))
	require.Equal(1, p.deliverAll())
	require.Equal(uint64(100), p.tokenB.BalanceOf(bob).Uint64())
}

func TestRateLimitReplenishes(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 0, 0)
	// one token per second
	limit := uint256.NewInt(uint64(replenish.Seconds()))
	require.NoError(p.a.SetLimits(admin, p.src(0), limit, limit))
	// enough for two full windows
	require.NoError(p.tokenA.Mint(alice, new(uint256.Int).Mul(limit, uint256.NewInt(2))))

	_, err := p.transfer(limit.Uint64(), false, 0)
	require.NoError(err)
	_, err = p.transfer(1, false, 0)
	require.ErrorIs(err, multibridge.ErrNotHighEnoughLimits)
	require.Equal(multibridge.KindCapacity, multibridge.KindOf(err))
	require.Equal(1.0, testutil.ToFloat64(p.a.metrics.rateLimitRejections.WithLabelValues("A", "burn")))

	p.clock.t += limit.Uint64() / 2
	require.Equal(limit.Uint64()/2, p.a.CurrentLimit(p.src(0), ratelimit.Burn).Uint64())

	p.clock.t += limit.Uint64() / 2
	require.Equal(limit.Uint64(), p.a.CurrentLimit(p.src(0), ratelimit.Burn).Uint64())
	_, err = p.transfer(limit.Uint64(), false, 0)
	require.NoError(err)
}

func TestUnwrap(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 0, 0)

	_, err := p.transfer(40, true, 0)
	require.NoError(err)
	require.Equal(1, p.deliverAll())
	require.Equal(uint64(40), p.lockbox.NativeBalance(bob).Uint64())
	require.True(p.tokenB.BalanceOf(bob).IsZero())

	// a failing lockbox falls back to paying out the wrapped token
	p.lockbox.SetFailing(true)
	_, err = p.transfer(60, true, 0)
	require.NoError(err)
	require.Equal(1, p.deliverAll())
	require.Equal(uint64(40), p.lockbox.NativeBalance(bob).Uint64())
	require.Equal(uint64(60), p.tokenB.BalanceOf(bob).Uint64())

	require.Contains(p.eventTypes(controllerB), UnwrapFallback)
	require.Equal(1.0, testutil.ToFloat64(p.b.metrics.unwrapFallbackCount.WithLabelValues("B")))
}

func TestUnwrapRevertedWhenRecordNotStored(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 0, 0)

	_, err := p.transfer(40, true, 0)
	require.NoError(err)

	p.storeB.failInbound = true
	require.ErrorIs(p.deliverFrom(0), errStoreDown)
	require.True(p.lockbox.NativeBalance(bob).IsZero())
	require.True(p.tokenB.BalanceOf(lockboxB).IsZero())
	require.True(p.tokenB.BalanceOf(controllerB).IsZero())
	require.True(p.tokenB.TotalSupply().IsZero())
	require.Equal(uint64(1000), p.b.CurrentLimit(p.dst(0), ratelimit.Mint).Uint64())
	require.Len(p.network.Pending(), 1)

	// the queued packet executes once the store recovers
	p.storeB.failInbound = false
	require.NoError(p.deliverFrom(0))
	require.Equal(uint64(40), p.lockbox.NativeBalance(bob).Uint64())
	require.Equal(uint64(40), p.tokenB.BalanceOf(lockboxB).Uint64())
}

func TestFirstRelayFailureReverts(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 0, 100)
	require.NoError(p.a.SetLocalAdapter(admin, failingGateway{p.gateway(controllerA, 0)}, true))

	_, err := p.transfer(100, false, 0, 1)
	require.ErrorIs(err, errRelayDown)

	require.Equal(uint64(1000), p.tokenA.BalanceOf(alice).Uint64())
	require.True(p.tokenA.BalanceOf(treasury).IsZero())
	require.Equal(uint64(1000), p.a.CurrentLimit(ratelimit.Wildcard, ratelimit.Burn).Uint64())
	require.Empty(p.network.Pending())

	// the nonce was not consumed
	id, err := p.transfer(100, false, 1)
	require.NoError(err)
	out, _, err := p.a.Outbound(id)
	require.NoError(err)
	require.Zero(out.Nonce)
}

func TestPartialRelayCompletedByResend(t *testing.T) {
	require := require.New(t)
	p := newAssetPair(t, 0, 0)
	require.NoError(p.a.SetLocalAdapter(admin, failingGateway{p.gateway(controllerA, 1)}, true))

	id, err := p.transfer(100, false, 0, 1)
	require.ErrorIs(err, multibridge.ErrPartialRelay)
	require.ErrorIs(err, errRelayDown)
	require.NotEqual(common.Hash{}, id)
	require.Equal(uint64(900), p.tokenA.BalanceOf(alice).Uint64())

	out, ok, err := p.a.Outbound(id)
	require.NoError(err)
	require.True(ok)
	require.Equal([]common.Address{p.src(0)}, out.Adapters)

	require.Equal(1, p.deliverAll())
	require.True(p.tokenB.BalanceOf(bob).IsZero())

	require.NoError(p.a.SetLocalAdapter(admin, p.gateway(controllerA, 1), true))
	require.NoError(p.a.Resend(context.Background(), &ResendRequest{
		ID:       id,
		Adapters: []common.Address{p.src(1)},
		Fees:     fees(1),
		Options:  opts(1),
	}))
	require.Equal(1, p.deliverAll())
	require.Equal(uint64(100), p.tokenB.BalanceOf(bob).Uint64())
}

// Any delivery order of the three legs of a multi-bridge transfer, with
// arbitrary duplicates, mints exactly once.
func TestExactlyOnceRelease(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := newAssetPair(t, 0, 0)
		require.NoError(t, p.b.SetMultiBridgeAdapters(admin, []common.Address{p.dst(2)}, []bool{true}))
		require.NoError(t, p.a.SetMultiBridgeAdapters(admin, []common.Address{p.src(2)}, []bool{true}))

		id, err := p.transfer(100, false, 0, 1, 2)
		require.NoError(t, err)
		raw := p.outboundPayload(id)

		schedule := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 12).Draw(rt, "schedule")
		delivered := make(map[int]bool)
		for _, i := range schedule {
			err := p.b.Deliver(context.Background(), p.dst(i), chainA, controllerA, raw)
			switch {
			case len(delivered) >= DefaultMinBridges:
				if !errors.Is(err, multibridge.ErrTransferNotExecutable) {
					rt.Fatalf("delivery after execution: %v", err)
				}
			case delivered[i]:
				if !errors.Is(err, multibridge.ErrTransferResentByAdapter) {
					rt.Fatalf("duplicate delivery: %v", err)
				}
			default:
				if err != nil {
					rt.Fatalf("fresh delivery: %v", err)
				}
				delivered[i] = true
			}
		}

		want := uint64(0)
		if len(delivered) >= DefaultMinBridges {
			want = 100
		}
		if got := p.tokenB.BalanceOf(bob).Uint64(); got != want {
			rt.Fatalf("bob holds %d, want %d", got, want)
		}
		if got := p.tokenB.TotalSupply().Uint64(); got != want {
			rt.Fatalf("supply %d, want %d", got, want)
		}
	})
}

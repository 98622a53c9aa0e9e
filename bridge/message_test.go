// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/ledger"
	"github.com/luxfi/multibridge/registry"
)

const (
	timelock = 1000 * time.Second
	expiry   = 7 * 24 * time.Hour
)

var (
	targetX = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	targetY = common.HexToAddress("0x0000000000000000000000000000000000000e02")
)

type messagePair struct {
	*harness
	executor *ledger.Executor
	a        *MessageController
	b        *MessageController
}

func newMessagePair(t testing.TB) *messagePair {
	require := require.New(t)

	h := newHarness(t)
	p := &messagePair{harness: h, executor: ledger.NewExecutor()}

	var err error
	p.a, err = NewMessageController(MessageConfig{
		Config:        h.config("A", controllerA, chainA),
		TimelockDelay: timelock,
		MessageExpiry: expiry,
		Vetoer:        vetoer,
		Executor:      ledger.NewExecutor(),
	})
	require.NoError(err)
	p.b, err = NewMessageController(MessageConfig{
		Config:        h.config("B", controllerB, chainB),
		TimelockDelay: timelock,
		MessageExpiry: expiry,
		Vetoer:        vetoer,
		Executor:      p.executor,
	})
	require.NoError(err)

	h.connect(p.a.Core, p.a, chainB, controllerB, h.srcAdapters)
	h.connect(p.b.Core, p.b, chainA, controllerA, h.dstAdapters)
	require.NoError(p.a.Roles().(*AccessControl).Grant(admin, MessageOriginatorRole, originator))
	return p
}

func (p *messagePair) send(threshold uint64, adapters ...int) (common.Hash, error) {
	addrs := make([]common.Address, len(adapters))
	for i, idx := range adapters {
		addrs[i] = p.src(idx)
	}
	return p.a.SendMessage(context.Background(), originator, &MessageRequest{
		Targets:     []common.Address{targetX, targetY},
		Calldatas:   [][]byte{{0x01}, {0x02, 0x03}},
		DestChainID: chainB,
		Adapters:    addrs,
		Fees:        fees(len(addrs)),
		Options:     opts(len(addrs)),
		Threshold:   threshold,
	})
}

func TestMessageTimelock(t *testing.T) {
	require := require.New(t)
	p := newMessagePair(t)
	ctx := context.Background()

	id, err := p.send(2, 0, 1)
	require.NoError(err)

	require.NoError(p.deliverFrom(0))
	require.False(p.b.IsReceivedMessageExecutable(id))
	err = p.b.Execute(ctx, id)
	require.ErrorIs(err, multibridge.ErrThresholdNotMet)

	require.NoError(p.deliverFrom(1))
	reachedAt := p.clock.t
	rec, ok, err := p.b.Inbound(id)
	require.NoError(err)
	require.True(ok)
	require.Equal(registry.StatusExecutable, rec.Status())
	require.Equal(reachedAt+uint64(timelock.Seconds()), rec.ExecutableAt)
	require.Empty(p.executor.Calls())

	err = p.b.Execute(ctx, id)
	require.ErrorIs(err, multibridge.ErrMsgNotExecutableYet)
	require.Equal(multibridge.KindState, multibridge.KindOf(err))

	p.clock.t = rec.ExecutableAt
	require.True(p.b.IsReceivedMessageExecutable(id))
	require.NoError(p.b.Execute(ctx, id))
	require.Equal([]ledger.Call{
		{Target: targetX, Calldata: []byte{0x01}},
		{Target: targetY, Calldata: []byte{0x02, 0x03}},
	}, p.executor.Calls())

	err = p.b.Execute(ctx, id)
	require.ErrorIs(err, multibridge.ErrMsgNotExecutable)
	require.Len(p.executor.Calls(), 2)

	require.Equal([]EventType{
		MessageReceived,
		MessageReceived,
		MessageExecutableAt,
		MessageExecuted,
	}, p.eventTypes(controllerB))
}

func TestMessageExpires(t *testing.T) {
	require := require.New(t)
	p := newMessagePair(t)

	id, err := p.send(1, 0)
	require.NoError(err)
	require.Equal(1, p.deliverAll())

	rec, _, err := p.b.Inbound(id)
	require.NoError(err)
	require.Equal(rec.ExecutableAt+uint64(expiry.Seconds()), rec.ExpiresAt)

	p.clock.t = rec.ExpiresAt + 1
	require.False(p.b.IsReceivedMessageExecutable(id))
	err = p.b.Execute(context.Background(), id)
	require.ErrorIs(err, multibridge.ErrMsgExpired)
	require.Empty(p.executor.Calls())
}

func TestMessageVeto(t *testing.T) {
	require := require.New(t)
	p := newMessagePair(t)

	id, err := p.send(2, 0, 1)
	require.NoError(err)
	require.NoError(p.deliverFrom(0))

	err = p.b.Cancel(alice, id)
	require.ErrorIs(err, multibridge.ErrNotVetoer)
	require.NoError(p.b.Cancel(vetoer, id))
	err = p.b.Cancel(vetoer, id)
	require.ErrorIs(err, multibridge.ErrMsgCancelled)

	// later deliveries are still counted but never unlock execution
	require.NoError(p.deliverFrom(1))
	rec, _, err := p.b.Inbound(id)
	require.NoError(err)
	require.Equal(uint64(2), rec.ReceivedSoFar)
	require.Equal(registry.StatusCancelled, rec.Status())

	p.clock.t += uint64(timelock.Seconds())
	err = p.b.Execute(context.Background(), id)
	require.ErrorIs(err, multibridge.ErrMsgCancelled)
	require.ErrorIs(err, multibridge.ErrMsgNotExecutable)
	require.Equal(multibridge.KindState, multibridge.KindOf(err))
	require.Empty(p.executor.Calls())
	require.NotContains(p.eventTypes(controllerB), MessageExecutableAt)
}

func TestMessageCancelBeforeDelivery(t *testing.T) {
	require := require.New(t)
	p := newMessagePair(t)

	id, err := p.send(1, 0)
	require.NoError(err)
	require.NoError(p.b.Cancel(vetoer, id))

	require.Equal(1, p.deliverAll())
	rec, ok, err := p.b.Inbound(id)
	require.NoError(err)
	require.True(ok)
	require.Equal(uint64(1), rec.Threshold)
	require.Equal(registry.StatusCancelled, rec.Status())

	p.clock.t += uint64(timelock.Seconds())
	require.False(p.b.IsReceivedMessageExecutable(id))
}

func TestMessageExecutionFailureIsRetryable(t *testing.T) {
	require := require.New(t)
	p := newMessagePair(t)
	p.executor.FailOn(targetY)

	id, err := p.send(1, 0)
	require.NoError(err)
	require.Equal(1, p.deliverAll())
	p.clock.t += uint64(timelock.Seconds())

	err = p.b.Execute(context.Background(), id)
	require.ErrorIs(err, multibridge.ErrExecutionFailed)
	require.ErrorIs(err, ledger.ErrInjected)
	require.True(p.b.IsReceivedMessageExecutable(id))
	require.Empty(p.executor.Calls())
}

func TestSendMessageRejects(t *testing.T) {
	tests := []struct {
		name string
		from common.Address
		req  func(p *messagePair) *MessageRequest
		want error
	}{
		{
			name: "caller lacks originator role",
			from: alice,
			req:  messageRequest(1, 0),
			want: multibridge.ErrUnauthorized,
		},
		{
			name: "zero threshold",
			req:  messageRequest(0, 0),
			want: multibridge.ErrInvalidThreshold,
		},
		{
			name: "threshold above adapter count",
			req:  messageRequest(3, 0, 1),
			want: multibridge.ErrInvalidThreshold,
		},
		{
			name: "targets and calldatas differ",
			req: func(p *messagePair) *MessageRequest {
				r := messageRequest(1, 0)(p)
				r.Calldatas = append(r.Calldatas, []byte{0xbb})
				return r
			},
			want: multibridge.ErrArrayLengthMismatch,
		},
		{
			name: "no targets",
			req: func(p *messagePair) *MessageRequest {
				r := messageRequest(1, 0)(p)
				r.Targets = nil
				r.Calldatas = nil
				return r
			},
			want: multibridge.ErrInvalidParams,
		},
		{
			name: "options length mismatch",
			req: func(p *messagePair) *MessageRequest {
				r := messageRequest(1, 0)(p)
				r.Options = [][]byte{{1}, {2}}
				return r
			},
			want: multibridge.ErrArrayLengthMismatch,
		},
		{
			name: "multi-bridge through non-whitelisted adapter",
			req:  messageRequest(2, 0, 2),
			want: multibridge.ErrAdapterNotAllowed,
		},
		{
			name: "value without fees",
			req: func(p *messagePair) *MessageRequest {
				r := messageRequest(1, 0)(p)
				r.Value = uint256.NewInt(1)
				return r
			},
			want: multibridge.ErrFeesSumMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			p := newMessagePair(t)
			from := tt.from
			if from == (common.Address{}) {
				from = originator
			}

			_, err := p.a.SendMessage(context.Background(), from, tt.req(p))
			require.ErrorIs(err, tt.want)
			require.Empty(p.network.Pending())
		})
	}
}

func messageRequest(threshold uint64, adapters ...int) func(p *messagePair) *MessageRequest {
	return func(p *messagePair) *MessageRequest {
		addrs := make([]common.Address, len(adapters))
		for i, idx := range adapters {
			addrs[i] = p.src(idx)
		}
		return &MessageRequest{
			Targets:     []common.Address{targetX},
			Calldatas:   [][]byte{{0xaa}},
			DestChainID: chainB,
			Adapters:    addrs,
			Fees:        fees(len(addrs)),
			Options:     opts(len(addrs)),
			Threshold:   threshold,
		}
	}
}

func TestMessageAdmin(t *testing.T) {
	require := require.New(t)
	p := newMessagePair(t)

	require.ErrorIs(p.b.SetVetoer(alice, alice), multibridge.ErrUnauthorized)
	require.ErrorIs(p.b.SetVetoer(admin, common.Address{}), multibridge.ErrZeroAddress)
	require.NoError(p.b.SetVetoer(admin, alice))
	require.Equal(alice, p.b.Vetoer())

	require.ErrorIs(p.b.SetMessageExpiry(admin, 0), multibridge.ErrZeroDuration)
	require.NoError(p.b.SetMessageExpiry(admin, time.Hour))
	require.NoError(p.b.SetTimelockDelay(admin, 0))

	id, err := p.send(1, 0)
	require.NoError(err)
	require.Equal(1, p.deliverAll())
	rec, _, err := p.b.Inbound(id)
	require.NoError(err)
	require.Equal(p.clock.t, rec.ExecutableAt)
	require.Equal(p.clock.t+3600, rec.ExpiresAt)
	require.True(p.b.IsReceivedMessageExecutable(id))
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/multibridge/adapter"
	"github.com/luxfi/multibridge/ledger"
	"github.com/luxfi/multibridge/ratelimit"
	"github.com/luxfi/multibridge/registry"
)

const (
	chainA    uint64 = 1
	chainB    uint64 = 2
	replenish        = time.Hour
)

var (
	admin       = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	originator  = common.HexToAddress("0x000000000000000000000000000000000000071c")
	vetoer      = common.HexToAddress("0x0000000000000000000000000000000000007e70")
	treasury    = common.HexToAddress("0x000000000000000000000000000000000000007e")
	controllerA = common.HexToAddress("0x0000000000000000000000000000000000000c0a")
	controllerB = common.HexToAddress("0x0000000000000000000000000000000000000c0b")
	lockboxB    = common.HexToAddress("0x00000000000000000000000000000000000010cb")
	strategyB   = common.HexToAddress("0x0000000000000000000000000000000000005747")
	tokenAddr   = common.HexToAddress("0x000000000000000000000000000000000000070c")

	testKinds = []adapter.Kind{adapter.Hyperlane, adapter.LayerZero, adapter.CCIP}

	errRelayDown = errors.New("relay down")
	errStoreDown = errors.New("store down")
)

type clock struct{ t uint64 }

func (c *clock) now() uint64 { return c.t }

// harness connects chainA and chainB through one adapter per test kind on
// each side. The first two adapters are whitelisted for multi-bridge use.
type harness struct {
	t           testing.TB
	clock       *clock
	log         log.Logger
	network     *adapter.Network
	srcAdapters []*adapter.Adapter
	dstAdapters []*adapter.Adapter
	// gateways holds the endpoints bound per controller, in adapter order.
	gateways map[common.Address][]*adapter.Endpoint
	events   map[common.Address][]Event
}

func newHarness(t testing.TB) *harness {
	require := require.New(t)

	h := &harness{
		t:        t,
		clock:    &clock{t: 1_700_000_000},
		log:      log.NewTestLogger(log.InfoLevel),
		network:  adapter.NewNetwork(),
		gateways: make(map[common.Address][]*adapter.Endpoint),
		events:   make(map[common.Address][]Event),
	}
	for i, kind := range testKinds {
		src, err := adapter.New(adapter.Config{
			Kind:    kind,
			Address: common.BytesToAddress([]byte{0xa0, byte(i + 1)}),
			ChainID: chainA,
			Network: h.network,
			Log:     h.log,
		})
		require.NoError(err)
		dst, err := adapter.New(adapter.Config{
			Kind:    kind,
			Address: common.BytesToAddress([]byte{0xb0, byte(i + 1)}),
			ChainID: chainB,
			Network: h.network,
			Log:     h.log,
		})
		require.NoError(err)
		require.NoError(src.SetPeer(chainB, dst.Address(), nil))
		require.NoError(dst.SetPeer(chainA, src.Address(), nil))
		h.srcAdapters = append(h.srcAdapters, src)
		h.dstAdapters = append(h.dstAdapters, dst)
	}
	return h
}

func (h *harness) config(name string, address common.Address, chainID uint64) Config {
	return Config{
		Name:    name,
		Address: address,
		ChainID: chainID,
		Admin:   admin,
		Now:     h.clock.now,
		Log:     h.log,
		OnEvent: func(e Event) {
			h.events[address] = append(h.events[address], e)
		},
	}
}

func (h *harness) connect(c *Core, receiver adapter.Receiver, remoteChainID uint64, remote common.Address, adapters []*adapter.Adapter) {
	require := require.New(h.t)

	require.NoError(c.SetControllerForChain(admin, []uint64{remoteChainID}, []common.Address{remote}))
	for _, a := range adapters {
		gw, err := a.Bind(c.Address(), receiver)
		require.NoError(err)
		require.NoError(c.SetLocalAdapter(admin, gw, true))
		h.gateways[c.Address()] = append(h.gateways[c.Address()], gw)
	}
	require.NoError(c.SetMultiBridgeAdapters(
		admin,
		[]common.Address{adapters[0].Address(), adapters[1].Address()},
		[]bool{true, true},
	))
}

// gateway returns the endpoint controller relays through on adapter i.
func (h *harness) gateway(controller common.Address, i int) *adapter.Endpoint {
	return h.gateways[controller][i]
}

func (h *harness) src(i int) common.Address { return h.srcAdapters[i].Address() }

func (h *harness) dst(i int) common.Address { return h.dstAdapters[i].Address() }

func (h *harness) deliverAll() int {
	n, err := h.network.DeliverAll(context.Background())
	require.NoError(h.t, err)
	return n
}

// deliverFrom delivers the queued packet that was relayed by src adapter i.
func (h *harness) deliverFrom(i int) error {
	for _, p := range h.network.Pending() {
		if p.Envelope.Sender == h.src(i) {
			return h.network.Deliver(context.Background(), p.ID)
		}
	}
	h.t.Fatalf("no packet from adapter %d", i)
	return nil
}

// dropFrom loses the queued packet that was relayed by src adapter i.
func (h *harness) dropFrom(i int) {
	for _, p := range h.network.Pending() {
		if p.Envelope.Sender == h.src(i) {
			require.True(h.t, h.network.Drop(p.ID))
			return
		}
	}
	h.t.Fatalf("no packet from adapter %d", i)
}

func (h *harness) eventTypes(controller common.Address) []EventType {
	var types []EventType
	for _, e := range h.events[controller] {
		types = append(types, e.Type)
	}
	return types
}

func fees(n int) []*uint256.Int {
	return make([]*uint256.Int, n)
}

func opts(n int) [][]byte {
	return make([][]byte, n)
}

// failingGateway wraps a gateway whose relays always fail.
type failingGateway struct {
	adapter.Gateway
}

func (failingGateway) Relay(context.Context, *adapter.RelayRequest) (ids.ID, error) {
	return ids.Empty, errRelayDown
}

// failingStore rejects inbound writes while failInbound is set.
type failingStore struct {
	registry.Store
	failInbound bool
}

func (s *failingStore) PutInbound(r *registry.Inbound) error {
	if s.failInbound {
		return errStoreDown
	}
	return s.Store.PutInbound(r)
}

type assetPair struct {
	*harness
	tokenA  *ledger.Token
	tokenB  *ledger.Token
	fees    *ledger.FeeCollector
	lockbox *ledger.Lockbox
	storeB  *failingStore
	a       *AssetController
	b       *AssetController
}

// newAssetPair wires burn-mint controllers on both chains with a limit of
// 1000 per adapter and for the wildcard pool. alice holds 1000 on chainA.
func newAssetPair(t testing.TB, taxBps uint64, feeBps uint64) *assetPair {
	require := require.New(t)

	h := newHarness(t)
	p := &assetPair{
		harness: h,
		tokenA:  ledger.NewToken(tokenAddr, 0),
		tokenB:  ledger.NewToken(tokenAddr, taxBps),
	}
	p.fees = ledger.NewFeeCollector(p.tokenA, treasury, feeBps)
	p.lockbox = ledger.NewLockbox(lockboxB, p.tokenB)
	p.storeB = &failingStore{Store: registry.NewMemory()}

	var err error
	p.a, err = NewAssetController(AssetConfig{
		Config:            h.config("A", controllerA, chainA),
		Token:             p.tokenA,
		ReplenishDuration: replenish,
		FeeCollector:      p.fees,
	})
	require.NoError(err)
	cfgB := h.config("B", controllerB, chainB)
	cfgB.Store = p.storeB
	p.b, err = NewAssetController(AssetConfig{
		Config:            cfgB,
		Token:             p.tokenB,
		ReplenishDuration: replenish,
		Lockbox:           p.lockbox,
		AllowUnwrapping:   true,
	})
	require.NoError(err)

	h.connect(p.a.Core, p.a, chainB, controllerB, h.srcAdapters)
	h.connect(p.b.Core, p.b, chainA, controllerA, h.dstAdapters)
	setLimits(t, p.a, h.srcAdapters, 1000)
	setLimits(t, p.b, h.dstAdapters, 1000)

	require.NoError(p.tokenA.Mint(alice, uint256.NewInt(1000)))
	return p
}

func setLimits(t testing.TB, c *AssetController, gateways []*adapter.Adapter, limit uint64) {
	l := uint256.NewInt(limit)
	for _, gw := range gateways {
		require.NoError(t, c.SetLimits(admin, gw.Address(), l, l))
	}
	require.NoError(t, c.SetLimits(admin, ratelimit.Wildcard, l, l))
}

// transfer sends amount from alice to bob through the given src adapters.
func (p *assetPair) transfer(amount uint64, unwrap bool, adapters ...int) (common.Hash, error) {
	addrs := make([]common.Address, len(adapters))
	for i, idx := range adapters {
		addrs[i] = p.src(idx)
	}
	return p.a.TransferTo(context.Background(), alice, &TransferRequest{
		Recipient:   bob,
		Amount:      uint256.NewInt(amount),
		Unwrap:      unwrap,
		DestChainID: chainB,
		Adapters:    addrs,
		Fees:        fees(len(addrs)),
		Options:     opts(len(addrs)),
	})
}

func (p *assetPair) outboundPayload(id common.Hash) []byte {
	rec, ok, err := p.a.Outbound(id)
	require.NoError(p.t, err)
	require.True(p.t, ok)
	return rec.Payload
}

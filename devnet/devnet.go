// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package devnet deploys a complete bridge between two in-memory chains:
// one adapter of every configured kind per chain, burn-mint, lock-release
// and message controllers, and the token collaborators they drive.
package devnet

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"github.com/luxfi/multibridge/adapter"
	"github.com/luxfi/multibridge/bridge"
	"github.com/luxfi/multibridge/config"
	"github.com/luxfi/multibridge/ledger"
	"github.com/luxfi/multibridge/ratelimit"
	"github.com/luxfi/multibridge/registry"
	"github.com/luxfi/multibridge/relayer"
)

// Well-known accounts of every devnet.
var (
	Admin      = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	Originator = common.HexToAddress("0x000000000000000000000000000000000000071c")
	Vetoer     = common.HexToAddress("0x0000000000000000000000000000000000007e70")
	Treasury   = common.HexToAddress("0x000000000000000000000000000000000000007e")
)

// Chain is one side of the devnet.
type Chain struct {
	ID       uint64
	Adapters []*adapter.Adapter
	Roles    *bridge.AccessControl

	// Token is the bridged token moved by burn and mint on both chains.
	Token *ledger.Token
	// Native is the canonical asset of the source chain and its wrapped
	// representation on the destination.
	Native   *ledger.Token
	Lockbox  *ledger.Lockbox
	Fees     *ledger.FeeCollector
	Strategy *ledger.Strategy
	Executor *ledger.Executor

	Asset *bridge.AssetController
	// NativeBridge moves Native. On the source chain it is the asset side
	// of Vault.
	NativeBridge *bridge.AssetController
	Vault        *bridge.LockReleaseController
	Messages     *bridge.MessageController

	attesters []*adapter.Attester
}

// AdapterAddresses returns the addresses of the adapters of the given
// kinds, in the order asked for.
func (c *Chain) AdapterAddresses(kinds ...adapter.Kind) ([]common.Address, error) {
	addrs := make([]common.Address, len(kinds))
	for i, k := range kinds {
		idx := slices.IndexFunc(c.Adapters, func(a *adapter.Adapter) bool { return a.Kind() == k })
		if idx < 0 {
			return nil, fmt.Errorf("no %s adapter on chain %d", k, c.ID)
		}
		addrs[i] = c.Adapters[idx].Address()
	}
	return addrs, nil
}

// Record is an event together with the controller that emitted it.
type Record struct {
	ChainID    uint64
	Controller string
	Event      bridge.Event
}

type Devnet struct {
	Network     *adapter.Network
	Source      *Chain
	Destination *Chain
	Registry    *prometheus.Registry

	cfg     config.Config
	now     func() uint64
	log     log.Logger
	metrics *bridge.Metrics

	mu     sync.Mutex
	events []Record
}

// New deploys the devnet described by cfg. A nil now uses the wall clock.
func New(cfg config.Config, logger log.Logger, now func() uint64) (*Devnet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	d := &Devnet{
		Network:  adapter.NewNetwork(),
		Registry: reg,
		cfg:      cfg,
		now:      now,
		log:      logger,
		metrics:  bridge.NewMetrics(reg),
	}

	var err error
	if d.Source, err = d.newChain(cfg.SourceChainID); err != nil {
		return nil, err
	}
	if d.Destination, err = d.newChain(cfg.DestinationChainID); err != nil {
		return nil, err
	}
	if err := d.peer(d.Source, d.Destination); err != nil {
		return nil, err
	}
	if err := d.peer(d.Destination, d.Source); err != nil {
		return nil, err
	}
	if err := d.deploy(d.Source, true); err != nil {
		return nil, err
	}
	if err := d.deploy(d.Destination, false); err != nil {
		return nil, err
	}
	if err := d.connect(d.Source, d.Destination); err != nil {
		return nil, err
	}
	if err := d.connect(d.Destination, d.Source); err != nil {
		return nil, err
	}
	logger.Info("devnet deployed",
		log.Uint64("sourceChainID", cfg.SourceChainID),
		log.Uint64("destinationChainID", cfg.DestinationChainID),
		log.Uint64("adapters", uint64(len(cfg.Kinds()))),
	)
	return d, nil
}

// Events returns every event emitted so far, in order.
func (d *Devnet) Events() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.events)
}

// Relayer builds a relayer watching every controller pair in both
// directions. Multi-bridge adapters are tried first as fallbacks.
func (d *Devnet) Relayer(cfg config.RelayerConfig, reg prometheus.Registerer) (*relayer.Relayer, error) {
	var routes []relayer.Route
	for _, pair := range [][2]*Chain{{d.Source, d.Destination}, {d.Destination, d.Source}} {
		src, dst := pair[0], pair[1]
		fallbacks, err := d.fallbacks(src)
		if err != nil {
			return nil, err
		}
		routes = append(routes,
			relayer.Route{Source: src.Asset, Destination: dst.Asset, Fallbacks: fallbacks},
			relayer.Route{Source: src.NativeBridge, Destination: dst.NativeBridge, Fallbacks: fallbacks},
			relayer.Route{Source: src.Messages, Destination: dst.Messages, Fallbacks: fallbacks},
		)
	}
	var metrics *relayer.Metrics
	if reg != nil {
		metrics = relayer.NewMetrics(reg)
	}
	return relayer.New(relayer.Config{
		Network:      d.Network,
		Routes:       routes,
		Interval:     cfg.Interval,
		RetryTimeout: cfg.RetryTimeout,
		StaleAfter:   cfg.StaleAfter,
		StatusTTL:    cfg.StatusTTL,
		Now:          d.now,
		Log:          d.log,
		Metrics:      metrics,
	})
}

func (d *Devnet) fallbacks(c *Chain) ([]common.Address, error) {
	multi, err := c.AdapterAddresses(d.cfg.MultiBridgeKinds()...)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(multi)
	for _, a := range c.Adapters {
		if !slices.Contains(out, a.Address()) {
			out = append(out, a.Address())
		}
	}
	return out, nil
}

func (d *Devnet) newChain(chainID uint64) (*Chain, error) {
	c := &Chain{ID: chainID, Roles: bridge.NewAccessControl(Admin)}
	for _, kind := range d.cfg.Kinds() {
		var attester *adapter.Attester
		if kind.RequiresAttestation() {
			seed := blake3.Sum256(tagBytes(chainID, "attester", kind.String()))
			var err error
			if attester, err = adapter.NewAttester(seed[:]); err != nil {
				return nil, err
			}
		}
		a, err := adapter.New(adapter.Config{
			Kind:     kind,
			Address:  deriveAddress(chainID, "adapter", kind.String()),
			ChainID:  chainID,
			Network:  d.Network,
			Attester: attester,
			Log:      d.log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter on chain %d: %w", kind, chainID, err)
		}
		c.Adapters = append(c.Adapters, a)
		c.attesters = append(c.attesters, attester)
	}
	return c, nil
}

// peer points every adapter of local at its counterpart on remote.
func (d *Devnet) peer(local, remote *Chain) error {
	for i, a := range local.Adapters {
		var key []byte
		if att := remote.attesters[i]; att != nil {
			key = att.PublicKey()
		}
		if err := a.SetPeer(remote.ID, remote.Adapters[i].Address(), key); err != nil {
			return err
		}
	}
	return nil
}

func (d *Devnet) deploy(c *Chain, source bool) error {
	c.Token = ledger.NewToken(deriveAddress(c.ID, "token", "xtoken"), d.cfg.BridgeTaxBps)
	c.Native = ledger.NewToken(deriveAddress(c.ID, "token", "native"), 0)
	c.Lockbox = ledger.NewLockbox(deriveAddress(c.ID, "lockbox", "xtoken"), c.Token)
	c.Fees = ledger.NewFeeCollector(c.Token, Treasury, d.cfg.MultiBridgeFeeBps)
	c.Executor = ledger.NewExecutor()

	var err error
	c.Asset, err = bridge.NewAssetController(bridge.AssetConfig{
		Config:            d.controllerConfig(c, "asset"),
		Token:             c.Token,
		ReplenishDuration: d.cfg.ReplenishDuration,
		FeeCollector:      c.Fees,
		Lockbox:           c.Lockbox,
		AllowUnwrapping:   true,
	})
	if err != nil {
		return err
	}

	nativeCfg := bridge.AssetConfig{
		Config:            d.controllerConfig(c, "native"),
		Token:             c.Native,
		ReplenishDuration: d.cfg.ReplenishDuration,
	}
	if source {
		c.Strategy = ledger.NewStrategy(deriveAddress(c.ID, "strategy", "native"), c.Native.Address(), c.Native)
		if c.Vault, err = bridge.NewLockReleaseController(nativeCfg); err != nil {
			return err
		}
		if err := c.Vault.AttachStrategy(Admin, c.Strategy); err != nil {
			return err
		}
		c.NativeBridge = c.Vault.AssetController
	} else if c.NativeBridge, err = bridge.NewAssetController(nativeCfg); err != nil {
		return err
	}

	c.Messages, err = bridge.NewMessageController(bridge.MessageConfig{
		Config:        d.controllerConfig(c, "messages"),
		TimelockDelay: d.cfg.TimelockDelay,
		MessageExpiry: d.cfg.MessageExpiry,
		Vetoer:        Vetoer,
		Executor:      c.Executor,
	})
	if err != nil {
		return err
	}
	return c.Roles.Grant(Admin, bridge.MessageOriginatorRole, Originator)
}

func (d *Devnet) controllerConfig(c *Chain, name string) bridge.Config {
	var store registry.Store
	if d.cfg.Storage == config.StorageDatabase {
		store = registry.NewDatabase(memdb.New())
	}
	return bridge.Config{
		Name:       fmt.Sprintf("%s-%d", name, c.ID),
		Address:    deriveAddress(c.ID, "controller", name),
		ChainID:    c.ID,
		Roles:      c.Roles,
		Store:      store,
		MinBridges: d.cfg.MinBridges,
		Now:        d.now,
		Log:        d.log,
		Metrics:    d.metrics,
		OnEvent: func(e bridge.Event) {
			d.mu.Lock()
			d.events = append(d.events, Record{ChainID: c.ID, Controller: name, Event: e})
			d.mu.Unlock()
		},
	}
}

// connect routes every controller of local to its peer on remote through
// all of local's adapters.
func (d *Devnet) connect(local, remote *Chain) error {
	multi, err := local.AdapterAddresses(d.cfg.MultiBridgeKinds()...)
	if err != nil {
		return err
	}
	enabled := slices.Repeat([]bool{true}, len(multi))

	type endpoint struct {
		core     *bridge.Core
		receiver adapter.Receiver
		remote   common.Address
		asset    *bridge.AssetController
	}
	endpoints := []endpoint{
		{local.Asset.Core, local.Asset, remote.Asset.Address(), local.Asset},
		{local.NativeBridge.Core, local.NativeBridge, remote.NativeBridge.Address(), local.NativeBridge},
		{local.Messages.Core, local.Messages, remote.Messages.Address(), nil},
	}
	for _, ep := range endpoints {
		if err := ep.core.SetControllerForChain(Admin, []uint64{remote.ID}, []common.Address{ep.remote}); err != nil {
			return err
		}
		for _, a := range local.Adapters {
			gw, err := a.Bind(ep.core.Address(), ep.receiver)
			if err != nil {
				return err
			}
			if err := ep.core.SetLocalAdapter(Admin, gw, true); err != nil {
				return err
			}
		}
		if err := ep.core.SetMultiBridgeAdapters(Admin, multi, enabled); err != nil {
			return err
		}
		if ep.asset != nil {
			if err := d.setLimits(ep.asset, local.Adapters); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Devnet) setLimits(a *bridge.AssetController, adapters []*adapter.Adapter) error {
	mint, burn := d.cfg.MintLimitValue(), d.cfg.BurnLimitValue()
	for _, gw := range adapters {
		if err := a.SetLimits(Admin, gw.Address(), mint, burn); err != nil {
			return err
		}
	}
	return a.SetLimits(Admin, ratelimit.Wildcard, mint, burn)
}

// Fund mints amount of the bridged and native tokens to account on c.
func Fund(c *Chain, account common.Address, amount *uint256.Int) error {
	if err := c.Token.Mint(account, amount); err != nil {
		return err
	}
	return c.Native.Mint(account, amount)
}

func tagBytes(chainID uint64, tags ...string) []byte {
	b := binary.BigEndian.AppendUint64(nil, chainID)
	for _, t := range tags {
		b = append(b, t...)
		b = append(b, 0)
	}
	return b
}

func deriveAddress(chainID uint64, tags ...string) common.Address {
	return common.BytesToAddress(crypto.Keccak256(tagBytes(chainID, tags...)))
}

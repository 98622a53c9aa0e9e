// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge implements the asset and message controllers that sit
// between users and the adapter gateways.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/adapter"
	"github.com/luxfi/multibridge/consensus"
	"github.com/luxfi/multibridge/registry"
)

// DefaultMinBridges is the multi-bridge threshold used when none is set.
const DefaultMinBridges = 2

var (
	_ PauseState         = (*Core)(nil)
	_ ControllerRegistry = (*Core)(nil)
)

// Config is shared by every controller.
type Config struct {
	// Name labels logs and metrics.
	Name    string
	Address common.Address
	ChainID uint64
	// Admin receives DefaultAdminRole when Roles is nil.
	Admin common.Address
	Roles RoleChecker
	// Store defaults to an in-memory registry.
	Store      registry.Store
	MinBridges uint64
	// Now returns unix seconds; nil uses the wall clock.
	Now     func() uint64
	Log     log.Logger
	Metrics *Metrics
	// OnEvent is called after an operation commits, outside the
	// controller lock.
	OnEvent func(Event)
}

// Core is the state every controller shares: routing tables, the adapter
// registry, the pause switches and the delivery engine.
type Core struct {
	name    string
	address common.Address
	chainID uint64
	roles   RoleChecker
	store   registry.Store
	now     func() uint64
	log     log.Logger
	metrics *Metrics
	onEvent func(Event)

	mu                 sync.Mutex
	paused             bool
	controllers        map[uint64]common.Address
	adapters           map[common.Address]adapter.Gateway
	multiBridge        set.Set[common.Address]
	pausedDestinations set.Set[uint64]
	minBridges         uint64
	engine             *consensus.Engine
}

type engineParams struct {
	mode     consensus.Mode
	timelock time.Duration
	expiry   time.Duration
}

func newCore(cfg Config, ep engineParams) (*Core, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: controller address", multibridge.ErrZeroAddress)
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("%w: nil logger", multibridge.ErrInvalidParams)
	}
	roles := cfg.Roles
	if roles == nil {
		if cfg.Admin == (common.Address{}) {
			return nil, fmt.Errorf("%w: admin", multibridge.ErrZeroAddress)
		}
		roles = NewAccessControl(cfg.Admin)
	}
	minBridges := cfg.MinBridges
	if minBridges == 0 {
		minBridges = DefaultMinBridges
	}
	if minBridges < 2 {
		return nil, fmt.Errorf("%w: min bridges %d", multibridge.ErrInvalidThreshold, minBridges)
	}
	store := cfg.Store
	if store == nil {
		store = registry.NewMemory()
	}
	now := cfg.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Address.Hex()
	}
	logger := cfg.Log
	engine, err := consensus.New(consensus.Config{
		Mode:          ep.mode,
		Store:         store,
		TimelockDelay: ep.timelock,
		Expiry:        ep.expiry,
		Now:           now,
		Log:           logger,
	})
	if err != nil {
		return nil, err
	}

	return &Core{
		name:               name,
		address:            cfg.Address,
		chainID:            cfg.ChainID,
		roles:              roles,
		store:              store,
		now:                now,
		log:                logger,
		metrics:            metrics,
		onEvent:            cfg.OnEvent,
		controllers:        make(map[uint64]common.Address),
		adapters:           make(map[common.Address]adapter.Gateway),
		multiBridge:        set.NewSet[common.Address](0),
		pausedDestinations: set.NewSet[uint64](0),
		minBridges:         minBridges,
		engine:             engine,
	}, nil
}

func (c *Core) Address() common.Address { return c.address }

func (c *Core) ChainID() uint64 { return c.chainID }

// Roles returns the permission table the controller consults.
func (c *Core) Roles() RoleChecker { return c.roles }

func (c *Core) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ControllerForChain returns the trusted controller on chainID.
func (c *Core) ControllerForChain(chainID uint64) (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.controllers[chainID]
	return addr, ok
}

// MinBridges returns the threshold applied to multi-bridge asset transfers.
func (c *Core) MinBridges() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minBridges
}

// IsMultiBridgeAdapter reports whether addr may carry threshold>1 payloads.
func (c *Core) IsMultiBridgeAdapter(addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiBridge.Contains(addr)
}

// Inbound returns the destination-side record for id.
func (c *Core) Inbound(id common.Hash) (*registry.Inbound, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Record(id)
}

// Outbound returns the source-side record for id.
func (c *Core) Outbound(id common.Hash) (*registry.Outbound, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Outbound(id)
}

// RangeOutbound calls fn for each outbound record in creation order until
// fn returns false.
func (c *Core) RangeOutbound(fn func(*registry.Outbound) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.RangeOutbound(fn)
}

// SetControllerForChain registers the trusted remote controller for each
// chain. A zero controller removes the route.
func (c *Core) SetControllerForChain(caller common.Address, chainIDs []uint64, controllers []common.Address) error {
	if err := requireRole(c.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	if len(chainIDs) != len(controllers) {
		return fmt.Errorf("%w: %d chains, %d controllers", multibridge.ErrArrayLengthMismatch, len(chainIDs), len(controllers))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, chainID := range chainIDs {
		if controllers[i] == (common.Address{}) {
			delete(c.controllers, chainID)
			continue
		}
		c.controllers[chainID] = controllers[i]
	}
	return nil
}

// SetLocalAdapter enables or disables gw as a transport of this controller.
// An enabled gateway must be bound to this controller. Disabling also
// removes it from the multi-bridge whitelist.
func (c *Core) SetLocalAdapter(caller common.Address, gw adapter.Gateway, enabled bool) error {
	if err := requireRole(c.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	if gw == nil || gw.Address() == (common.Address{}) {
		return fmt.Errorf("%w: adapter", multibridge.ErrZeroAddress)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled {
		if gw.Controller() != c.address {
			return fmt.Errorf("%w: %s relays for %s", multibridge.ErrGatewayNotBound, gw.Address(), gw.Controller())
		}
		c.adapters[gw.Address()] = gw
		return nil
	}
	delete(c.adapters, gw.Address())
	c.multiBridge.Remove(gw.Address())
	return nil
}

// SetMultiBridgeAdapters sets the whitelist flag of each local adapter.
func (c *Core) SetMultiBridgeAdapters(caller common.Address, addrs []common.Address, enabled []bool) error {
	if err := requireRole(c.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	if len(addrs) != len(enabled) {
		return fmt.Errorf("%w: %d adapters, %d flags", multibridge.ErrArrayLengthMismatch, len(addrs), len(enabled))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, addr := range addrs {
		if !enabled[i] {
			c.multiBridge.Remove(addr)
			continue
		}
		if _, ok := c.adapters[addr]; !ok {
			return fmt.Errorf("%w: %s is not a local adapter", multibridge.ErrAdapterNotAllowed, addr)
		}
		c.multiBridge.Add(addr)
	}
	return nil
}

// SetMinBridges changes the multi-bridge asset threshold.
func (c *Core) SetMinBridges(caller common.Address, minBridges uint64) error {
	if err := requireRole(c.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	if minBridges < 2 {
		return fmt.Errorf("%w: min bridges %d", multibridge.ErrInvalidThreshold, minBridges)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minBridges = minBridges
	return nil
}

// SetDestinationPaused stops or resumes sends to chainID.
func (c *Core) SetDestinationPaused(caller common.Address, chainID uint64, paused bool) error {
	if err := requireRole(c.roles, PauserRole, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if paused {
		c.pausedDestinations.Add(chainID)
	} else {
		c.pausedDestinations.Remove(chainID)
	}
	return nil
}

func (c *Core) Pause(caller common.Address) error {
	return c.setPaused(caller, true)
}

func (c *Core) Unpause(caller common.Address) error {
	return c.setPaused(caller, false)
}

func (c *Core) setPaused(caller common.Address, paused bool) error {
	if err := requireRole(c.roles, PauserRole, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
	if paused {
		c.log.Info("controller paused", log.Stringer("controller", c.address))
	} else {
		c.log.Info("controller unpaused", log.Stringer("controller", c.address))
	}
	return nil
}

// route is a validated outbound path.
type route struct {
	destChainID uint64
	target      common.Address
	gateways    []adapter.Gateway
	fees        []*uint256.Int
	options     [][]byte
}

// validateRoute checks that sends to destChainID are possible right now.
func (c *Core) validateRoute(destChainID uint64) (common.Address, error) {
	if c.paused {
		return common.Address{}, multibridge.ErrPaused
	}
	target, ok := c.controllers[destChainID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", multibridge.ErrControllerChainNotSupported, destChainID)
	}
	if c.pausedDestinations.Contains(destChainID) {
		return common.Address{}, fmt.Errorf("%w: %d", multibridge.ErrTransfersPausedToDestination, destChainID)
	}
	return target, nil
}

// validateAdapters checks an adapter list with its parallel fees and
// options, one entry per adapter. Multi-bridge sends require every adapter
// to be whitelisted.
func (c *Core) validateAdapters(
	destChainID uint64,
	target common.Address,
	addrs []common.Address,
	fees []*uint256.Int,
	options [][]byte,
	value *uint256.Int,
	multi bool,
) (*route, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no adapters", multibridge.ErrInvalidParams)
	}
	if len(fees) != len(addrs) || len(options) != len(addrs) {
		return nil, fmt.Errorf("%w: %d adapters, %d fees, %d options", multibridge.ErrArrayLengthMismatch, len(addrs), len(fees), len(options))
	}
	if multibridge.HasDuplicates(addrs) {
		return nil, multibridge.ErrDuplicateAdapter
	}

	r := &route{
		destChainID: destChainID,
		target:      target,
		gateways:    make([]adapter.Gateway, len(addrs)),
		fees:        make([]*uint256.Int, len(addrs)),
		options:     options,
	}
	for i, addr := range addrs {
		gw, ok := c.adapters[addr]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a local adapter", multibridge.ErrAdapterNotAllowed, addr)
		}
		if multi && !c.multiBridge.Contains(addr) {
			return nil, fmt.Errorf("%w: %s is not whitelisted for multi-bridge sends", multibridge.ErrAdapterNotAllowed, addr)
		}
		fee := multibridge.OrZero(fees[i])
		if err := gw.CanRelay(destChainID, fee); err != nil {
			return nil, err
		}
		r.gateways[i] = gw
		r.fees[i] = fee
	}

	total, err := multibridge.SumFees(r.fees)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", multibridge.ErrFeesSumMismatch, err)
	}
	if !total.Eq(multibridge.OrZero(value)) {
		return nil, fmt.Errorf("%w: fees %s, value %s", multibridge.ErrFeesSumMismatch, total.Dec(), multibridge.OrZero(value).Dec())
	}
	return r, nil
}

// relayed is one successful adapter leg.
type relayed struct {
	adapter     common.Address
	kind        adapter.Kind
	transportID ids.ID
}

// relayAll hands payload to every gateway of r. A failure on the first leg
// is returned as is and nothing was sent. A later failure returns the legs
// that went out together with an error wrapping ErrPartialRelay.
func (c *Core) relayAll(ctx context.Context, r *route, payload []byte) ([]relayed, error) {
	out := make([]relayed, 0, len(r.gateways))
	var errs []error
	for i, gw := range r.gateways {
		transportID, err := gw.Relay(ctx, &adapter.RelayRequest{
			DestChainID: r.destChainID,
			Target:      r.target,
			Payload:     payload,
			Options:     r.options[i],
			Fee:         r.fees[i],
		})
		if err != nil {
			if len(out) == 0 {
				return nil, fmt.Errorf("relay via %s failed: %w", gw.Address(), err)
			}
			c.log.Warn("relay leg failed",
				log.Stringer("adapter", gw.Address()),
				log.Stringer("kind", gw.Kind()),
				log.Err(err),
			)
			errs = append(errs, fmt.Errorf("relay via %s failed: %w", gw.Address(), err))
			continue
		}
		out = append(out, relayed{adapter: gw.Address(), kind: gw.Kind(), transportID: transportID})
		c.metrics.relayedCount.WithLabelValues(c.name, gw.Kind().String()).Inc()
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("%w: %w", multibridge.ErrPartialRelay, errors.Join(errs...))
	}
	return out, nil
}

// admitDelivery authenticates an inbound call before its payload is read.
func (c *Core) admitDelivery(adapterAddr common.Address, originChainID uint64, originSender common.Address) error {
	if c.paused {
		return multibridge.ErrPaused
	}
	if _, ok := c.adapters[adapterAddr]; !ok {
		return fmt.Errorf("%w: %s is not a local adapter", multibridge.ErrAdapterNotAllowed, adapterAddr)
	}
	controller, ok := c.controllers[originChainID]
	if !ok || controller != originSender {
		return fmt.Errorf("%w: %s on chain %d", multibridge.ErrInvalidOriginSender, originSender, originChainID)
	}
	return nil
}

// admitThreshold rejects multi-bridge payloads carried by an adapter that
// is not whitelisted for them.
func (c *Core) admitThreshold(adapterAddr common.Address, threshold uint64) error {
	if threshold > 1 && !c.multiBridge.Contains(adapterAddr) {
		return fmt.Errorf("%w: %s is not whitelisted for multi-bridge deliveries", multibridge.ErrAdapterNotAllowed, adapterAddr)
	}
	return nil
}

// reserveNonce returns the next outbound nonce and advances the counter,
// registering the rollback on j.
func (c *Core) reserveNonce(j *journal) (uint64, error) {
	nonce, err := c.store.Nonce()
	if err != nil {
		return 0, fmt.Errorf("failed to read nonce: %w", err)
	}
	next, err := multibridge.AddUint64(nonce, 1)
	if err != nil {
		return 0, err
	}
	if err := c.store.SetNonce(next); err != nil {
		return 0, fmt.Errorf("failed to advance nonce: %w", err)
	}
	j.add(func() error { return c.store.SetNonce(nonce) })
	return nonce, nil
}

func (c *Core) newJournal() *journal {
	return &journal{log: c.log}
}

func (c *Core) publish(events []Event) {
	if c.onEvent == nil {
		return
	}
	for _, e := range events {
		c.onEvent(e)
	}
}

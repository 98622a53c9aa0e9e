// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/payload"
)

var (
	_ Gateway = (*Endpoint)(nil)

	errInFlight = errors.New("envelope delivery in flight")
)

// Config configures an Adapter
type Config struct {
	Kind    Kind
	Address common.Address
	ChainID uint64
	Network *Network
	// Domains maps chain ids to transport domains. Missing entries fall
	// back to Kind.DefaultDomain.
	Domains map[uint64]uint32
	// Attester is required for transports that sign envelopes.
	Attester *Attester
	MinFee   *uint256.Int
	Log      log.Logger
}

// Adapter is a generic transport endpoint. The transport specific parts are
// its domain namespace, whether envelopes are attested and its minimum fee.
type Adapter struct {
	kind     Kind
	address  common.Address
	chainID  uint64
	network  *Network
	attester *Attester
	minFee   *uint256.Int
	log      log.Logger

	mu        sync.Mutex
	domains   map[uint64]uint32
	chains    map[uint32]uint64
	peers     map[uint64]common.Address
	keys      map[uint64]*bls.PublicKey
	receivers map[common.Address]Receiver
	processed set.Set[ids.ID]
	inFlight  set.Set[ids.ID]
	nonce     uint64
	fees      *uint256.Int
}

// New creates an adapter and registers it on its network.
func New(cfg Config) (*Adapter, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: adapter address", multibridge.ErrZeroAddress)
	}
	if cfg.Network == nil || cfg.Log == nil {
		return nil, fmt.Errorf("%w: network and logger are required", multibridge.ErrInvalidParams)
	}
	if cfg.Kind.RequiresAttestation() && cfg.Attester == nil {
		return nil, fmt.Errorf("%w: %s adapter needs an attester", multibridge.ErrInvalidParams, cfg.Kind)
	}

	a := &Adapter{
		kind:      cfg.Kind,
		address:   cfg.Address,
		chainID:   cfg.ChainID,
		network:   cfg.Network,
		attester:  cfg.Attester,
		minFee:    multibridge.OrZero(cfg.MinFee),
		log:       cfg.Log,
		domains:   make(map[uint64]uint32),
		chains:    make(map[uint32]uint64),
		peers:     make(map[uint64]common.Address),
		keys:      make(map[uint64]*bls.PublicKey),
		receivers: make(map[common.Address]Receiver),
		processed: set.NewSet[ids.ID](0),
		inFlight:  set.NewSet[ids.ID](0),
		fees:      new(uint256.Int),
	}
	if err := a.setDomain(cfg.ChainID, cfg.Domains); err != nil {
		return nil, err
	}
	for chainID := range cfg.Domains {
		if err := a.setDomain(chainID, cfg.Domains); err != nil {
			return nil, err
		}
	}
	if err := cfg.Network.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) setDomain(chainID uint64, overrides map[uint64]uint32) error {
	domain, ok := overrides[chainID]
	if !ok {
		domain = a.kind.DefaultDomain(chainID)
	}
	if other, ok := a.chains[domain]; ok && other != chainID {
		return fmt.Errorf("%w: %s domain %d maps to chains %d and %d", multibridge.ErrInvalidParams, a.kind, domain, other, chainID)
	}
	a.domains[chainID] = domain
	a.chains[domain] = chainID
	return nil
}

func (a *Adapter) Address() common.Address { return a.address }

func (a *Adapter) Kind() Kind { return a.kind }

func (a *Adapter) ChainID() uint64 { return a.chainID }

// Fees returns the total fees paid into this adapter.
func (a *Adapter) Fees() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fees.Clone()
}

// Bind registers controller as a local user of the adapter. Payloads
// addressed to controller are handed to r, and the returned Endpoint is the
// only way to relay with controller as the origin sender. A controller is
// bound at most once.
func (a *Adapter) Bind(controller common.Address, r Receiver) (*Endpoint, error) {
	if controller == (common.Address{}) {
		return nil, fmt.Errorf("%w: controller", multibridge.ErrZeroAddress)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: nil receiver for %s", multibridge.ErrInvalidParams, controller)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.receivers[controller]; ok {
		return nil, fmt.Errorf("%w: %s on %s adapter %s", multibridge.ErrAlreadyBound, controller, a.kind, a.address)
	}
	a.receivers[controller] = r
	return &Endpoint{adapter: a, controller: controller}, nil
}

// SetPeer trusts peer as the adapter of the same transport on chainID.
// attestationKey is the peer's compressed BLS key and is required for
// transports that sign envelopes.
func (a *Adapter) SetPeer(chainID uint64, peer common.Address, attestationKey []byte) error {
	if peer == (common.Address{}) {
		return fmt.Errorf("%w: peer for chain %d", multibridge.ErrZeroAddress, chainID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.domains[chainID]; !ok {
		if err := a.setDomain(chainID, nil); err != nil {
			return err
		}
	}
	if a.kind.RequiresAttestation() {
		pk, err := bls.PublicKeyFromCompressedBytes(attestationKey)
		if err != nil {
			return fmt.Errorf("%w: peer key for chain %d: %v", multibridge.ErrInvalidParams, chainID, err)
		}
		a.keys[chainID] = pk
	}
	a.peers[chainID] = peer
	return nil
}

// CanRelay reports whether a payload paying fee could be relayed to
// destChainID.
func (a *Adapter) CanRelay(destChainID uint64, fee *uint256.Int) error {
	if err := a.checkFee(fee); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _, err := a.route(destChainID)
	return err
}

func (a *Adapter) checkFee(fee *uint256.Int) error {
	fee = multibridge.OrZero(fee)
	if fee.Lt(a.minFee) {
		return fmt.Errorf("%w: %s < %s", multibridge.ErrInsufficientFee, fee.Dec(), a.minFee.Dec())
	}
	return nil
}

func (a *Adapter) route(destChainID uint64) (uint32, common.Address, error) {
	domain, ok := a.domains[destChainID]
	if !ok || destChainID == a.chainID {
		return 0, common.Address{}, fmt.Errorf("%w: %s to chain %d", multibridge.ErrChainNotSupported, a.kind, destChainID)
	}
	peer, ok := a.peers[destChainID]
	if !ok {
		return 0, common.Address{}, fmt.Errorf("%w: %s has no peer on chain %d", multibridge.ErrChainNotSupported, a.kind, destChainID)
	}
	return domain, peer, nil
}

func (a *Adapter) relay(ctx context.Context, sender common.Address, req *RelayRequest) (ids.ID, error) {
	if err := ctx.Err(); err != nil {
		return ids.Empty, err
	}
	if err := a.checkFee(req.Fee); err != nil {
		return ids.Empty, err
	}
	body, err := payload.NewAddressedCall(sender, req.Payload)
	if err != nil {
		return ids.Empty, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	domain, peer, err := a.route(req.DestChainID)
	if err != nil {
		return ids.Empty, err
	}
	env := &Envelope{
		Kind:         a.kind,
		SourceDomain: a.domains[a.chainID],
		DestDomain:   domain,
		Sender:       a.address,
		Recipient:    peer,
		Target:       req.Target,
		Nonce:        a.nonce + 1,
		Options:      req.Options,
		Body:         body.Bytes(),
	}
	if a.attester != nil {
		sig, err := a.attester.Sign(env.UnsignedBytes())
		if err != nil {
			return ids.Empty, fmt.Errorf("failed to attest envelope: %w", err)
		}
		env.Signature = sig
	}
	id := env.ID()
	if err := a.network.Publish(&Packet{
		ID:            id,
		OriginChainID: a.chainID,
		DestChainID:   req.DestChainID,
		Envelope:      env,
	}); err != nil {
		return ids.Empty, err
	}
	a.nonce++
	a.fees.Add(a.fees, multibridge.OrZero(req.Fee))

	a.log.Debug("relayed envelope",
		log.Stringer("kind", a.kind),
		log.Stringer("id", id),
		log.Stringer("sender", sender),
		log.Uint64("destChainID", req.DestChainID),
	)
	return id, nil
}

// Receive verifies an inbound envelope and hands its payload to the bound
// receiver. An envelope is only marked processed once the receiver accepts
// it, so rejected envelopes may be retried.
func (a *Adapter) Receive(ctx context.Context, env *Envelope) error {
	id := env.ID()
	originChainID, receiver, err := a.admit(id, env)
	if err != nil {
		return err
	}

	err = a.dispatch(ctx, receiver, originChainID, env)

	a.mu.Lock()
	a.inFlight.Remove(id)
	if err == nil {
		a.processed.Add(id)
	}
	a.mu.Unlock()
	return err
}

func (a *Adapter) admit(id ids.ID, env *Envelope) (uint64, Receiver, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if env.Kind != a.kind {
		return 0, nil, fmt.Errorf("%w: got %s, want %s", multibridge.ErrTransportKindMismatch, env.Kind, a.kind)
	}
	if env.Recipient != a.address || env.DestDomain != a.domains[a.chainID] {
		return 0, nil, fmt.Errorf("%w: envelope %s is not for this adapter", multibridge.ErrChainNotSupported, id)
	}
	originChainID, ok := a.chains[env.SourceDomain]
	if !ok {
		return 0, nil, fmt.Errorf("%w: unknown %s domain %d", multibridge.ErrChainNotSupported, a.kind, env.SourceDomain)
	}
	if peer, ok := a.peers[originChainID]; !ok || peer != env.Sender {
		return 0, nil, fmt.Errorf("%w: %s on chain %d", multibridge.ErrUntrustedPeer, env.Sender, originChainID)
	}
	if a.kind.RequiresAttestation() {
		if err := verifyAttestation(a.keys[originChainID], env.UnsignedBytes(), env.Signature); err != nil {
			return 0, nil, err
		}
	}
	if a.processed.Contains(id) {
		return 0, nil, fmt.Errorf("%w: %s", multibridge.ErrAlreadyProcessed, id)
	}
	if a.inFlight.Contains(id) {
		return 0, nil, fmt.Errorf("%w: %s", errInFlight, id)
	}
	receiver, ok := a.receivers[env.Target]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", multibridge.ErrNoReceiver, env.Target)
	}
	a.inFlight.Add(id)
	return originChainID, receiver, nil
}

func (a *Adapter) dispatch(ctx context.Context, receiver Receiver, originChainID uint64, env *Envelope) error {
	call, err := payload.ParseAddressedCall(env.Body)
	if err != nil {
		return err
	}
	return receiver.Deliver(ctx, a.address, originChainID, call.SourceAddress, call.Payload)
}

// Processed reports whether the envelope with id was accepted.
func (a *Adapter) Processed(id ids.ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed.Contains(id)
}

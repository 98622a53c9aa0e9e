// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/adapter"
	"github.com/luxfi/multibridge/consensus"
	"github.com/luxfi/multibridge/payload"
	"github.com/luxfi/multibridge/ratelimit"
	"github.com/luxfi/multibridge/registry"
)

var _ adapter.Receiver = (*AssetController)(nil)

// AssetConfig configures a burn-mint or lock-release controller.
type AssetConfig struct {
	Config
	Token             Token
	ReplenishDuration time.Duration
	// FeeCollector charges multi-bridge transfers; nil disables the fee.
	FeeCollector FeeCollector
	// Lockbox is used to unwrap released tokens when AllowUnwrapping is set.
	Lockbox         Lockbox
	AllowUnwrapping bool
}

// TransferRequest is one transferTo call.
type TransferRequest struct {
	Recipient   common.Address
	Amount      *uint256.Int
	Unwrap      bool
	DestChainID uint64
	// Adapters carries the transfer; more than one makes it a
	// multi-bridge transfer.
	Adapters []common.Address
	Fees     []*uint256.Int
	Options  [][]byte
	// Value is the native amount paid with the call. It must equal the
	// sum of Fees.
	Value *uint256.Int
}

// custody is the part that differs between burn-mint and lock-release.
type custody interface {
	// take removes amount from the sender on the source chain.
	take(from common.Address, amount *uint256.Int, j *journal) error
	// release pays out an executed transfer on the destination chain.
	release(p *payload.TransferPayload, j *journal) (*released, error)
}

type released struct {
	amount    *uint256.Int
	unwrapped bool
	fallback  bool
}

// AssetController bridges a token by burning on the source chain and
// minting on the destination.
type AssetController struct {
	*Core

	token           Token
	limiter         *ratelimit.Limiter
	fees            FeeCollector
	lockbox         Lockbox
	allowUnwrapping bool
	custody         custody
}

// NewAssetController creates a burn-mint controller.
func NewAssetController(cfg AssetConfig) (*AssetController, error) {
	a, err := newAssetController(cfg)
	if err != nil {
		return nil, err
	}
	a.custody = burnMint{a}
	return a, nil
}

func newAssetController(cfg AssetConfig) (*AssetController, error) {
	if cfg.Token == nil {
		return nil, fmt.Errorf("%w: token", multibridge.ErrZeroAddress)
	}
	if cfg.ReplenishDuration < time.Second {
		return nil, fmt.Errorf("%w: replenish duration %s", multibridge.ErrZeroDuration, cfg.ReplenishDuration)
	}
	core, err := newCore(cfg.Config, engineParams{mode: consensus.ApplyOnThreshold})
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(cfg.ReplenishDuration, core.now)
	if err != nil {
		return nil, err
	}
	return &AssetController{
		Core:            core,
		token:           cfg.Token,
		limiter:         limiter,
		fees:            cfg.FeeCollector,
		lockbox:         cfg.Lockbox,
		allowUnwrapping: cfg.AllowUnwrapping,
	}, nil
}

func (a *AssetController) Token() Token { return a.token }

// SetLimits sets the mint and burn maximums of bridge. ratelimit.Wildcard
// addresses the pool shared by multi-bridge transfers.
func (a *AssetController) SetLimits(caller, bridge common.Address, mintLimit, burnLimit *uint256.Int) error {
	if err := requireRole(a.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	if err := a.limiter.SetLimits(bridge, mintLimit, burnLimit); err != nil {
		return err
	}
	a.log.Info("limits updated",
		log.Stringer("bridge", bridge),
		log.Stringer("mintLimit", multibridge.OrZero(mintLimit)),
		log.Stringer("burnLimit", multibridge.OrZero(burnLimit)),
	)
	return nil
}

// CurrentLimit returns bridge's available allowance in direction dir.
func (a *AssetController) CurrentLimit(bridge common.Address, dir ratelimit.Direction) *uint256.Int {
	return a.limiter.CurrentLimit(bridge, dir)
}

// MaxLimit returns bridge's configured maximum in direction dir.
func (a *AssetController) MaxLimit(bridge common.Address, dir ratelimit.Direction) *uint256.Int {
	return a.limiter.MaxLimit(bridge, dir)
}

// TransferTo sends amount of the caller's tokens to req.Recipient on
// req.DestChainID. The returned id is valid whenever it is non-zero, even
// if a later relay leg failed and the error wraps ErrPartialRelay.
func (a *AssetController) TransferTo(ctx context.Context, caller common.Address, req *TransferRequest) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	a.mu.Lock()
	id, events, err := a.transferTo(context.WithoutCancel(ctx), caller, req)
	a.mu.Unlock()

	a.publish(events)
	return id, err
}

func (a *AssetController) transferTo(ctx context.Context, caller common.Address, req *TransferRequest) (common.Hash, []Event, error) {
	amount := multibridge.OrZero(req.Amount)
	if amount.IsZero() {
		return common.Hash{}, nil, multibridge.ErrZeroAmount
	}
	if req.Recipient == (common.Address{}) {
		return common.Hash{}, nil, fmt.Errorf("%w: recipient", multibridge.ErrZeroAddress)
	}
	target, err := a.validateRoute(req.DestChainID)
	if err != nil {
		return common.Hash{}, nil, err
	}

	multi := len(req.Adapters) > 1
	if multi && uint64(len(req.Adapters)) < a.minBridges {
		return common.Hash{}, nil, fmt.Errorf("%w: %d adapters, need %d", multibridge.ErrMinBridgesNotMet, len(req.Adapters), a.minBridges)
	}
	r, err := a.validateAdapters(req.DestChainID, target, req.Adapters, req.Fees, req.Options, req.Value, multi)
	if err != nil {
		return common.Hash{}, nil, err
	}

	threshold := uint64(1)
	limitKey := req.Adapters[0]
	if multi {
		threshold = a.minBridges
		limitKey = ratelimit.Wildcard
	}
	if err := a.limiter.Check(limitKey, amount, ratelimit.Burn); err != nil {
		a.metrics.rateLimitRejections.WithLabelValues(a.name, ratelimit.Burn.String()).Inc()
		return common.Hash{}, nil, err
	}

	fee := new(uint256.Int)
	if multi && a.fees != nil {
		fee = a.fees.Quote(amount)
	}
	total, overflow := new(uint256.Int).AddOverflow(amount, fee)
	if overflow || a.token.BalanceOf(caller).Lt(total) {
		return common.Hash{}, nil, fmt.Errorf("%w: %s needs %s including fee %s", multibridge.ErrInsufficientBalance, caller, total.Dec(), fee.Dec())
	}

	j := a.newJournal()
	if err := a.consumeLimit(limitKey, amount, ratelimit.Burn, j); err != nil {
		return common.Hash{}, nil, err
	}
	if !fee.IsZero() {
		if err := a.fees.Collect(caller, fee); err != nil {
			j.revert()
			return common.Hash{}, nil, fmt.Errorf("failed to collect fee: %w", err)
		}
		j.add(func() error { return a.fees.Refund(caller, fee) })
	}
	if err := a.custody.take(caller, amount, j); err != nil {
		j.revert()
		return common.Hash{}, nil, err
	}
	nonce, err := a.reserveNonce(j)
	if err != nil {
		j.revert()
		return common.Hash{}, nil, err
	}
	p, err := payload.NewTransferPayload(caller, req.Recipient, amount, req.Unwrap, threshold, nonce, a.chainID, req.DestChainID)
	if err != nil {
		j.revert()
		return common.Hash{}, nil, err
	}
	raw := p.Bytes()

	legs, relayErr := a.relayAll(ctx, r, raw)
	if len(legs) == 0 {
		j.revert()
		return common.Hash{}, nil, relayErr
	}

	now := a.now()
	rec := &registry.Outbound{
		ID:            p.ID,
		DestChainID:   req.DestChainID,
		Sender:        caller,
		Nonce:         nonce,
		Threshold:     threshold,
		MultiBridge:   multi,
		Payload:       raw,
		CreatedAt:     now,
		LastRelayedAt: now,
	}
	events := make([]Event, 0, len(legs)+1)
	events = append(events, Event{
		Type:      TransferCreated,
		ID:        p.ID,
		ChainID:   req.DestChainID,
		Recipient: req.Recipient,
		Amount:    amount.Clone(),
		At:        rec.CreatedAt,
	})
	for _, leg := range legs {
		rec.Adapters = append(rec.Adapters, leg.adapter)
		events = append(events, Event{
			Type:        TransferRelayed,
			ID:          p.ID,
			ChainID:     req.DestChainID,
			Adapter:     leg.adapter,
			TransportID: leg.transportID,
			At:          rec.CreatedAt,
		})
	}
	a.metrics.createdCount.WithLabelValues(a.name, modeLabel(multi)).Inc()

	if err := a.store.PutOutbound(rec); err != nil {
		a.log.Error("failed to store outbound transfer",
			log.Stringer("id", p.ID),
			log.Err(err),
		)
		return p.ID, events, fmt.Errorf("failed to store outbound transfer %s: %w", p.ID, err)
	}
	a.log.Info("transfer created",
		log.Stringer("id", p.ID),
		log.Uint64("destChainID", req.DestChainID),
		log.Uint64("threshold", threshold),
		log.Stringer("amount", amount),
	)
	return p.ID, events, relayErr
}

// Deliver accepts a transfer payload from a local adapter. The transfer is
// released in the delivery that completes its threshold.
func (a *AssetController) Deliver(ctx context.Context, adapterAddr common.Address, originChainID uint64, originSender common.Address, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	events, err := a.deliver(adapterAddr, originChainID, originSender, raw)
	a.mu.Unlock()

	a.metrics.deliveryCount.WithLabelValues(a.name, deliveryResult(err)).Inc()
	a.publish(events)
	return err
}

func (a *AssetController) deliver(adapterAddr common.Address, originChainID uint64, originSender common.Address, raw []byte) ([]Event, error) {
	if err := a.admitDelivery(adapterAddr, originChainID, originSender); err != nil {
		return nil, err
	}
	p, err := payload.ParseTransferPayload(raw)
	if err != nil {
		return nil, err
	}
	if !p.MatchesRoute(originChainID, a.chainID) {
		return nil, fmt.Errorf("%w: transfer id %s does not match route %d->%d", multibridge.ErrInvalidParams, p.ID, originChainID, a.chainID)
	}
	if err := a.admitThreshold(adapterAddr, p.Threshold); err != nil {
		return nil, err
	}

	j := a.newJournal()
	var res *released
	out, err := a.engine.Deliver(consensus.Delivery{
		ID:            p.ID,
		Adapter:       adapterAddr,
		OriginChainID: originChainID,
		Threshold:     p.Threshold,
		Payload:       raw,
	}, func(*registry.Inbound) error {
		limitKey := adapterAddr
		if p.Threshold > 1 {
			limitKey = ratelimit.Wildcard
		}
		if err := a.consumeLimit(limitKey, p.Amount, ratelimit.Mint, j); err != nil {
			return err
		}
		var err error
		res, err = a.custody.release(p, j)
		return err
	})
	if err != nil {
		j.revert()
		return nil, err
	}

	now := a.now()
	events := []Event{{
		Type:      TransferReceived,
		ID:        p.ID,
		ChainID:   originChainID,
		Adapter:   adapterAddr,
		Recipient: p.Recipient,
		Amount:    p.Amount.Clone(),
		At:        now,
	}}
	if !out.Applied {
		return events, nil
	}

	a.metrics.executedCount.WithLabelValues(a.name).Inc()
	if res.fallback {
		a.metrics.unwrapFallbackCount.WithLabelValues(a.name).Inc()
		events = append(events, Event{
			Type:      UnwrapFallback,
			ID:        p.ID,
			ChainID:   originChainID,
			Recipient: p.Recipient,
			Amount:    res.amount.Clone(),
			At:        now,
		})
	}
	events = append(events, Event{
		Type:      TransferExecuted,
		ID:        p.ID,
		ChainID:   originChainID,
		Adapter:   adapterAddr,
		Recipient: p.Recipient,
		Amount:    res.amount.Clone(),
		At:        now,
	})
	a.log.Info("transfer executed",
		log.Stringer("id", p.ID),
		log.Stringer("recipient", p.Recipient),
		log.Stringer("amount", res.amount),
	)
	return events, nil
}

// consumeLimit debits bridge's allowance and registers the rollback on j.
func (a *AssetController) consumeLimit(bridge common.Address, amount *uint256.Int, dir ratelimit.Direction, j *journal) error {
	snapshot, ok := a.limiter.Snapshot(bridge)
	if err := a.limiter.Consume(bridge, amount, dir); err != nil {
		a.metrics.rateLimitRejections.WithLabelValues(a.name, dir.String()).Inc()
		return fmt.Errorf("%w: %w", multibridge.ErrNotHighEnoughLimits, err)
	}
	if ok {
		j.add(func() error {
			a.limiter.Restore(bridge, snapshot)
			return nil
		})
	}
	return nil
}

// payOut sends amount held by the controller to recipient. When unwrapping
// is requested and enabled the lockbox pays the native asset instead; if
// the lockbox fails the wrapped token is transferred.
func (a *AssetController) payOut(recipient common.Address, amount *uint256.Int, unwrap bool, j *journal) (*released, error) {
	res := &released{amount: amount}
	if unwrap && a.allowUnwrapping && a.lockbox != nil {
		err := a.lockbox.Withdraw(a.address, recipient, amount)
		if err == nil {
			j.add(func() error { return a.lockbox.Deposit(recipient, a.address, amount) })
			res.unwrapped = true
			return res, nil
		}
		a.log.Warn("lockbox unwrap failed, paying out wrapped token",
			log.Stringer("recipient", recipient),
			log.Err(err),
		)
		res.fallback = true
	}
	if err := a.token.Transfer(a.address, recipient, amount); err != nil {
		return nil, err
	}
	j.add(func() error { return a.token.Transfer(recipient, a.address, amount) })
	return res, nil
}

type burnMint struct {
	*AssetController
}

func (b burnMint) take(from common.Address, amount *uint256.Int, j *journal) error {
	if err := b.token.Burn(from, amount); err != nil {
		return err
	}
	j.add(func() error { return b.token.Mint(from, amount) })
	return nil
}

func (b burnMint) release(p *payload.TransferPayload, j *journal) (*released, error) {
	net := new(uint256.Int)
	if tax := b.token.BridgeTax(p.Amount); tax.Lt(p.Amount) {
		net.Sub(p.Amount, tax)
	}
	if err := b.token.Mint(b.address, net); err != nil {
		return nil, err
	}
	j.add(func() error { return b.token.Burn(b.address, net) })
	return b.payOut(p.Recipient, net, p.Unwrap, j)
}

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
	"github.com/luxfi/multibridge/registry"
)

var _ adapter.Receiver = (*MessageController)(nil)

// MessageConfig configures a MessageController.
type MessageConfig struct {
	Config
	TimelockDelay time.Duration
	MessageExpiry time.Duration
	Vetoer        common.Address
	// Executor runs the calls of executed messages. It must not call back
	// into the controller.
	Executor Executor
}

// MessageRequest is one sendMessage call.
type MessageRequest struct {
	Targets     []common.Address
	Calldatas   [][]byte
	DestChainID uint64
	Adapters    []common.Address
	Fees        []*uint256.Int
	Options     [][]byte
	// Threshold is the number of adapters that must deliver before the
	// message becomes executable.
	Threshold uint64
	Value     *uint256.Int
}

// MessageController relays batches of calls. Received messages become
// executable after a timelock and expire after a window; a vetoer may
// cancel them until they execute.
type MessageController struct {
	*Core

	executor Executor
	vetoer   common.Address
}

// NewMessageController creates a new message controller
func NewMessageController(cfg MessageConfig) (*MessageController, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: nil executor", multibridge.ErrInvalidParams)
	}
	if cfg.Vetoer == (common.Address{}) {
		return nil, fmt.Errorf("%w: vetoer", multibridge.ErrZeroAddress)
	}
	core, err := newCore(cfg.Config, engineParams{
		mode:     consensus.Timelocked,
		timelock: cfg.TimelockDelay,
		expiry:   cfg.MessageExpiry,
	})
	if err != nil {
		return nil, err
	}
	return &MessageController{
		Core:     core,
		executor: cfg.Executor,
		vetoer:   cfg.Vetoer,
	}, nil
}

func (m *MessageController) Vetoer() common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vetoer
}

func (m *MessageController) SetVetoer(caller, vetoer common.Address) error {
	if err := requireRole(m.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	if vetoer == (common.Address{}) {
		return fmt.Errorf("%w: vetoer", multibridge.ErrZeroAddress)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vetoer = vetoer
	return nil
}

// SetTimelockDelay applies to messages whose threshold is reached from now on.
func (m *MessageController) SetTimelockDelay(caller common.Address, delay time.Duration) error {
	if err := requireRole(m.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine.SetTimelockDelay(delay)
	return nil
}

// SetMessageExpiry applies to messages whose threshold is reached from now on.
func (m *MessageController) SetMessageExpiry(caller common.Address, expiry time.Duration) error {
	if err := requireRole(m.roles, DefaultAdminRole, caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.SetExpiry(expiry)
}

// SendMessage relays a batch of calls to req.DestChainID. Only holders of
// MessageOriginatorRole may send.
func (m *MessageController) SendMessage(ctx context.Context, caller common.Address, req *MessageRequest) (common.Hash, error) {
	if err := requireRole(m.roles, MessageOriginatorRole, caller); err != nil {
		return common.Hash{}, err
	}
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	m.mu.Lock()
	id, events, err := m.sendMessage(context.WithoutCancel(ctx), caller, req)
	m.mu.Unlock()

	m.publish(events)
	return id, err
}

func (m *MessageController) sendMessage(ctx context.Context, caller common.Address, req *MessageRequest) (common.Hash, []Event, error) {
	target, err := m.validateRoute(req.DestChainID)
	if err != nil {
		return common.Hash{}, nil, err
	}
	if len(req.Targets) != len(req.Calldatas) {
		return common.Hash{}, nil, fmt.Errorf("%w: %d targets, %d calldatas", multibridge.ErrArrayLengthMismatch, len(req.Targets), len(req.Calldatas))
	}
	if req.Threshold == 0 || req.Threshold > uint64(len(req.Adapters)) {
		return common.Hash{}, nil, fmt.Errorf("%w: threshold %d with %d adapters", multibridge.ErrInvalidThreshold, req.Threshold, len(req.Adapters))
	}
	multi := req.Threshold > 1
	r, err := m.validateAdapters(req.DestChainID, target, req.Adapters, req.Fees, req.Options, req.Value, multi)
	if err != nil {
		return common.Hash{}, nil, err
	}

	j := m.newJournal()
	nonce, err := m.reserveNonce(j)
	if err != nil {
		return common.Hash{}, nil, err
	}
	p, err := payload.NewMessagePayload(caller, req.Targets, req.Calldatas, req.Threshold, nonce, m.chainID, req.DestChainID)
	if err != nil {
		j.revert()
		return common.Hash{}, nil, err
	}
	raw, err := p.Bytes()
	if err != nil {
		j.revert()
		return common.Hash{}, nil, err
	}

	legs, relayErr := m.relayAll(ctx, r, raw)
	if len(legs) == 0 {
		j.revert()
		return common.Hash{}, nil, relayErr
	}

	now := m.now()
	rec := &registry.Outbound{
		ID:            p.ID,
		DestChainID:   req.DestChainID,
		Sender:        caller,
		Nonce:         nonce,
		Threshold:     req.Threshold,
		MultiBridge:   multi,
		Payload:       raw,
		CreatedAt:     now,
		LastRelayedAt: now,
	}
	events := make([]Event, 0, len(legs)+1)
	events = append(events, Event{
		Type:    MessageCreated,
		ID:      p.ID,
		ChainID: req.DestChainID,
		At:      rec.CreatedAt,
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
	m.metrics.createdCount.WithLabelValues(m.name, modeLabel(multi)).Inc()

	if err := m.store.PutOutbound(rec); err != nil {
		m.log.Error("failed to store outbound message",
			log.Stringer("id", p.ID),
			log.Err(err),
		)
		return p.ID, events, fmt.Errorf("failed to store outbound message %s: %w", p.ID, err)
	}
	m.log.Info("message created",
		log.Stringer("id", p.ID),
		log.Uint64("destChainID", req.DestChainID),
		log.Uint64("threshold", req.Threshold),
	)
	return p.ID, events, relayErr
}

// Deliver accepts a message payload from a local adapter. Reaching the
// threshold starts the timelock; execution is a separate call.
func (m *MessageController) Deliver(ctx context.Context, adapterAddr common.Address, originChainID uint64, originSender common.Address, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	events, err := m.deliver(adapterAddr, originChainID, originSender, raw)
	m.mu.Unlock()

	m.metrics.deliveryCount.WithLabelValues(m.name, deliveryResult(err)).Inc()
	m.publish(events)
	return err
}

func (m *MessageController) deliver(adapterAddr common.Address, originChainID uint64, originSender common.Address, raw []byte) ([]Event, error) {
	if err := m.admitDelivery(adapterAddr, originChainID, originSender); err != nil {
		return nil, err
	}
	p, err := payload.ParseMessagePayload(raw)
	if err != nil {
		return nil, err
	}
	if !p.MatchesRoute(originChainID, m.chainID) {
		return nil, fmt.Errorf("%w: message id %s does not match route %d->%d", multibridge.ErrInvalidParams, p.ID, originChainID, m.chainID)
	}
	if err := m.admitThreshold(adapterAddr, p.Threshold); err != nil {
		return nil, err
	}

	out, err := m.engine.Deliver(consensus.Delivery{
		ID:            p.ID,
		Adapter:       adapterAddr,
		OriginChainID: originChainID,
		Threshold:     p.Threshold,
		Payload:       raw,
	}, nil)
	if err != nil {
		return nil, err
	}

	now := m.now()
	events := []Event{{
		Type:    MessageReceived,
		ID:      p.ID,
		ChainID: originChainID,
		Adapter: adapterAddr,
		At:      now,
	}}
	if out.Reached && !out.Record.Cancelled {
		events = append(events, Event{
			Type:    MessageExecutableAt,
			ID:      p.ID,
			ChainID: originChainID,
			At:      out.Record.ExecutableAt,
		})
		m.log.Info("message threshold reached",
			log.Stringer("id", p.ID),
			log.Uint64("executableAt", out.Record.ExecutableAt),
			log.Uint64("expiresAt", out.Record.ExpiresAt),
		)
	}
	return events, nil
}

// Execute runs a received message inside its execution window. Anyone may
// call it.
func (m *MessageController) Execute(ctx context.Context, id common.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	events, err := m.execute(ctx, id)
	m.mu.Unlock()

	m.publish(events)
	return err
}

func (m *MessageController) execute(ctx context.Context, id common.Hash) ([]Event, error) {
	if m.paused {
		return nil, multibridge.ErrPaused
	}
	rec, err := m.engine.Execute(id, func(rec *registry.Inbound) error {
		p, err := payload.ParseMessagePayload(rec.Payload)
		if err != nil {
			return err
		}
		if err := m.executor.Execute(ctx, p.Targets, p.Calldatas); err != nil {
			return fmt.Errorf("%w: %w", multibridge.ErrExecutionFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.executedCount.WithLabelValues(m.name).Inc()
	m.log.Info("message executed", log.Stringer("id", id))
	return []Event{{
		Type:    MessageExecuted,
		ID:      id,
		ChainID: rec.OriginChainID,
		At:      m.now(),
	}}, nil
}

// Cancel permanently blocks execution of id. Only the vetoer may cancel,
// and id need not have been received yet.
func (m *MessageController) Cancel(caller common.Address, id common.Hash) error {
	m.mu.Lock()
	events, err := m.cancel(caller, id)
	m.mu.Unlock()

	m.publish(events)
	return err
}

func (m *MessageController) cancel(caller common.Address, id common.Hash) ([]Event, error) {
	if caller != m.vetoer {
		return nil, fmt.Errorf("%w: %s", multibridge.ErrNotVetoer, caller)
	}
	rec, err := m.engine.Cancel(id)
	if err != nil {
		return nil, err
	}
	m.log.Info("message cancelled", log.Stringer("id", id))
	return []Event{{
		Type:    MessageCancelled,
		ID:      id,
		ChainID: rec.OriginChainID,
		At:      m.now(),
	}}, nil
}

// IsReceivedMessageExecutable reports whether Execute would currently run id.
func (m *MessageController) IsReceivedMessageExecutable(id common.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Executable(id)
}

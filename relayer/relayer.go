// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package relayer is the off-chain actor that keeps bridged sends moving:
// it delivers queued packets and resends stuck transfers and messages
// through fallback adapters.
package relayer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/multibridge"
	"github.com/luxfi/multibridge/adapter"
	"github.com/luxfi/multibridge/bridge"
	"github.com/luxfi/multibridge/cache"
	"github.com/luxfi/multibridge/payload"
	"github.com/luxfi/multibridge/registry"
	"github.com/luxfi/multibridge/utils"
)

const (
	DefaultInterval     = time.Second
	DefaultRetryTimeout = 2 * time.Second
	DefaultStaleAfter   = 10 * time.Minute
	DefaultStatusTTL    = 5 * time.Second
)

// Source is the sending controller of a route.
type Source interface {
	Address() common.Address
	ChainID() uint64
	RangeOutbound(fn func(*registry.Outbound) bool) error
	Resend(ctx context.Context, req *bridge.ResendRequest) error
	ResendSingle(ctx context.Context, id common.Hash, adapter common.Address, fee *uint256.Int, options []byte, value *uint256.Int) error
}

// Destination is the receiving controller of a route.
type Destination interface {
	Inbound(id common.Hash) (*registry.Inbound, bool, error)
}

// Route is one watched controller pair. Fallbacks are source adapters
// tried in order when a send looks stuck.
type Route struct {
	Source      Source
	Destination Destination
	Fallbacks   []common.Address
}

type Config struct {
	Network *adapter.Network
	Routes  []Route
	// Interval between pump and scan rounds in Run.
	Interval time.Duration
	// RetryTimeout bounds the backoff spent on one packet per pump.
	RetryTimeout time.Duration
	// StaleAfter is how old an undelivered send must be before it is
	// resent.
	StaleAfter time.Duration
	StatusTTL  time.Duration
	// Now returns chain time in unix seconds.
	Now func() uint64
	// Clock drives the status cache.
	Clock   func() time.Time
	Log     log.Logger
	Metrics *Metrics
}

type Relayer struct {
	network      *adapter.Network
	routes       []Route
	interval     time.Duration
	retryTimeout time.Duration
	staleAfter   uint64
	now          func() uint64
	log          log.Logger
	metrics      *Metrics
	status       *cache.TTLCache[common.Hash, *registry.Inbound]
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Relayer, error) {
	if cfg.Network == nil {
		return nil, fmt.Errorf("%w: nil network", multibridge.ErrInvalidParams)
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("%w: nil logger", multibridge.ErrInvalidParams)
	}
	for i, r := range cfg.Routes {
		if r.Source == nil || r.Destination == nil {
			return nil, fmt.Errorf("%w: route %d is missing a controller", multibridge.ErrInvalidParams, i)
		}
		if multibridge.HasDuplicates(r.Fallbacks) {
			return nil, fmt.Errorf("%w: route %d fallbacks", multibridge.ErrDuplicateAdapter, i)
		}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	retryTimeout := cfg.RetryTimeout
	if retryTimeout <= 0 {
		retryTimeout = DefaultRetryTimeout
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	statusTTL := cfg.StatusTTL
	if statusTTL <= 0 {
		statusTTL = DefaultStatusTTL
	}
	now := cfg.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Relayer{
		network:      cfg.Network,
		routes:       cfg.Routes,
		interval:     interval,
		retryTimeout: retryTimeout,
		staleAfter:   uint64(staleAfter / time.Second),
		now:          now,
		log:          cfg.Log,
		metrics:      metrics,
		status:       cache.NewTTLCache[common.Hash, *registry.Inbound](statusTTL, cfg.Clock),
	}, nil
}

// Run pumps and scans every interval until ctx ends.
func (r *Relayer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.every(ctx, func(ctx context.Context) error {
			_, err := r.Pump(ctx)
			return err
		})
	})
	g.Go(func() error {
		return r.every(ctx, func(ctx context.Context) error {
			_, err := r.Scan(ctx)
			r.status.Prune()
			return err
		})
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relayer) every(ctx context.Context, round func(context.Context) error) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := round(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pump attempts every queued packet once, retrying transient failures with
// backoff. Packets rejected for good are dropped by the network; the rest
// stay queued for the next round. It returns how many were delivered.
func (r *Relayer) Pump(ctx context.Context) (int, error) {
	delivered := 0
	for _, p := range r.network.Pending() {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if r.deliver(ctx, p) {
			delivered++
		}
	}
	r.metrics.pendingPacketCount.Set(float64(len(r.network.Pending())))
	return delivered, ctx.Err()
}

func (r *Relayer) deliver(ctx context.Context, p *adapter.Packet) bool {
	dest := strconv.FormatUint(p.DestChainID, 10)
	origin := strconv.FormatUint(p.OriginChainID, 10)
	start := time.Now()

	err := utils.WithRetriesTimeout(ctx, r.log, func() error {
		err := r.network.Deliver(ctx, p.ID)
		if err != nil && (adapter.Terminal(err) || errors.Is(err, adapter.ErrUnknownPacket)) {
			return utils.Permanent(err)
		}
		return err
	}, r.retryTimeout)
	r.metrics.relayLatencyMS.WithLabelValues(dest, origin).Set(float64(time.Since(start).Milliseconds()))

	if err != nil {
		reason := multibridge.KindOf(err)
		r.metrics.failedRelayMessageCount.WithLabelValues(dest, origin, reason.String()).Inc()
		if adapter.Terminal(err) {
			r.log.Debug("packet rejected",
				log.Stringer("packet", p.ID),
				log.Stringer("reason", reason),
				log.Err(err),
			)
		} else {
			r.log.Warn("packet delivery failed, will retry",
				log.Stringer("packet", p.ID),
				log.Uint64("destChainID", p.DestChainID),
				log.Err(err),
			)
		}
		return false
	}
	r.metrics.successfulRelayMessageCount.WithLabelValues(dest, origin).Inc()
	return true
}

// Scan looks for sends whose latest relay is older than the stale
// threshold and that have not yet reached their threshold at the
// destination, counting legs still queued on the network. It resends them
// through fallback adapters that have neither delivered nor got a leg in
// flight, and returns the number of resends.
func (r *Relayer) Scan(ctx context.Context) (int, error) {
	resent := 0
	pending := r.network.Pending()
	for _, route := range r.routes {
		stuck, err := r.stuck(route, pending)
		if err != nil {
			return resent, err
		}
		for _, s := range stuck {
			if err := ctx.Err(); err != nil {
				return resent, err
			}
			if r.resend(ctx, route, s) {
				resent++
			}
		}
	}
	return resent, nil
}

type stuckSend struct {
	record   *registry.Outbound
	inbound  *registry.Inbound
	inFlight set.Set[common.Address]
	missing  uint64
}

// skip reports whether fallback cannot supply a missing leg.
func (s *stuckSend) skip(fallback common.Address) bool {
	return s.inFlight.Contains(fallback) || (s.inbound != nil && s.inbound.HasDelivered(fallback))
}

func (r *Relayer) stuck(route Route, pending []*adapter.Packet) ([]stuckSend, error) {
	var (
		candidates []*registry.Outbound
		now        = r.now()
	)
	err := route.Source.RangeOutbound(func(rec *registry.Outbound) bool {
		if now >= max(rec.CreatedAt, rec.LastRelayedAt)+r.staleAfter {
			candidates = append(candidates, rec)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbound records: %w", err)
	}

	var out []stuckSend
	for _, rec := range candidates {
		in, err := r.status.Get(rec.ID, func(id common.Hash) (*registry.Inbound, error) {
			in, ok, err := route.Destination.Inbound(id)
			if err != nil || !ok {
				return nil, err
			}
			return in, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load inbound record %s: %w", rec.ID, err)
		}
		if in.Status() != registry.StatusPending && in.Status() != registry.StatusUnseen {
			continue
		}
		inFlight := inFlightAdapters(pending, route.Source, rec)
		covered := uint64(inFlight.Len())
		if in != nil {
			covered += in.ReceivedSoFar
		}
		if covered >= rec.Threshold {
			continue
		}
		out = append(out, stuckSend{
			record:   rec,
			inbound:  in,
			inFlight: inFlight,
			missing:  rec.Threshold - covered,
		})
	}
	return out, nil
}

// inFlightAdapters returns the source adapters that have a queued packet
// carrying rec's payload.
func inFlightAdapters(pending []*adapter.Packet, source Source, rec *registry.Outbound) set.Set[common.Address] {
	adapters := set.NewSet[common.Address](0)
	for _, p := range pending {
		if p.OriginChainID != source.ChainID() || p.DestChainID != rec.DestChainID {
			continue
		}
		call, err := payload.ParseAddressedCall(p.Envelope.Body)
		if err != nil || call.SourceAddress != source.Address() || !bytes.Equal(call.Payload, rec.Payload) {
			continue
		}
		adapters.Add(p.Envelope.Sender)
	}
	return adapters
}

func (r *Relayer) resend(ctx context.Context, route Route, s stuckSend) bool {
	var picks []common.Address
	for _, fb := range route.Fallbacks {
		if uint64(len(picks)) == s.missing {
			break
		}
		if !s.skip(fb) {
			picks = append(picks, fb)
		}
	}
	if len(picks) == 0 {
		r.log.Debug("no fallback adapter left",
			log.Stringer("id", s.record.ID),
			log.Uint64("destChainID", s.record.DestChainID),
		)
		return false
	}

	var (
		err  error
		mode = "single"
	)
	if s.record.MultiBridge {
		mode = "multi"
		err = route.Source.Resend(ctx, &bridge.ResendRequest{
			ID:       s.record.ID,
			Adapters: picks,
			Fees:     make([]*uint256.Int, len(picks)),
			Options:  make([][]byte, len(picks)),
		})
	} else {
		err = route.Source.ResendSingle(ctx, s.record.ID, picks[0], nil, nil, nil)
	}
	r.status.Invalidate(s.record.ID)
	if err != nil && !errors.Is(err, multibridge.ErrPartialRelay) {
		r.log.Warn("resend failed",
			log.Stringer("id", s.record.ID),
			log.Err(err),
		)
		return false
	}
	r.metrics.resendCount.WithLabelValues(
		strconv.FormatUint(s.record.DestChainID, 10),
		strconv.FormatUint(route.Source.ChainID(), 10),
		mode,
	).Inc()
	r.log.Info("resent stuck send",
		log.Stringer("id", s.record.ID),
		log.Uint64("threshold", s.record.Threshold),
		log.Uint64("adapters", uint64(len(picks))),
	)
	return true
}

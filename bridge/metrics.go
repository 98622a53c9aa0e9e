// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every controller registered on one registerer and
// labelled by controller name.
type Metrics struct {
	createdCount        *prometheus.CounterVec
	relayedCount        *prometheus.CounterVec
	deliveryCount       *prometheus.CounterVec
	executedCount       *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec
	resendCount         *prometheus.CounterVec
	unwrapFallbackCount *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		createdCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_created_count",
				Help: "Number of transfers and messages created",
			},
			[]string{"controller", "mode"},
		),
		relayedCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_relayed_count",
				Help: "Number of payloads handed to adapters",
			},
			[]string{"controller", "adapter_kind"},
		),
		deliveryCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_delivery_count",
				Help: "Number of inbound deliveries by result",
			},
			[]string{"controller", "result"},
		),
		executedCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_executed_count",
				Help: "Number of transfers or messages whose effect was applied",
			},
			[]string{"controller"},
		),
		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_rate_limit_rejection_count",
				Help: "Number of operations rejected by rate limits",
			},
			[]string{"controller", "direction"},
		),
		resendCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_resend_count",
				Help: "Number of adapter legs added by resend",
			},
			[]string{"controller", "mode"},
		),
		unwrapFallbackCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_unwrap_fallback_count",
				Help: "Number of releases that fell back to a plain transfer after a lockbox failure",
			},
			[]string{"controller"},
		),
	}

	registerer.MustRegister(m.createdCount)
	registerer.MustRegister(m.relayedCount)
	registerer.MustRegister(m.deliveryCount)
	registerer.MustRegister(m.executedCount)
	registerer.MustRegister(m.rateLimitRejections)
	registerer.MustRegister(m.resendCount)
	registerer.MustRegister(m.unwrapFallbackCount)

	return &m
}

func modeLabel(multi bool) string {
	if multi {
		return "multi"
	}
	return "single"
}

func deliveryResult(err error) string {
	if err == nil {
		return "accepted"
	}
	return kindLabel(err)
}

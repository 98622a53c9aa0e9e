// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	successfulRelayMessageCount *prometheus.CounterVec
	failedRelayMessageCount     *prometheus.CounterVec
	relayLatencyMS              *prometheus.GaugeVec
	resendCount                 *prometheus.CounterVec
	pendingPacketCount          prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		successfulRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "successful_relay_message_count",
				Help: "Number of packets delivered to their destination adapter",
			},
			[]string{"destination_chain_id", "source_chain_id"},
		),
		failedRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_relay_message_count",
				Help: "Number of packet deliveries that failed",
			},
			[]string{"destination_chain_id", "source_chain_id", "failure_reason"},
		),
		relayLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_latency_ms",
				Help: "Time spent delivering the last packet, retries included, in milliseconds",
			},
			[]string{"destination_chain_id", "source_chain_id"},
		),
		resendCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resend_count",
				Help: "Number of stuck sends resent through a fallback adapter",
			},
			[]string{"destination_chain_id", "source_chain_id", "mode"},
		),
		pendingPacketCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pending_packet_count",
				Help: "Packets waiting on the network after the last pump",
			},
		),
	}

	registerer.MustRegister(m.successfulRelayMessageCount)
	registerer.MustRegister(m.failedRelayMessageCount)
	registerer.MustRegister(m.relayLatencyMS)
	registerer.MustRegister(m.resendCount)
	registerer.MustRegister(m.pendingPacketCount)

	return &m
}

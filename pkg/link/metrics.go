// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package link

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "eaglelink"
	metricsSubsystem = "link"
)

// Failure reasons used as the "reason" label of connect_failures_total.
const (
	reasonTimeout   = "timeout"
	reasonNotFound  = "characteristic_not_found"
	reasonTransport = "transport"
	reasonPanic     = "panic"
)

// metrics holds the Prometheus collectors for one manager.
type metrics struct {
	state            prometheus.Gauge
	connectAttempts  prometheus.Counter
	connectFailures  *prometheus.CounterVec
	framesSent       prometheus.Counter
	framesFailed     prometheus.Counter
	framesSuperseded prometheus.CounterFunc
	bytesSent        prometheus.Counter
	rxLines          *prometheus.CounterVec
	chunkSize        prometheus.Gauge
	sendDuration     prometheus.Histogram
}

// newMetrics registers the link collectors with reg. dropped reports the
// mailbox's superseded frame count.
func newMetrics(reg prometheus.Registerer, dropped func() float64) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected",
		}),

		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connect_attempts_total",
			Help:      "Total number of connection attempts",
		}),

		connectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connect_failures_total",
			Help:      "Total number of failed connection attempts by reason",
		}, []string{"reason"}),

		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_sent_total",
			Help:      "Total number of frames fully written",
		}),

		framesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_failed_total",
			Help:      "Total number of frames whose write failed",
		}),

		framesSuperseded: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_superseded_total",
			Help:      "Total number of frames replaced in the mailbox before transmission",
		}, dropped),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "bytes_sent_total",
			Help:      "Total number of frame bytes written",
		}),

		rxLines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rx_lines_total",
			Help:      "Total number of lines received from the robot by kind",
		}, []string{"kind"}),

		chunkSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "chunk_size_bytes",
			Help:      "Write chunk size negotiated for the current connection",
		}),

		sendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "send_duration_seconds",
			Help:      "Time to write a complete frame",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

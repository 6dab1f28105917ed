// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package metrics instruments one Dispatch: ingress drop counters by
// reason, current software queue depth, the pace scheduler's interval,
// and per-message verification latency. Adapted from the teacher's
// internal/metrics package shape (a promauto-registered vector set
// plus a dedicated HTTP server, internal/metrics/server.go) with the
// SAGE-specific crypto/DID/handshake/session metric families dropped —
// none of them have a caller left once the core is protocol-agnostic —
// and a new vector set built for what spec.md §4.6 actually calls out:
// drop reasons, queue depth, and pace adaptivity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "neatcore"

// Registry is the Prometheus registry this package's metrics are
// registered against. cmd/neatcored serves it at GET /metrics via
// Handler (see server.go).
var Registry = prometheus.NewRegistry()

var (
	ingressDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "dropped_total",
			Help:      "Ingress items dropped before reaching the Receiver, by reason.",
		},
		[]string{"reason"},
	)

	queueDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "queue_depth",
			Help:      "Current ingress queue length, sampled once per pace tick.",
		},
	)

	paceInterval = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pace",
			Name:      "interval_seconds",
			Help:      "Interval between consecutive pace callbacks.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	verifyDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crypto",
			Name:      "verify_duration_seconds",
			Help:      "Signature verification duration on the dispatch thread.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 20),
		},
	)
)

// DispatchRecorder adapts this package's Prometheus vectors to
// runtime.DropRecorder (IncDropped) plus the extra observation hooks
// Dispatch calls for queue depth and pace/verify timing. A zero value
// is usable; there is no per-Dispatch state to carry.
type DispatchRecorder struct{}

// NewDispatchRecorder returns a DispatchRecorder wired to the package
// Registry.
func NewDispatchRecorder() DispatchRecorder {
	return DispatchRecorder{}
}

// IncDropped satisfies runtime.DropRecorder.
func (DispatchRecorder) IncDropped(reason string) {
	ingressDropped.WithLabelValues(reason).Inc()
}

// ObserveQueueDepth records the ingress queue length at a pace tick.
func (DispatchRecorder) ObserveQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// ObservePaceInterval records the elapsed time since the previous pace
// callback.
func (DispatchRecorder) ObservePaceInterval(d time.Duration) {
	paceInterval.Observe(d.Seconds())
}

// ObserveVerifyDuration records one signature verification's wall-clock
// cost on the dispatch thread.
func (DispatchRecorder) ObserveVerifyDuration(d time.Duration) {
	verifyDuration.Observe(d.Seconds())
}

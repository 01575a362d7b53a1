// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/sentry"
)

const (
	// Component labels.
	ComponentLoadManager = "load_manager"
	ComponentFeeTrack    = "fee_track"
	ComponentLoadProbe   = "load_probe"
	ComponentNetworkOPs  = "network_ops"
	ComponentSupervisor  = "supervisor"
	ComponentProtocol    = "protocol"
	ComponentAPI         = "api"
	ComponentConfig      = "config"

	// Fee directions.
	DirectionRaise = "raise"
	DirectionLower = "lower"
)

var (
	namespace = "ledger"
	subsystem = "core"

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	tickDuration = promauto.NewSummary(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "load_manager_tick_duration_milliseconds",
			Help:      "Time spent in one admission control tick, excluding the sleep (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.99: 0.01,
			},
		},
	)

	stallSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stall_seconds",
			Help:      "Seconds since the deadlock detector was last reset",
		},
	)

	stalledTotalSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stalled_total_seconds",
			Help:      "Total seconds the node spent stalled while the deadlock detector was armed",
		},
	)

	uptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "uptime_seconds",
			Help:      "Elapsed seconds as counted by the admission control loop",
		},
	)

	feeAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fee_adjustments_total",
			Help:      "Fee raise/lower requests issued by the admission controller",
		},
		[]string{"direction", "changed"},
	)

	feeChangeNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fee_change_notifications_total",
			Help:      "Fee changes reported to network operations",
		},
	)

	feeUpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fee_updates_dropped_total",
			Help:      "Fee updates dropped because a subscriber was not keeping up",
		},
	)

	localFee = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "local_fee",
			Help:      "Current local load fee (256 = normal)",
		},
	)

	overloaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "overloaded",
			Help:      "1 if the last tick observed an overloaded job queue, 0 otherwise",
		},
	)

	timeJumps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "time_jumps_total",
			Help:      "Ticks whose next wake target was out of range and had to be resynchronized",
		},
	)

	registeredFormats = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registered_formats",
			Help:      "Number of protocol object formats registered at startup",
		},
	)
)

// SetupMetricsEndpoint starts an HTTP server exposing /metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For(logger.ComponentMetrics))
		}
	}()

	return server
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// ObserveTickDuration records the time spent in one admission control tick.
func ObserveTickDuration(duration time.Duration) {
	tickDuration.Observe(float64(duration.Microseconds()) / 1000)
}

// SetStall publishes the current stall duration.
func SetStall(seconds int64) {
	stallSeconds.Set(float64(seconds))
}

// AddStalledTime increases the stalled counter by the specified seconds.
func AddStalledTime(seconds float64) {
	stalledTotalSeconds.Add(seconds)
}

// SetUptime publishes the tick-driven elapsed time.
func SetUptime(seconds int64) {
	uptimeSeconds.Set(float64(seconds))
}

// RecordFeeAdjustment counts one raise or lower request and whether it changed the fee.
func RecordFeeAdjustment(direction string, changed bool) {
	changedStr := "false"
	if changed {
		changedStr = "true"
	}

	feeAdjustments.WithLabelValues(direction, changedStr).Inc()
}

// IncFeeChangeNotifications counts a fee change reported to network operations.
func IncFeeChangeNotifications() {
	feeChangeNotifications.Inc()
}

// IncFeeUpdatesDropped counts a fee update a subscriber did not receive.
func IncFeeUpdatesDropped() {
	feeUpdatesDropped.Inc()
}

// SetLocalFee publishes the local load fee.
func SetLocalFee(fee uint32) {
	localFee.Set(float64(fee))
}

// SetOverloaded publishes the overload state seen by the last tick.
func SetOverloaded(isOverloaded bool) {
	if isOverloaded {
		overloaded.Set(1)
	} else {
		overloaded.Set(0)
	}
}

// IncTimeJumps counts a resynchronized wake target.
func IncTimeJumps() {
	timeJumps.Inc()
}

// SetRegisteredFormats publishes the number of known protocol formats.
func SetRegisteredFormats(n int) {
	registeredFormats.Set(float64(n))
}

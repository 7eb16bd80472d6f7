// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"strconv"
	"time"

	"github.com/cobaltcore-dev/placement-reporter/pkg/monitoring"
	"github.com/cobaltcore-dev/placement-reporter/pkg/openstack"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of the placement client.
type Monitor struct {
	// Duration of requests to placement by method and status code.
	RequestTimer *prometheus.HistogramVec
	// Repeated attempts by operation.
	RetryCounter *prometheus.CounterVec
	// Failures to reach placement by reason.
	UnavailableCounter *prometheus.CounterVec
	// Dropped sessions.
	SessionResets prometheus.Counter
}

// Create and register the metrics of the placement client.
func NewMonitor(registry *monitoring.Registry) Monitor {
	return Monitor{
		RequestTimer: registry.HistogramVec("request_duration_seconds",
			"Duration of requests to the placement service", prometheus.DefBuckets, "method", "status"),
		RetryCounter: registry.CounterVec("retries_total",
			"Number of repeated attempts of placement operations", "operation"),
		UnavailableCounter: registry.CounterVec("unavailable_total",
			"Number of failures to reach the placement service", "reason"),
		SessionResets: registry.Counter("session_resets_total",
			"Number of dropped placement sessions"),
	}
}

func (m Monitor) observeRequest(method string, status int, duration time.Duration) {
	if m.RequestTimer == nil {
		return
	}
	m.RequestTimer.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}

func (m Monitor) retried(operation string) {
	if m.RetryCounter == nil {
		return
	}
	m.RetryCounter.WithLabelValues(operation).Inc()
}

func (m Monitor) unavailable(reason openstack.UnavailableReason) {
	if m.UnavailableCounter == nil {
		return
	}
	m.UnavailableCounter.WithLabelValues(string(reason)).Inc()
}

func (m Monitor) sessionReset() {
	if m.SessionResets == nil {
		return
	}
	m.SessionResets.Inc()
}

// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"github.com/cobaltcore-dev/placement-reporter/pkg/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

type Monitor struct {
	// A histogram to measure how long each reporting cycle takes.
	ReportTimer prometheus.Histogram
	// A counter to observe compute nodes that could not be reported.
	FailedNodesCounter prometheus.Counter
	// A gauge to observe the number of compute nodes in the last cycle.
	NodesGauge prometheus.Gauge
}

// Create a new reporter monitor and register the necessary metrics.
func NewMonitor(registry *monitoring.Registry) Monitor {
	return Monitor{
		ReportTimer: registry.Histogram("report_duration_seconds",
			"Duration of a reporting cycle", prometheus.ExponentialBuckets(0.01, 2, 15)),
		FailedNodesCounter: registry.Counter("failed_nodes_total",
			"Number of compute nodes that could not be reported"),
		NodesGauge: registry.Gauge("compute_nodes",
			"Number of compute nodes in the last reporting cycle"),
	}
}

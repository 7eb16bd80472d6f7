// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package monitoring

import (
	"maps"
	"slices"
	"strings"

	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// Prefix of all metrics exported by the placement reporter.
const Namespace = "placement_reporter"

// Prometheus registry of the placement reporter. Metrics are created
// through it, so they share one namespace, and gathered with the
// configured deployment labels.
type Registry struct {
	*prometheus.Registry
	labels map[string]string
}

// Create a new registry including the go and process collectors.
func NewRegistry(config conf.MonitoringConfig) *Registry {
	registry := &Registry{
		Registry: prometheus.NewRegistry(),
		labels:   config.Labels,
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Create and register a counter.
func (r *Registry) Counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: name, Help: help})
	r.MustRegister(c)
	return c
}

// Create and register a counter partitioned by the given labels.
func (r *Registry) CounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Name: name, Help: help}, labels)
	r.MustRegister(c)
	return c
}

// Create and register a gauge.
func (r *Registry) Gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: Namespace, Name: name, Help: help})
	r.MustRegister(g)
	return g
}

// Create and register a histogram.
func (r *Registry) Histogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: Namespace, Name: name, Help: help, Buckets: buckets})
	r.MustRegister(h)
	return h
}

// Create and register a histogram partitioned by the given labels.
func (r *Registry) HistogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Name: name, Help: help, Buckets: buckets}, labels)
	r.MustRegister(h)
	return h
}

// Gather all metrics and attach the configured labels. Labels a metric
// already carries are left as they are. Label pairs stay sorted by name.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	families, err := r.Registry.Gather()
	if err != nil || len(r.labels) == 0 {
		return families, err
	}
	names := slices.Sorted(maps.Keys(r.labels))
	for _, family := range families {
		for _, metric := range family.Metric {
			for _, name := range names {
				if slices.ContainsFunc(metric.Label, func(l *dto.LabelPair) bool { return l.GetName() == name }) {
					continue
				}
				value := r.labels[name]
				metric.Label = append(metric.Label, &dto.LabelPair{
					Name:  &name,
					Value: &value,
				})
			}
			slices.SortFunc(metric.Label, func(a, b *dto.LabelPair) int {
				return strings.Compare(a.GetName(), b.GetName())
			})
		}
	}
	return families, nil
}

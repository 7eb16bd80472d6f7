// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package monitoring

import (
	"testing"

	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, registry *Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("expected %s to be gathered", name)
	return nil
}

func labelsOf(metric *dto.Metric) []string {
	var labels []string
	for _, label := range metric.Label {
		labels = append(labels, label.GetName()+"="+label.GetValue())
	}
	return labels
}

func TestRegistry_MetricsShareNamespace(t *testing.T) {
	registry := NewRegistry(conf.MonitoringConfig{})
	registry.Counter("test_total", "Test counter").Inc()
	registry.Gauge("test_gauge", "Test gauge").Set(3)
	registry.Histogram("test_seconds", "Test histogram", []float64{1}).Observe(0.5)

	if got := gatherFamily(t, registry, "placement_reporter_test_total").Metric[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("expected counter 1, got %v", got)
	}
	if got := gatherFamily(t, registry, "placement_reporter_test_gauge").Metric[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("expected gauge 3, got %v", got)
	}
	if got := gatherFamily(t, registry, "placement_reporter_test_seconds").Metric[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("expected 1 sample, got %v", got)
	}
}

func TestRegistry_GatherAddsLabels(t *testing.T) {
	registry := NewRegistry(conf.MonitoringConfig{
		Labels: map[string]string{"region": "eu-de-1", "github_repo": "placement-reporter"},
	})
	registry.CounterVec("requests_total", "Test counter", "method").WithLabelValues("GET").Inc()

	family := gatherFamily(t, registry, "placement_reporter_requests_total")
	expected := []string{"github_repo=placement-reporter", "method=GET", "region=eu-de-1"}
	got := labelsOf(family.Metric[0])
	if len(got) != len(expected) {
		t.Fatalf("expected labels %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("expected labels %v, got %v", expected, got)
			break
		}
	}
}

func TestRegistry_GatherKeepsExistingLabels(t *testing.T) {
	registry := NewRegistry(conf.MonitoringConfig{
		Labels: map[string]string{"method": "configured"},
	})
	registry.CounterVec("requests_total", "Test counter", "method").WithLabelValues("PUT").Inc()

	got := labelsOf(gatherFamily(t, registry, "placement_reporter_requests_total").Metric[0])
	if len(got) != 1 || got[0] != "method=PUT" {
		t.Errorf("expected the metric's own label to win, got %v", got)
	}
}

// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/cobaltcore-dev/placement-reporter/internal/reportclient"
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
	"github.com/cobaltcore-dev/placement-reporter/pkg/monitoring"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Placement client recording what the reporter sends.
type mockPlacement struct {
	mu          sync.Mutex
	inventories map[string]resources.Inventories
	names       map[string]string
	traits      map[string][]string
	invalidated []string
	allocations []string
	// Errors to return per provider uuid.
	inventoryErrs map[string]error
	traitErrs     map[string]error
}

func newMockPlacement() *mockPlacement {
	return &mockPlacement{
		inventories:   make(map[string]resources.Inventories),
		names:         make(map[string]string),
		traits:        make(map[string][]string),
		inventoryErrs: make(map[string]error),
		traitErrs:     make(map[string]error),
	}
}

func (m *mockPlacement) SetInventoryForProvider(ctx context.Context, uuid, name string, inventories resources.Inventories, parentUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inventoryErrs[uuid]; err != nil {
		return err
	}
	m.inventories[uuid] = inventories
	m.names[uuid] = name
	return nil
}

func (m *mockPlacement) SetTraitsForProvider(ctx context.Context, uuid string, traits []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.traitErrs[uuid]; err != nil {
		return err
	}
	m.traits[uuid] = traits
	return nil
}

func (m *mockPlacement) InvalidateProvider(uuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, uuid)
}

func (m *mockPlacement) UpdateInstanceAllocation(ctx context.Context, rpUUID string, consumer reportclient.Consumer, res resources.Resources, sign int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations = append(m.allocations, rpUUID+"/"+consumer.UUID+"="+res.String())
	return nil
}

type mockSource struct {
	nodes []ComputeNode
	err   error
}

func (s *mockSource) ComputeNodes(ctx context.Context) ([]ComputeNode, error) {
	return s.nodes, s.err
}

func TestReporter_RunOnce(t *testing.T) {
	placement := newMockPlacement()
	source := NewStaticSource([]conf.ComputeNodeConfig{
		{UUID: "cn1", HypervisorHostname: "compute1", VCPUs: 8, MemoryMB: 4096, LocalGB: 100, Traits: []string{"CUSTOM_GOLD"}},
		{UUID: "cn2", HypervisorHostname: "compute2", VCPUs: 4},
	})
	monitor := NewMonitor(monitoring.NewRegistry(conf.MonitoringConfig{}))
	reporter := NewReporter(placement, source, conf.ReservedConfig{}, conf.ReporterConfig{}, monitor)

	if err := reporter.RunOnce(t.Context()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(placement.inventories["cn1"]) != 3 || len(placement.inventories["cn2"]) != 1 {
		t.Errorf("unexpected inventories %v", placement.inventories)
	}
	if placement.names["cn1"] != "compute1" {
		t.Errorf("expected the hypervisor hostname as name, got %q", placement.names["cn1"])
	}
	if !slices.Equal(placement.traits["cn1"], []string{"CUSTOM_GOLD"}) {
		t.Errorf("unexpected traits %v", placement.traits["cn1"])
	}
	if _, ok := placement.traits["cn2"]; ok {
		t.Error("expected no traits for a node without configured traits")
	}
	if v := testutil.ToFloat64(monitor.NodesGauge); v != 2 {
		t.Errorf("expected 2 nodes, got %v", v)
	}
	if v := testutil.ToFloat64(monitor.FailedNodesCounter); v != 0 {
		t.Errorf("expected no failed nodes, got %v", v)
	}
}

func TestReporter_RunOnceCollectsFailures(t *testing.T) {
	placement := newMockPlacement()
	placement.inventoryErrs["cn1"] = &reportclient.InventoryInUseError{ProviderUUID: "cn1", ResourceClasses: "'VCPU'"}
	placement.traitErrs["cn2"] = &reportclient.ProviderUpdateConflictError{UUID: "cn2", Generation: 1}
	source := &mockSource{nodes: []ComputeNode{
		{UUID: "cn1", VCPUs: 8},
		{UUID: "cn2", VCPUs: 8, Traits: []string{"CUSTOM_GOLD"}},
		{UUID: "cn3", VCPUs: 8},
	}}
	monitor := NewMonitor(monitoring.NewRegistry(conf.MonitoringConfig{}))
	reporter := NewReporter(placement, source, conf.ReservedConfig{}, conf.ReporterConfig{}, monitor)

	err := reporter.RunOnce(t.Context())
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("expected two errors, got %v", err)
	}
	var inUse *reportclient.InventoryInUseError
	if !errors.As(merr, &inUse) {
		t.Errorf("expected the inventory in use error to be kept, got %v", err)
	}
	if !slices.Equal(placement.invalidated, []string{"cn2"}) {
		t.Errorf("expected cn2 to be invalidated after a conflict, got %v", placement.invalidated)
	}
	if _, ok := placement.inventories["cn3"]; !ok {
		t.Error("expected other nodes to be reported")
	}
	if v := testutil.ToFloat64(monitor.FailedNodesCounter); v != 2 {
		t.Errorf("expected 2 failed nodes, got %v", v)
	}
}

func TestReporter_RunOnceSourceFails(t *testing.T) {
	placement := newMockPlacement()
	source := &mockSource{err: errors.New("nova is down")}
	reporter := NewReporter(placement, source, conf.ReservedConfig{}, conf.ReporterConfig{}, Monitor{})

	if err := reporter.RunOnce(t.Context()); err == nil {
		t.Fatal("expected an error")
	}
	if len(placement.inventories) != 0 {
		t.Errorf("expected nothing to be reported, got %v", placement.inventories)
	}
}

func TestReporter_ReportPeriodicallyStops(t *testing.T) {
	placement := newMockPlacement()
	source := &mockSource{nodes: []ComputeNode{{UUID: "cn1", VCPUs: 1}}}
	reporter := NewReporter(placement, source, conf.ReservedConfig{}, conf.ReporterConfig{}, Monitor{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	reporter.ReportPeriodically(ctx)
	if _, ok := placement.inventories["cn1"]; !ok {
		t.Error("expected one reporting cycle before stopping")
	}
}

func TestReporter_UpdateInstance(t *testing.T) {
	placement := newMockPlacement()
	reporter := NewReporter(placement, &mockSource{}, conf.ReservedConfig{}, conf.ReporterConfig{}, Monitor{})
	instance := Instance{UUID: "instance1", Flavor: Flavor{VCPUs: 2, MemoryMB: 1024, RootGB: 10}}

	if err := reporter.UpdateInstance(t.Context(), "cn1", instance, 1); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !slices.Equal(placement.allocations, []string{"cn1/instance1=DISK_GB:10,MEMORY_MB:1024,VCPU:2"}) {
		t.Errorf("unexpected allocations %v", placement.allocations)
	}
}

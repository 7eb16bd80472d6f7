// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cobaltcore-dev/placement-reporter/internal/reportclient"
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
)

// Operations of the placement client used by the reporter.
type Placement interface {
	SetInventoryForProvider(ctx context.Context, uuid, name string, inventories resources.Inventories, parentUUID string) error
	SetTraitsForProvider(ctx context.Context, uuid string, traits []string) error
	InvalidateProvider(uuid string)
	UpdateInstanceAllocation(ctx context.Context, rpUUID string, consumer reportclient.Consumer, res resources.Resources, sign int) error
}

var _ Placement = (*reportclient.Client)(nil)

// Reports the capacity of compute nodes to placement.
type Reporter struct {
	placement Placement
	source    CapacitySource
	reserved  conf.ReservedConfig
	config    conf.ReporterConfig
	monitor   Monitor
}

func NewReporter(placement Placement, source CapacitySource, reserved conf.ReservedConfig, config conf.ReporterConfig, monitor Monitor) *Reporter {
	return &Reporter{
		placement: placement,
		source:    source,
		reserved:  reserved,
		config:    config,
		monitor:   monitor,
	}
}

// Report the inventory and traits of the compute node.
func (r *Reporter) ReportNode(ctx context.Context, node ComputeNode) error {
	inventory := node.Inventory(r.reserved, r.config.AllocationRatios)
	err := r.placement.SetInventoryForProvider(ctx, node.UUID, node.HypervisorHostname, inventory, "")
	if err != nil {
		var inUse *reportclient.InventoryInUseError
		if errors.As(err, &inUse) {
			slog.Warn("inventory of compute node is still in use", "node", node.UUID, "classes", inUse.ResourceClasses)
		}
		return fmt.Errorf("failed to report inventory of compute node %s: %w", node.UUID, err)
	}
	if node.Traits == nil {
		return nil
	}
	if err := r.placement.SetTraitsForProvider(ctx, node.UUID, node.Traits); err != nil {
		var conflict *reportclient.ProviderUpdateConflictError
		if errors.As(err, &conflict) {
			// Learn the provider again in the next cycle.
			r.placement.InvalidateProvider(node.UUID)
		}
		return fmt.Errorf("failed to report traits of compute node %s: %w", node.UUID, err)
	}
	return nil
}

// Report all compute nodes of the capacity source once. Nodes are reported
// concurrently and all failures are returned together.
func (r *Reporter) RunOnce(ctx context.Context) error {
	if r.monitor.ReportTimer != nil {
		timer := prometheus.NewTimer(r.monitor.ReportTimer)
		defer timer.ObserveDuration()
	}
	nodes, err := r.source.ComputeNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list compute nodes: %w", err)
	}
	if r.monitor.NodesGauge != nil {
		r.monitor.NodesGauge.Set(float64(len(nodes)))
	}
	var (
		mu     sync.Mutex
		result *multierror.Error
		failed int
		wg     sync.WaitGroup
	)
	for _, node := range nodes {
		wg.Go(func() {
			if err := r.ReportNode(ctx, node); err != nil {
				if r.monitor.FailedNodesCounter != nil {
					r.monitor.FailedNodesCounter.Inc()
				}
				mu.Lock()
				result = multierror.Append(result, err)
				failed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	slog.Info("reported compute nodes", "count", len(nodes), "failed", failed)
	return result.ErrorOrNil()
}

// Report the compute nodes until the context is cancelled.
func (r *Reporter) ReportPeriodically(ctx context.Context) {
	for {
		if err := r.RunOnce(ctx); err != nil {
			slog.Error("failed to report compute nodes", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("reporter shutting down")
			return
		case <-time.After(jobloop.DefaultJitter(r.config.Interval())):
		}
	}
}

// Allocate the resources of the instance on the compute node if sign is
// positive, or release all its allocations otherwise.
func (r *Reporter) UpdateInstance(ctx context.Context, nodeUUID string, instance Instance, sign int) error {
	return r.placement.UpdateInstanceAllocation(ctx, nodeUUID, instance.Consumer(), instance.Resources(), sign)
}

// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
	"github.com/cobaltcore-dev/placement-reporter/pkg/keystone"
	"github.com/cobaltcore-dev/placement-reporter/pkg/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/hypervisors"
)

// Source of the compute nodes to report.
type CapacitySource interface {
	// List the compute nodes with their current capacity.
	ComputeNodes(ctx context.Context) ([]ComputeNode, error)
}

// Compute nodes given in the configuration.
type StaticSource struct {
	nodes []ComputeNode
}

func NewStaticSource(nodes []conf.ComputeNodeConfig) *StaticSource {
	s := &StaticSource{nodes: make([]ComputeNode, 0, len(nodes))}
	for _, node := range nodes {
		s.nodes = append(s.nodes, ComputeNode{
			UUID:               node.UUID,
			HypervisorHostname: node.HypervisorHostname,
			VCPUs:              node.VCPUs,
			MemoryMB:           node.MemoryMB,
			LocalGB:            node.LocalGB,
			Traits:             node.Traits,
		})
	}
	return s
}

func (s *StaticSource) ComputeNodes(ctx context.Context) ([]ComputeNode, error) {
	return s.nodes, nil
}

// Compute nodes as known to the nova hypervisor api.
type NovaSource struct {
	keystoneAPI keystone.KeystoneClient
}

func NewNovaSource(keystoneAPI keystone.KeystoneClient) *NovaSource {
	return &NovaSource{keystoneAPI: keystoneAPI}
}

func (s *NovaSource) ComputeNodes(ctx context.Context) ([]ComputeNode, error) {
	client, err := openstack.NovaClient(ctx, s.keystoneAPI)
	if err != nil {
		return nil, err
	}
	slog.Info("fetching hypervisors from nova")
	pages, err := hypervisors.List(client.ServiceClient(), hypervisors.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hypervisors: %w", err)
	}
	list, err := hypervisors.ExtractHypervisors(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract hypervisors: %w", err)
	}
	nodes := make([]ComputeNode, 0, len(list))
	for _, hv := range list {
		// With microversion 2.53, the hypervisor id is the compute node uuid.
		nodes = append(nodes, ComputeNode{
			UUID:               hv.ID,
			HypervisorHostname: hv.HypervisorHostname,
			VCPUs:              hv.VCPUs,
			MemoryMB:           hv.MemoryMB,
			LocalGB:            hv.LocalGB,
		})
	}
	slog.Info("fetched hypervisors", "count", len(nodes))
	return nodes, nil
}

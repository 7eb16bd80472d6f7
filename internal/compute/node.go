// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package compute translates compute nodes and instances into the
// inventories and allocations tracked by placement, and periodically
// reports the compute node capacity.
package compute

import (
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
)

// Compute node whose capacity is reported as a resource provider.
type ComputeNode struct {
	// UUID of the compute node, which is also the resource provider uuid.
	UUID string
	// Used as resource provider name.
	HypervisorHostname string
	VCPUs              int
	MemoryMB           int
	LocalGB            int
	// Allocation ratios of this node. Unset ratios use the configured defaults.
	CPUAllocationRatio  float64
	RAMAllocationRatio  float64
	DiskAllocationRatio float64
	// Traits of the resource provider. Nil leaves the traits untouched.
	Traits []string
}

// Round up the megabytes to full gigabytes.
func mbToCeilGB(mb int) int {
	return (mb + 1023) / 1024
}

// Inventory of the compute node. Resources the node reports no capacity
// for are left out, e.g. for bare metal nodes that are not available.
func (n ComputeNode) Inventory(reserved conf.ReservedConfig, defaults conf.AllocationRatioConfig) resources.Inventories {
	ratios := conf.AllocationRatioConfig{
		CPU:  n.CPUAllocationRatio,
		RAM:  n.RAMAllocationRatio,
		Disk: n.DiskAllocationRatio,
	}
	if ratios.CPU <= 0 {
		ratios.CPU = defaults.CPU
	}
	if ratios.RAM <= 0 {
		ratios.RAM = defaults.RAM
	}
	if ratios.Disk <= 0 {
		ratios.Disk = defaults.Disk
	}
	ratios = ratios.WithDefaults()

	inventory := resources.Inventories{}
	if n.VCPUs > 0 {
		inventory[resources.VCPU] = resources.Inventory{
			Total:           n.VCPUs,
			Reserved:        reserved.HostCPUs,
			MinUnit:         1,
			MaxUnit:         n.VCPUs,
			StepSize:        1,
			AllocationRatio: ratios.CPU,
		}
	}
	if n.MemoryMB > 0 {
		inventory[resources.MemoryMB] = resources.Inventory{
			Total:           n.MemoryMB,
			Reserved:        reserved.MemoryMB(),
			MinUnit:         1,
			MaxUnit:         n.MemoryMB,
			StepSize:        1,
			AllocationRatio: ratios.RAM,
		}
	}
	if n.LocalGB > 0 {
		inventory[resources.DiskGB] = resources.Inventory{
			Total:           n.LocalGB,
			Reserved:        mbToCeilGB(reserved.HostDiskMB),
			MinUnit:         1,
			MaxUnit:         n.LocalGB,
			StepSize:        1,
			AllocationRatio: ratios.Disk,
		}
	}
	return inventory
}

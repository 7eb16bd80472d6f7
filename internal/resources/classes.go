// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package resources models the quantities tracked by placement: resource
// classes, inventory records of a provider and resource amounts of an
// allocation.
package resources

import "strings"

// Standard resource classes known to placement.
const (
	VCPU            = "VCPU"
	MemoryMB        = "MEMORY_MB"
	DiskGB          = "DISK_GB"
	PCIDevice       = "PCI_DEVICE"
	SRIOVNetVF      = "SRIOV_NET_VF"
	NUMASocket      = "NUMA_SOCKET"
	NUMACore        = "NUMA_CORE"
	NUMAThread      = "NUMA_THREAD"
	NUMAMemoryMB    = "NUMA_MEMORY_MB"
	IPv4Address     = "IPV4_ADDRESS"
	VGPU            = "VGPU"
	VGPUDisplayHead = "VGPU_DISPLAY_HEAD"
)

// Prefix of resource classes that need to be registered before use.
const CustomPrefix = "CUSTOM_"

var standardClasses = map[string]struct{}{
	VCPU:            {},
	MemoryMB:        {},
	DiskGB:          {},
	PCIDevice:       {},
	SRIOVNetVF:      {},
	NUMASocket:      {},
	NUMACore:        {},
	NUMAThread:      {},
	NUMAMemoryMB:    {},
	IPv4Address:     {},
	VGPU:            {},
	VGPUDisplayHead: {},
}

// Whether the resource class is built into placement.
func IsStandard(class string) bool {
	_, ok := standardClasses[class]
	return ok
}

// Whether the resource class name carries the custom prefix.
func IsCustom(class string) bool {
	return strings.HasPrefix(class, CustomPrefix)
}

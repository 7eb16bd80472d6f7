// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"testing"

	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
	"github.com/google/go-cmp/cmp"
)

func line(uuid string, res resources.Resources) AllocationRequestItem {
	return AllocationRequestItem{ResourceProvider: ProviderRef{UUID: uuid}, Resources: res}
}

func TestMoveOperationAllocationRequest(t *testing.T) {
	tests := []struct {
		name        string
		current     ConsumerAllocations
		destination AllocationRequest
		expected    []AllocationRequestItem
	}{
		{
			name:        "move to another host",
			current:     ConsumerAllocations{"A": {Resources: resources.Resources{"VCPU": 4}}},
			destination: AllocationRequest{Allocations: []AllocationRequestItem{line("B", resources.Resources{"VCPU": 4})}},
			expected: []AllocationRequestItem{
				line("A", resources.Resources{"VCPU": 4}),
				line("B", resources.Resources{"VCPU": 4}),
			},
		},
		{
			name:        "resize on the same host",
			current:     ConsumerAllocations{"A": {Resources: resources.Resources{"VCPU": 4, "MEMORY_MB": 2048}}},
			destination: AllocationRequest{Allocations: []AllocationRequestItem{line("A", resources.Resources{"VCPU": 4, "MEMORY_MB": 2048})}},
			expected: []AllocationRequestItem{
				line("A", resources.Resources{"VCPU": 8, "MEMORY_MB": 4096}),
			},
		},
		{
			name: "move with shared storage",
			current: ConsumerAllocations{
				"A":      {Resources: resources.Resources{"VCPU": 2}},
				"shared": {Resources: resources.Resources{"DISK_GB": 20}},
			},
			destination: AllocationRequest{Allocations: []AllocationRequestItem{
				line("B", resources.Resources{"VCPU": 2}),
				line("shared", resources.Resources{"DISK_GB": 20}),
			}},
			expected: []AllocationRequestItem{
				line("A", resources.Resources{"VCPU": 2}),
				line("shared", resources.Resources{"DISK_GB": 20}),
				line("B", resources.Resources{"VCPU": 2}),
			},
		},
		{
			name: "resize on the same host with shared storage",
			current: ConsumerAllocations{
				"A":      {Resources: resources.Resources{"VCPU": 2}},
				"shared": {Resources: resources.Resources{"DISK_GB": 20}},
			},
			destination: AllocationRequest{Allocations: []AllocationRequestItem{
				line("A", resources.Resources{"VCPU": 4}),
				line("shared", resources.Resources{"DISK_GB": 40}),
			}},
			expected: []AllocationRequestItem{
				line("A", resources.Resources{"VCPU": 6}),
				line("shared", resources.Resources{"DISK_GB": 60}),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := moveOperationAllocationRequest(tt.current, tt.destination)
			if diff := cmp.Diff(tt.expected, merged.Allocations); diff != "" {
				t.Errorf("unexpected merge result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMoveOperationAllocationRequest_DoesNotModifyInputs(t *testing.T) {
	current := ConsumerAllocations{"A": {Resources: resources.Resources{"VCPU": 4}}}
	destination := AllocationRequest{Allocations: []AllocationRequestItem{line("A", resources.Resources{"VCPU": 4})}}

	merged := moveOperationAllocationRequest(current, destination)
	merged.Allocations[0].Resources["VCPU"] = 100

	if current["A"].Resources["VCPU"] != 4 {
		t.Errorf("expected current allocations to be unchanged, got %v", current)
	}
	if destination.Allocations[0].Resources["VCPU"] != 4 {
		t.Errorf("expected destination request to be unchanged, got %v", destination)
	}
}

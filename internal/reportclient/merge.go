// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"maps"
	"slices"
)

// Combine the current allocations of a consumer with the allocation request
// for the destination of a move, so the consumer holds resources on both
// source and destination until the move is done.
//
// All current allocations are kept. Destination lines for providers the
// consumer doesn't use yet are added. If the destination uses no new
// provider, the move is a resize on the same host and the destination
// amounts are added to the matching current lines instead.
//
// Neither input is modified.
func moveOperationAllocationRequest(current ConsumerAllocations, destination AllocationRequest) AllocationRequest {
	merged := AllocationRequest{
		Allocations: make([]AllocationRequestItem, 0, len(current)+len(destination.Allocations)),
		ProjectID:   destination.ProjectID,
		UserID:      destination.UserID,
	}
	for _, uuid := range slices.Sorted(maps.Keys(current)) {
		merged.Allocations = append(merged.Allocations, AllocationRequestItem{
			ResourceProvider: ProviderRef{UUID: uuid},
			Resources:        current[uuid].Resources.Clone(),
		})
	}

	var added []AllocationRequestItem
	for _, item := range destination.Allocations {
		if _, ok := current[item.ResourceProvider.UUID]; !ok {
			added = append(added, AllocationRequestItem{
				ResourceProvider: item.ResourceProvider,
				Resources:        item.Resources.Clone(),
			})
		}
	}
	if len(added) > 0 {
		merged.Allocations = append(merged.Allocations, added...)
		return merged
	}

	for _, item := range destination.Allocations {
		for i, line := range merged.Allocations {
			if line.ResourceProvider.UUID == item.ResourceProvider.UUID {
				merged.Allocations[i].Resources = line.Resources.Add(item.Resources)
			}
		}
	}
	return merged
}

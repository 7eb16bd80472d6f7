// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
)

// Resource provider as returned by placement.
type ResourceProvider struct {
	UUID               string `json:"uuid"`
	Name               string `json:"name"`
	Generation         int    `json:"generation"`
	ParentProviderUUID string `json:"parent_provider_uuid,omitempty"`
	RootProviderUUID   string `json:"root_provider_uuid,omitempty"`
}

type createProviderRequest struct {
	UUID               string `json:"uuid"`
	Name               string `json:"name"`
	ParentProviderUUID string `json:"parent_provider_uuid,omitempty"`
}

type resourceProviderList struct {
	ResourceProviders []ResourceProvider `json:"resource_providers"`
}

type inventoryList struct {
	ResourceProviderGeneration int                   `json:"resource_provider_generation"`
	Inventories                resources.Inventories `json:"inventories"`
}

type aggregateList struct {
	Aggregates                 []string `json:"aggregates"`
	ResourceProviderGeneration *int     `json:"resource_provider_generation,omitempty"`
}

type traitList struct {
	Traits                     []string `json:"traits"`
	ResourceProviderGeneration *int     `json:"resource_provider_generation,omitempty"`
}

// Reference to a provider in an allocation request.
type ProviderRef struct {
	UUID string `json:"uuid"`
}

// Resources requested from one provider.
type AllocationRequestItem struct {
	ResourceProvider ProviderRef         `json:"resource_provider"`
	Resources        resources.Resources `json:"resources"`
}

// Allocations of one consumer across providers, in the list format used by
// claims and allocation candidates.
type AllocationRequest struct {
	Allocations []AllocationRequestItem `json:"allocations"`
	ProjectID   string                  `json:"project_id,omitempty"`
	UserID      string                  `json:"user_id,omitempty"`
}

// Deep copy.
func (r AllocationRequest) Clone() AllocationRequest {
	out := r
	out.Allocations = make([]AllocationRequestItem, len(r.Allocations))
	for i, item := range r.Allocations {
		out.Allocations[i] = AllocationRequestItem{
			ResourceProvider: item.ResourceProvider,
			Resources:        item.Resources.Clone(),
		}
	}
	return out
}

// Resources a consumer holds on one provider.
type ProviderAllocation struct {
	Generation int                 `json:"generation,omitempty"`
	Resources  resources.Resources `json:"resources"`
}

// Allocations of a consumer by provider uuid.
type ConsumerAllocations map[string]ProviderAllocation

type consumerAllocationsResponse struct {
	Allocations ConsumerAllocations `json:"allocations"`
	ProjectID   string              `json:"project_id,omitempty"`
	UserID      string              `json:"user_id,omitempty"`
}

// Allocations on a provider by consumer uuid.
type ProviderAllocations map[string]ProviderAllocation

type providerAllocationsResponse struct {
	Allocations                ProviderAllocations `json:"allocations"`
	ResourceProviderGeneration int                 `json:"resource_provider_generation"`
}

// Entry of the multi-consumer allocation document, keyed by consumer uuid.
type consumerAllocationsDocument struct {
	Allocations map[string]ProviderAllocation `json:"allocations"`
	ProjectID   string                        `json:"project_id"`
	UserID      string                        `json:"user_id"`
}

// Owner of allocations, usually an instance.
type Consumer struct {
	UUID      string
	ProjectID string
	UserID    string
}

type ResourceCapacity struct {
	Capacity int `json:"capacity"`
	Used     int `json:"used"`
}

type ProviderSummary struct {
	Resources map[string]ResourceCapacity `json:"resources"`
}

// Candidate allocations for a resource request.
type AllocationCandidates struct {
	AllocationRequests []AllocationRequest        `json:"allocation_requests"`
	ProviderSummaries  map[string]ProviderSummary `json:"provider_summaries"`
	// Microversion the candidates were requested with. Claims of a candidate
	// need to use the same microversion.
	Version string `json:"-"`
}

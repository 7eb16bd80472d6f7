// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cobaltcore-dev/placement-reporter/internal/reportclient/conflicts"
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
	"github.com/cobaltcore-dev/placement-reporter/pkg/openstack"
)

const (
	// Default microversion of claims.
	claimVersion = "1.10"
	// Microversion of the multi-consumer allocation document.
	postAllocationsVersion = "1.13"
)

func allocationPath(consumer string) string {
	return "/allocations/" + consumer
}

// Error for a failed allocation write. Concurrent updates of the involved
// providers wrap ErrConcurrentUpdate, so they are retried.
func allocationWriteError(operation, consumer string, resp openstack.Response) error {
	if conflicts.IsConcurrentUpdate(resp.Text()) {
		return fmt.Errorf("%w: another process changed the resource providers involved in %s for consumer %s",
			ErrConcurrentUpdate, operation, consumer)
	}
	slog.Warn("unable to write allocations", "operation", operation, "consumer", consumer,
		"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
	return newUnexpectedStatus(operation+" for consumer "+consumer, resp)
}

// Claim the resources of the allocation request for the consumer. If the
// consumer already holds allocations, this is a move and the consumer keeps
// its current allocations in addition to the new ones.
//
// The version should be the microversion the allocation request was
// obtained with. It defaults to 1.10.
func (c *Client) ClaimResources(ctx context.Context, consumer string, request AllocationRequest, projectID, userID, version string) error {
	if version == "" {
		version = claimVersion
	}
	return c.retry(ctx, "claim resources", func(ctx context.Context) error {
		payload := request.Clone()
		resp, err := c.get(ctx, allocationPath(consumer), "")
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusOK {
			var current consumerAllocationsResponse
			if err := resp.Decode(&current); err != nil {
				return err
			}
			if len(current.Allocations) > 0 {
				slog.Debug("doubling up allocation request for move operation", "consumer", consumer)
				payload = moveOperationAllocationRequest(current.Allocations, payload)
			}
		}
		payload.ProjectID = projectID
		payload.UserID = userID
		resp, err = c.put(ctx, allocationPath(consumer), payload, version)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusNoContent {
			return allocationWriteError("claim resources", consumer, resp)
		}
		return nil
	})
}

// Allocate the resources on the provider for the consumer and, in the same
// request, drop all allocations of the consumer to clear. This finishes a
// move by moving the allocations held by a migration back to the instance.
func (c *Client) SetAndClearAllocations(ctx context.Context, rpUUID, consumer string, res resources.Resources, projectID, userID, consumerToClear string) error {
	payload := map[string]consumerAllocationsDocument{
		consumer: {
			Allocations: map[string]ProviderAllocation{rpUUID: {Resources: res}},
			ProjectID:   projectID,
			UserID:      userID,
		},
	}
	if consumerToClear != "" {
		payload[consumerToClear] = consumerAllocationsDocument{
			Allocations: map[string]ProviderAllocation{},
			ProjectID:   projectID,
			UserID:      userID,
		}
	}
	return c.retry(ctx, "set and clear allocations", func(ctx context.Context) error {
		resp, err := c.post(ctx, "/allocations", payload, postAllocationsVersion)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusNoContent {
			return allocationWriteError("set and clear allocations", consumer, resp)
		}
		return nil
	})
}

// Replace the allocations of the consumer with the resources on one provider.
func (c *Client) PutAllocations(ctx context.Context, rpUUID, consumer string, res resources.Resources, projectID, userID string) error {
	return c.retry(ctx, "put allocations", func(ctx context.Context) error {
		payload := AllocationRequest{
			Allocations: []AllocationRequestItem{{
				ResourceProvider: ProviderRef{UUID: rpUUID},
				Resources:        res,
			}},
			ProjectID: projectID,
			UserID:    userID,
		}
		resp, err := c.put(ctx, allocationPath(consumer), payload, "1.8")
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotAcceptable {
			// Placement is too old to know project and user.
			payload.ProjectID, payload.UserID = "", ""
			if resp, err = c.put(ctx, allocationPath(consumer), payload, ""); err != nil {
				return err
			}
		}
		if resp.StatusCode != http.StatusNoContent {
			return allocationWriteError("put allocations", consumer, resp)
		}
		return nil
	})
}

// Remove the provider from the allocations of the consumer, to finish a
// move away from it. If the consumer uses just one compute provider, the
// move was a resize on the same host: the given resources are subtracted
// from the provider's allocation instead.
func (c *Client) RemoveProviderFromInstanceAllocation(ctx context.Context, consumer, rpUUID, userID, projectID string, res resources.Resources) error {
	resp, err := c.get(ctx, allocationPath(consumer), "")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("failed to retrieve allocations", "consumer", consumer, "status", resp.StatusCode, "requestID", resp.RequestID)
		return newRetrievalFailed("allocations of consumer "+consumer, resp)
	}
	var current consumerAllocationsResponse
	if err := resp.Decode(&current); err != nil {
		return err
	}
	if len(current.Allocations) == 0 {
		slog.Error("expected to find current allocations, but found none", "consumer", consumer)
		return fmt.Errorf("%w: %s", ErrNoAllocations, consumer)
	}
	if _, ok := current.Allocations[rpUUID]; !ok {
		slog.Warn("expected allocations referencing the resource provider, but found none",
			"consumer", consumer, "provider", rpUUID)
		return nil
	}

	computeProviders := 0
	for _, alloc := range current.Allocations {
		if _, ok := alloc.Resources[resources.VCPU]; ok {
			computeProviders++
		}
	}
	slog.Debug("consumer has resources on compute nodes", "consumer", consumer, "computeNodes", computeProviders)

	payload := AllocationRequest{ProjectID: projectID, UserID: userID}
	for uuid, alloc := range current.Allocations {
		if uuid == rpUUID {
			continue
		}
		payload.Allocations = append(payload.Allocations, AllocationRequestItem{
			ResourceProvider: ProviderRef{UUID: uuid},
			Resources:        alloc.Resources,
		})
	}
	if computeProviders == 1 {
		remaining := current.Allocations[rpUUID].Resources.Subtract(res)
		slog.Debug("subtracting old resources from same-host allocation", "consumer", consumer, "resources", remaining.String())
		payload.Allocations = append(payload.Allocations, AllocationRequestItem{
			ResourceProvider: ProviderRef{UUID: rpUUID},
			Resources:        remaining,
		})
	}
	if payload.Allocations == nil {
		payload.Allocations = []AllocationRequestItem{}
	}

	resp, err = c.put(ctx, allocationPath(consumer), payload, "1.10")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		slog.Warn("failed to save allocation", "consumer", consumer,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return newUnexpectedStatus("remove provider "+rpUUID+" from allocations of consumer "+consumer, resp)
	}
	return nil
}

// Allocations of the consumer. Consumers placement doesn't know have none.
func (c *Client) GetAllocationsForConsumer(ctx context.Context, consumer string) (ConsumerAllocations, error) {
	resp, err := c.get(ctx, allocationPath(consumer), "")
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return ConsumerAllocations{}, nil
	}
	var data consumerAllocationsResponse
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	if data.Allocations == nil {
		data.Allocations = ConsumerAllocations{}
	}
	return data.Allocations, nil
}

// Resources the consumer holds on the provider.
func (c *Client) GetAllocationsForConsumerByProvider(ctx context.Context, rpUUID, consumer string) (resources.Resources, error) {
	allocations, err := c.GetAllocationsForConsumer(ctx, consumer)
	if err != nil {
		return nil, err
	}
	alloc, ok := allocations[rpUUID]
	if !ok || alloc.Resources == nil {
		return resources.Resources{}, nil
	}
	return alloc.Resources, nil
}

// Allocations on the provider by consumer. Unknown providers have none.
func (c *Client) GetAllocationsForResourceProvider(ctx context.Context, rpUUID string) (ProviderAllocations, error) {
	resp, err := c.get(ctx, "/resource_providers/"+rpUUID+"/allocations", "")
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return ProviderAllocations{}, nil
	}
	var data providerAllocationsResponse
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	if data.Allocations == nil {
		data.Allocations = ProviderAllocations{}
	}
	return data.Allocations, nil
}

// Delete all allocations of the consumer. Consumers without allocations
// are no error.
func (c *Client) DeleteAllocationForInstance(ctx context.Context, consumer string) error {
	resp, err := c.delete(ctx, allocationPath(consumer), "")
	if err != nil {
		return err
	}
	switch {
	case resp.Success():
		slog.Info("deleted allocation for consumer", "consumer", consumer, "requestID", resp.RequestID)
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		slog.Warn("unable to delete allocation for consumer", "consumer", consumer,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return newUnexpectedStatus("delete allocation for consumer "+consumer, resp)
	}
}

// Allocate the resources of the consumer on the provider if sign is
// positive, or delete all allocations of the consumer otherwise.
func (c *Client) UpdateInstanceAllocation(ctx context.Context, rpUUID string, consumer Consumer, res resources.Resources, sign int) error {
	if sign <= 0 {
		return c.DeleteAllocationForInstance(ctx, consumer.UUID)
	}
	wanted := res.WithoutZeros()
	current, err := c.GetAllocationsForConsumerByProvider(ctx, rpUUID, consumer.UUID)
	if err != nil {
		return err
	}
	if current.Equal(wanted) {
		slog.Debug("allocations of consumer are unchanged", "consumer", consumer.UUID, "resources", wanted.String())
		return nil
	}
	if err := c.PutAllocations(ctx, rpUUID, consumer.UUID, wanted, consumer.ProjectID, consumer.UserID); err != nil {
		return err
	}
	slog.Info("submitted allocation for consumer", "consumer", consumer.UUID, "provider", rpUUID)
	return nil
}

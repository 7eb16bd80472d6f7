// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cobaltcore-dev/placement-reporter/internal/reportclient/conflicts"
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
)

// Set the inventory of the provider, creating the provider and custom
// resource classes as needed. An empty inventory deletes all inventory of
// the provider. The parent, if given, must have been set up before.
func (c *Client) SetInventoryForProvider(ctx context.Context, uuid, name string, inventories resources.Inventories, parentUUID string) error {
	unlock := c.lockProvider(uuid)
	defer unlock()

	if _, err := c.EnsureResourceProvider(ctx, uuid, name, parentUUID); err != nil {
		return err
	}
	for _, class := range inventories.NonStandardClasses() {
		if err := c.EnsureResourceClass(ctx, class); err != nil {
			return err
		}
	}
	if len(inventories) == 0 {
		return c.deleteInventory(ctx, uuid)
	}
	return c.retry(ctx, "update inventory", func(ctx context.Context) error {
		return c.updateInventoryAttempt(ctx, uuid, name, parentUUID, inventories)
	})
}

func inventoryPath(uuid string) string {
	return "/resource_providers/" + uuid + "/inventories"
}

// Current inventory of the provider according to placement. The cache is
// updated along the way if placement reports a generation.
func (c *Client) refreshInventory(ctx context.Context, uuid string) (*inventoryList, error) {
	resp, err := c.get(ctx, inventoryPath(uuid), "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		slog.Info("resource provider no longer exists, dropping it from the provider tree", "provider", uuid, "requestID", resp.RequestID)
		c.InvalidateProvider(uuid)
		return nil, newRetrievalFailed("inventory of resource provider "+uuid, resp)
	}
	if !resp.Success() {
		slog.Warn("failed to get inventory of resource provider", "provider", uuid,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return nil, newRetrievalFailed("inventory of resource provider "+uuid, resp)
	}
	var current inventoryList
	if err := resp.Decode(&current); err != nil {
		return nil, err
	}
	if current.ResourceProviderGeneration != 0 {
		if err := c.tree.UpdateInventory(uuid, current.Inventories, current.ResourceProviderGeneration); err != nil {
			return nil, err
		}
	}
	return &current, nil
}

func (c *Client) updateInventoryAttempt(ctx context.Context, uuid, name, parentUUID string, inventories resources.Inventories) error {
	// A previous attempt may have dropped the provider. It needs to be
	// ensured again by the next call from the outside.
	if !c.tree.Exists(uuid) {
		slog.Warn("unable to refresh resource provider record", "provider", uuid)
		return fmt.Errorf("%w: %s", ErrProviderNotCached, uuid)
	}
	current, err := c.refreshInventory(ctx, uuid)
	if err != nil {
		var retrievalFailed *RetrievalFailedError
		if !errors.As(err, &retrievalFailed) {
			return err
		}
		if retrievalFailed.StatusCode == http.StatusNotFound {
			// The provider was deleted behind our back. Create it again, so
			// the next attempt writes the inventory to the new record.
			if _, err := c.EnsureResourceProvider(ctx, uuid, name, parentUUID); err != nil {
				return err
			}
		}
		return fmt.Errorf("%w: %w", errAttemptFailed, err)
	}
	changed, err := c.tree.HasInventoryChanged(uuid, inventories)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	payload := inventoryList{
		ResourceProviderGeneration: current.ResourceProviderGeneration,
		Inventories:                inventories.Normalized(),
	}
	resp, err := c.put(ctx, inventoryPath(uuid), payload, "")
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusConflict:
		slog.Info("inventory update conflict", "provider", uuid,
			"generation", current.ResourceProviderGeneration, "requestID", resp.RequestID)
		if classes, ok := conflicts.InventoryInUse(resp.Text()); ok {
			return &InventoryInUseError{ProviderUUID: uuid, ResourceClasses: classes}
		}
		// Our view of the provider is outdated. Learn it again, so the next
		// attempt works with the current generation.
		c.InvalidateProvider(uuid)
		if _, err := c.EnsureResourceProvider(ctx, uuid, name, parentUUID); err != nil {
			return err
		}
		return fmt.Errorf("%w: generation conflict on resource provider %s", errAttemptFailed, uuid)
	case resp.StatusCode != http.StatusOK:
		slog.Warn("failed to update inventory of resource provider", "provider", uuid,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		slog.Debug("failed inventory update request", "provider", uuid, "payload", payload)
		return fmt.Errorf("%w: %w", errAttemptFailed, newUnexpectedStatus("update inventory of resource provider "+uuid, resp))
	}

	var updated inventoryList
	if err := resp.Decode(&updated); err != nil {
		return err
	}
	if err := c.tree.UpdateInventory(uuid, inventories, updated.ResourceProviderGeneration); err != nil {
		return err
	}
	slog.Debug("updated inventory", "provider", uuid, "generation", updated.ResourceProviderGeneration)
	return nil
}

// Delete all inventory of the provider. Inventory still in use by
// allocations is left in place with a warning.
func (c *Client) deleteInventory(ctx context.Context, uuid string) error {
	if !c.tree.HasInventory(uuid) {
		return nil
	}
	current, err := c.refreshInventory(ctx, uuid)
	if err != nil {
		var retrievalFailed *RetrievalFailedError
		if errors.As(err, &retrievalFailed) && retrievalFailed.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}
	if len(current.Inventories) == 0 {
		slog.Debug("no inventory to delete from resource provider", "provider", uuid)
		return nil
	}
	slog.Info("resource provider reported no inventory but previous inventory was detected, deleting it", "provider", uuid)

	generation := current.ResourceProviderGeneration
	resp, err := c.delete(ctx, inventoryPath(uuid), "1.5")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotAcceptable {
		slog.Debug("falling back to an empty inventory update to delete inventory", "provider", uuid)
		payload := inventoryList{ResourceProviderGeneration: generation, Inventories: resources.Inventories{}}
		resp, err = c.put(ctx, inventoryPath(uuid), payload, "")
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusOK {
			var updated inventoryList
			if err := resp.Decode(&updated); err != nil {
				return err
			}
			if err := c.tree.UpdateInventory(uuid, nil, updated.ResourceProviderGeneration); err != nil {
				return err
			}
			slog.Info("deleted all inventory", "provider", uuid,
				"generation", updated.ResourceProviderGeneration, "requestID", resp.RequestID)
			return nil
		}
	}

	switch resp.StatusCode {
	case http.StatusNoContent:
		if err := c.tree.UpdateInventory(uuid, nil, generation+1); err != nil {
			return err
		}
		slog.Info("deleted all inventory", "provider", uuid, "requestID", resp.RequestID)
		return nil
	case http.StatusNotFound:
		slog.Debug("resource provider was deleted concurrently while deleting its inventory", "provider", uuid, "requestID", resp.RequestID)
		c.InvalidateProvider(uuid)
		return nil
	case http.StatusConflict:
		if classes, ok := conflicts.InventoryInUse(resp.Text()); ok {
			slog.Warn("cannot delete inventory because it is in use", "provider", uuid,
				"resourceClasses", classes, "requestID", resp.RequestID)
			return nil
		}
	}
	slog.Error("failed to delete inventory of resource provider", "provider", uuid,
		"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
	return newUnexpectedStatus("delete inventory of resource provider "+uuid, resp)
}

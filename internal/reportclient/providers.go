// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cobaltcore-dev/placement-reporter/internal/providertree"
	"github.com/cobaltcore-dev/placement-reporter/internal/reportclient/conflicts"
	"github.com/majewsky/gg/option"
)

// Microversion that introduced nested resource providers.
const nestedProviderVersion = "1.14"

// Make sure placement and the provider tree know the provider. Unknown
// providers are fetched from placement, or created with the given name (the
// uuid if empty) below the given parent. The parent must already be cached.
//
// Cached providers only get their associations refreshed if they are stale,
// newly learned ones always.
func (c *Client) EnsureResourceProvider(ctx context.Context, uuid, name, parentUUID string) (string, error) {
	if c.tree.Exists(uuid) {
		return uuid, c.refreshAssociations(ctx, uuid, option.None[int](), false, withSharingProviders)
	}
	rp, err := c.getResourceProvider(ctx, uuid)
	if err != nil {
		return "", err
	}
	if rp == nil {
		if name == "" {
			name = uuid
		}
		if rp, err = c.createResourceProvider(ctx, uuid, name, parentUUID); err != nil {
			return "", err
		}
	}
	if parentUUID == "" {
		err = c.tree.NewRoot(rp.Name, uuid, rp.Generation)
	} else {
		err = c.tree.NewChild(rp.Name, parentUUID, uuid, rp.Generation)
	}
	// A concurrent ensure of the same provider may have inserted it already.
	if err != nil && !errors.Is(err, providertree.ErrExists) {
		return "", err
	}
	if err := c.refreshAssociations(ctx, uuid, option.Some(rp.Generation), true, withSharingProviders); err != nil {
		return "", err
	}
	return uuid, nil
}

// The provider with the given uuid, or nil if placement doesn't know it.
func (c *Client) getResourceProvider(ctx context.Context, uuid string) (*ResourceProvider, error) {
	resp, err := c.get(ctx, "/resource_providers/"+uuid, nestedProviderVersion)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var rp ResourceProvider
		if err := resp.Decode(&rp); err != nil {
			return nil, err
		}
		return &rp, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		slog.Error("failed to get resource provider", "provider", uuid,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return nil, newRetrievalFailed("resource provider "+uuid, resp)
	}
}

func (c *Client) createResourceProvider(ctx context.Context, uuid, name, parentUUID string) (*ResourceProvider, error) {
	payload := createProviderRequest{UUID: uuid, Name: name, ParentProviderUUID: parentUUID}
	resp, err := c.post(ctx, "/resource_providers", payload, nestedProviderVersion)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusCreated {
		slog.Info("created resource provider", "provider", uuid, "name", name, "requestID", resp.RequestID)
		return &ResourceProvider{UUID: uuid, Name: name, Generation: 0, ParentProviderUUID: parentUUID}, nil
	}
	if resp.StatusCode == http.StatusConflict && !conflicts.IsProviderNameConflict(resp.Text()) {
		slog.Info("resource provider was created concurrently, fetching it", "provider", uuid, "requestID", resp.RequestID)
		rp, err := c.getResourceProvider(ctx, uuid)
		if err != nil {
			return nil, err
		}
		if rp != nil {
			return rp, nil
		}
	}
	slog.Error("failed to create resource provider", "provider", uuid, "name", name,
		"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
	return nil, &ProviderCreationFailedError{UUID: uuid, Name: name, StatusCode: resp.StatusCode, Body: resp.Text()}
}

// Providers in the tree of the given provider, as known to placement.
func (c *Client) ProvidersInTree(ctx context.Context, uuid string) ([]ResourceProvider, error) {
	resp, err := c.get(ctx, "/resource_providers?in_tree="+uuid, nestedProviderVersion)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("failed to get resource providers in tree", "provider", uuid,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return nil, newRetrievalFailed("resource providers in tree of "+uuid, resp)
	}
	var data resourceProviderList
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	return data.ResourceProviders, nil
}

// Delete the provider from placement and from the cache. With cascade, the
// allocations of all consumers on the provider are deleted first. Deleting
// a provider that does not exist is no error.
func (c *Client) DeleteResourceProvider(ctx context.Context, uuid string, cascade bool) error {
	unlock := c.lockProvider(uuid)
	defer unlock()

	if cascade {
		allocations, err := c.GetAllocationsForResourceProvider(ctx, uuid)
		if err != nil {
			return err
		}
		for consumer := range allocations {
			if err := c.DeleteAllocationForInstance(ctx, consumer); err != nil {
				return err
			}
		}
	}
	resp, err := c.delete(ctx, "/resource_providers/"+uuid, "")
	if err != nil {
		return err
	}
	switch {
	case resp.Success():
		slog.Info("deleted resource provider", "provider", uuid, "requestID", resp.RequestID)
	case resp.StatusCode == http.StatusNotFound:
		slog.Info("resource provider was already deleted", "provider", uuid, "requestID", resp.RequestID)
	default:
		slog.Warn("unable to delete resource provider", "provider", uuid,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return newUnexpectedStatus("delete resource provider "+uuid, resp)
	}
	c.InvalidateProvider(uuid)
	c.refreshed.forget(uuid)
	c.forgetProviderLock(uuid)
	return nil
}

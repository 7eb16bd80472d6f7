// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/majewsky/gg/option"
)

// Make sure placement knows all of the traits. Missing traits are created
// one by one in sorted order, so a failure may leave some of them created.
// If the existing traits can't be listed, nothing is created.
func (c *Client) EnsureTraits(ctx context.Context, traits []string) error {
	if len(traits) == 0 {
		return nil
	}
	wanted := slices.Sorted(slices.Values(traits))
	wanted = slices.Compact(wanted)

	resp, err := c.get(ctx, "/traits?name=in:"+strings.Join(wanted, ","), "1.6")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("failed to retrieve the list of traits",
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return &TraitRetrievalFailedError{StatusCode: resp.StatusCode, Body: resp.Text()}
	}
	var existing traitList
	if err := resp.Decode(&existing); err != nil {
		return err
	}
	for _, trait := range wanted {
		if slices.Contains(existing.Traits, trait) {
			continue
		}
		resp, err := c.put(ctx, "/traits/"+trait, nil, "1.6")
		if err != nil {
			return err
		}
		if !resp.Success() {
			return &TraitCreationFailedError{Name: trait, Body: resp.Text()}
		}
	}
	return nil
}

// Replace the traits of a cached provider. A generation conflict is
// reported as *ProviderUpdateConflictError, so the caller can invalidate
// the provider and try again.
func (c *Client) SetTraitsForProvider(ctx context.Context, uuid string, traits []string) error {
	unlock := c.lockProvider(uuid)
	defer unlock()

	changed, err := c.tree.HaveTraitsChanged(uuid, traits)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := c.EnsureTraits(ctx, traits); err != nil {
		return err
	}

	generation, err := c.tree.Generation(uuid)
	if err != nil {
		return err
	}
	if traits == nil {
		traits = []string{}
	}
	path := "/resource_providers/" + uuid + "/traits"
	payload := traitList{Traits: traits, ResourceProviderGeneration: &generation}
	resp, err := c.put(ctx, path, payload, "1.6")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK {
		var updated traitList
		if err := resp.Decode(&updated); err != nil {
			return err
		}
		gen := option.None[int]()
		if updated.ResourceProviderGeneration != nil {
			gen = option.Some(*updated.ResourceProviderGeneration)
		}
		return c.tree.UpdateTraits(uuid, updated.Traits, gen)
	}

	slog.Error("failed to update traits of resource provider", "provider", uuid, "traits", traits,
		"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
	if resp.StatusCode == http.StatusConflict {
		return &ProviderUpdateConflictError{UUID: uuid, Generation: generation, Body: resp.Text()}
	}
	return &ProviderUpdateFailedError{URL: path, StatusCode: resp.StatusCode, Body: resp.Text()}
}

// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/majewsky/gg/option"
)

// How far an association refresh reaches.
type associationScope int

const (
	// Refresh only the aggregates and traits of the provider itself.
	ownAssociationsOnly associationScope = iota
	// Also refresh the providers sharing an aggregate with it, but not the
	// providers sharing aggregates with those.
	withSharingProviders
)

// Whether the associations of the provider were never refreshed, or
// longer ago than the refresh interval.
func (c *Client) associationsStale(uuid string) bool {
	last, ok := c.refreshed.get(uuid)
	return !ok || c.clock.Since(last) > c.refreshInterval
}

// Refresh the aggregates and traits of a cached provider if forced or stale.
// The generation, if given, is stored with them.
func (c *Client) refreshAssociations(ctx context.Context, uuid string, generation option.Option[int], force bool, scope associationScope) error {
	if !force && !c.associationsStale(uuid) {
		return nil
	}
	aggregates, err := c.getProviderAggregates(ctx, uuid)
	if err != nil {
		return err
	}
	if aggs, ok := aggregates.Unpack(); ok {
		slog.Debug("refreshing aggregate associations", "provider", uuid, "aggregates", aggs)
		if err := c.tree.UpdateAggregates(uuid, aggs, generation); err != nil {
			return err
		}
	}
	traits, err := c.getProviderTraits(ctx, uuid)
	if err != nil {
		return err
	}
	if ts, ok := traits.Unpack(); ok {
		slog.Debug("refreshing trait associations", "provider", uuid, "traits", ts)
		if err := c.tree.UpdateTraits(uuid, ts, generation); err != nil {
			return err
		}
	}
	if scope == withSharingProviders {
		aggs, _ := aggregates.Unpack()
		sharing, err := c.getProvidersInAggregates(ctx, aggs)
		if err != nil {
			return err
		}
		for _, rp := range sharing {
			// Sharing providers are roots from the point of view of this
			// provider, wherever they are in their own tree.
			if !c.tree.Exists(rp.UUID) {
				if err := c.tree.NewRoot(rp.Name, rp.UUID, rp.Generation); err != nil {
					return err
				}
			}
			if err := c.refreshAssociations(ctx, rp.UUID, option.None[int](), force, ownAssociationsOnly); err != nil {
				return err
			}
		}
	}
	c.refreshed.set(uuid, c.clock.Now())
	return nil
}

// Aggregates of the provider, or none if they could not be fetched.
func (c *Client) getProviderAggregates(ctx context.Context, uuid string) (option.Option[[]string], error) {
	resp, err := c.get(ctx, "/resource_providers/"+uuid+"/aggregates", "1.1")
	if err != nil {
		return option.None[[]string](), err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		var data aggregateList
		if err := resp.Decode(&data); err != nil {
			return option.None[[]string](), err
		}
		return option.Some(data.Aggregates), nil
	case resp.StatusCode == http.StatusNotFound:
		slog.Warn("resource provider does not exist, not updating its aggregates", "provider", uuid, "requestID", resp.RequestID)
	default:
		slog.Error("failed to get aggregates of resource provider", "provider", uuid,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
	}
	return option.None[[]string](), nil
}

// Traits of the provider, or none if they could not be fetched.
func (c *Client) getProviderTraits(ctx context.Context, uuid string) (option.Option[[]string], error) {
	resp, err := c.get(ctx, "/resource_providers/"+uuid+"/traits", "1.6")
	if err != nil {
		return option.None[[]string](), err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		var data traitList
		if err := resp.Decode(&data); err != nil {
			return option.None[[]string](), err
		}
		return option.Some(data.Traits), nil
	case resp.StatusCode == http.StatusNotFound:
		slog.Warn("resource provider does not exist, not updating its traits", "provider", uuid, "requestID", resp.RequestID)
	default:
		slog.Error("failed to get traits of resource provider", "provider", uuid,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
	}
	return option.None[[]string](), nil
}

// Providers that are members of any of the aggregates.
func (c *Client) getProvidersInAggregates(ctx context.Context, aggregates []string) ([]ResourceProvider, error) {
	if len(aggregates) == 0 {
		return nil, nil
	}
	resp, err := c.get(ctx, "/resource_providers?member_of=in:"+strings.Join(aggregates, ","), "1.3")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("failed to get resource providers in aggregates", "aggregates", aggregates,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return nil, newRetrievalFailed("resource providers in aggregates "+strings.Join(aggregates, ","), resp)
	}
	var data resourceProviderList
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	return data.ResourceProviders, nil
}

// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
)

// Microversion of allocation candidate requests, and thus of claims made
// from them.
const allocationCandidatesVersion = "1.10"

// Ask placement which providers could satisfy the resources.
func (c *Client) GetAllocationCandidates(ctx context.Context, res resources.Resources) (*AllocationCandidates, error) {
	query := url.Values{"resources": {res.String()}}
	resp, err := c.get(ctx, "/allocation_candidates?"+query.Encode(), allocationCandidatesVersion)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("failed to retrieve allocation candidates", "resources", res.String(),
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return nil, newRetrievalFailed("allocation candidates for "+res.String(), resp)
	}
	var candidates AllocationCandidates
	if err := resp.Decode(&candidates); err != nil {
		return nil, err
	}
	candidates.Version = allocationCandidatesVersion
	return &candidates, nil
}

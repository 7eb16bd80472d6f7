// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cobaltcore-dev/placement-reporter/pkg/keystone"
	"github.com/gophercloud/gophercloud/v2"
)

// Create a client for the placement service. The microversion is chosen per
// request, so the service client itself carries none.
func PlacementClient(ctx context.Context, keystoneAPI keystone.KeystoneClient) (*OpenstackClient, error) {
	if err := keystoneAPI.Authenticate(ctx); err != nil {
		return nil, classifyAuthError(fmt.Errorf("failed to authenticate keystone: %w", err))
	}
	// Automatically fetch the placement endpoint from the keystone service catalog.
	provider := keystoneAPI.Client()
	serviceType := "placement"
	sameAsKeystone := keystoneAPI.Availability()
	url, err := keystoneAPI.FindEndpoint(sameAsKeystone, serviceType)
	if err != nil {
		return nil, &UnavailableError{
			Reason: ReasonEndpointNotFound,
			Err:    fmt.Errorf("failed to find placement endpoint: %w", err),
		}
	}
	slog.Info("using placement endpoint", "url", url)
	serviceClient := &gophercloud.ServiceClient{
		ProviderClient: provider,
		Endpoint:       url,
		Type:           serviceType,
	}
	return &OpenstackClient{
		keystoneAPI:            keystoneAPI,
		serviceClient:          serviceClient,
		apiVersionHeaderKey:    "OpenStack-API-Version",
		apiVersionHeaderPrefix: "placement ",
	}, nil
}

// Authentication failures are either rejected credentials or an
// unreachable keystone.
func classifyAuthError(err error) *UnavailableError {
	classified := classifyError(err)
	if gophercloud.ResponseCodeIs(err, 401) {
		classified.Reason = ReasonUnauthorized
	}
	return classified
}

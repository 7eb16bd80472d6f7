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

func NovaClient(ctx context.Context, keystoneAPI keystone.KeystoneClient) (*OpenstackClient, error) {
	if err := keystoneAPI.Authenticate(ctx); err != nil {
		return nil, classifyAuthError(fmt.Errorf("failed to authenticate keystone: %w", err))
	}
	// Automatically fetch the nova endpoint from the keystone service catalog.
	provider := keystoneAPI.Client()
	serviceType := "compute"
	sameAsKeystone := keystoneAPI.Availability()
	url, err := keystoneAPI.FindEndpoint(sameAsKeystone, serviceType)
	if err != nil {
		return nil, &UnavailableError{
			Reason: ReasonEndpointNotFound,
			Err:    fmt.Errorf("failed to find nova endpoint: %w", err),
		}
	}

	microversion := "2.53"
	slog.Info("using nova endpoint", "url", url)
	serviceClient := &gophercloud.ServiceClient{
		ProviderClient: provider,
		Endpoint:       url,
		Type:           serviceType,
		// Since microversion 2.53, the hypervisor id is a UUID which equals
		// the uuid of the compute node's resource provider.
		Microversion: microversion,
	}
	return &OpenstackClient{
		keystoneAPI:            keystoneAPI,
		serviceClient:          serviceClient,
		apiVersionHeaderKey:    "X-OpenStack-Nova-API-Version",
		apiVersionHeaderPrefix: "",
	}, nil
}

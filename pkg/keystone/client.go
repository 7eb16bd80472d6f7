// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
)

// KeystoneClient for OpenStack.
type KeystoneClient interface {
	// Authenticate against the OpenStack keystone.
	Authenticate(context.Context) error
	// Get the OpenStack provider client.
	Client() *gophercloud.ProviderClient
	// Find the endpoint for the given service type and availability.
	FindEndpoint(availability, serviceType string) (string, error)
	// Get the configured availability for keystone.
	Availability() string
	// Drop the current session, so the next authentication fetches a
	// fresh token and service catalog.
	Reset()
}

// KeystoneClient implementation.
type keystoneClient struct {
	mu sync.Mutex
	// OpenStack provider client.
	client *gophercloud.ProviderClient
	// OpenStack keystone configuration.
	keystoneConf conf.KeystoneConfig
	// Optional HTTP client to use for requests.
	httpClient *http.Client
}

// Create a new OpenStack keystone API client.
func NewKeystoneClient(keystoneConf conf.KeystoneConfig) KeystoneClient {
	return &keystoneClient{keystoneConf: keystoneConf}
}

// Create a new OpenStack keystone API with a custom HTTP client.
func NewKeystoneClientWithHTTPClient(keystoneConf conf.KeystoneConfig, httpClient *http.Client) KeystoneClient {
	return &keystoneClient{keystoneConf: keystoneConf, httpClient: httpClient}
}

// Authenticate against OpenStack keystone.
func (api *keystoneClient) Authenticate(ctx context.Context) error {
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.client != nil {
		// Already authenticated.
		return nil
	}
	slog.Info("authenticating against openstack", "url", api.keystoneConf.URL)
	authOptions := gophercloud.AuthOptions{
		IdentityEndpoint: api.keystoneConf.URL,
		Username:         api.keystoneConf.OSUsername,
		DomainName:       api.keystoneConf.OSUserDomainName,
		Password:         api.keystoneConf.OSPassword,
		AllowReauth:      true,
		Scope: &gophercloud.AuthScope{
			ProjectName: api.keystoneConf.OSProjectName,
			DomainName:  api.keystoneConf.OSProjectDomainName,
		},
	}
	provider, err := openstack.NewClient(authOptions.IdentityEndpoint)
	if err != nil {
		return err
	}
	if api.httpClient != nil {
		provider.HTTPClient = *api.httpClient
	}
	if err = openstack.Authenticate(ctx, provider, authOptions); err != nil {
		return err
	}
	api.client = provider
	slog.Info("authenticated against openstack")
	return nil
}

// Find the endpoint for the given service type and availability.
func (api *keystoneClient) FindEndpoint(availability, serviceType string) (string, error) {
	client := api.Client()
	if client == nil {
		return "", gophercloud.ErrEndpointNotFound{}
	}
	return client.EndpointLocator(gophercloud.EndpointOpts{
		Type:         serviceType,
		Availability: gophercloud.Availability(availability),
	})
}

func (api *keystoneClient) Availability() string {
	return api.keystoneConf.Availability
}

// Get the OpenStack provider client.
func (api *keystoneClient) Client() *gophercloud.ProviderClient {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.client
}

func (api *keystoneClient) Reset() {
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.client != nil {
		slog.Info("dropping openstack session", "url", api.keystoneConf.URL)
	}
	api.client = nil
}

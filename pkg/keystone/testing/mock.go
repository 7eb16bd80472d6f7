// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"
	"sync/atomic"

	"github.com/gophercloud/gophercloud/v2"
)

type MockKeystoneClient struct {
	Url             string
	EndpointLocator gophercloud.EndpointLocator
	// Error returned by FindEndpoint, if set.
	EndpointErr error
	// Number of calls to Reset.
	Resets atomic.Int32
}

func (m *MockKeystoneClient) Authenticate(ctx context.Context) error {
	return nil
}

func (m *MockKeystoneClient) Client() *gophercloud.ProviderClient {
	return &gophercloud.ProviderClient{
		EndpointLocator: m.EndpointLocator,
	}
}

func (m *MockKeystoneClient) FindEndpoint(availability, serviceType string) (string, error) {
	if m.EndpointErr != nil {
		return "", m.EndpointErr
	}
	return m.Url, nil
}

func (m *MockKeystoneClient) Availability() string {
	return "" // Mock does not have a specific availability
}

func (m *MockKeystoneClient) Reset() {
	m.Resets.Add(1)
}

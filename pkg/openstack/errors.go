// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gophercloud/gophercloud/v2"
)

// Why a service could not be reached.
type UnavailableReason string

const (
	// The service is not in the keystone catalog.
	ReasonEndpointNotFound UnavailableReason = "endpoint_not_found"
	// The credentials were rejected, also after reauthentication.
	ReasonUnauthorized UnavailableReason = "unauthorized"
	// There is no authenticated session to send requests with.
	ReasonMissingAuth UnavailableReason = "missing_auth"
	// The service did not respond.
	ReasonConnectFailure UnavailableReason = "connect_failure"
)

// Error returned when a request could not be answered by the service.
type UnavailableError struct {
	Reason UnavailableReason
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("openstack service unavailable (%s): %v", e.Reason, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Whether a new session (with a fresh token and service catalog) may
// recover from this error.
func (e *UnavailableError) RecreateSession() bool {
	return e.Reason == ReasonEndpointNotFound || e.Reason == ReasonUnauthorized
}

func classifyError(err error) *UnavailableError {
	var endpointNotFound gophercloud.ErrEndpointNotFound
	var afterReauth gophercloud.ErrErrorAfterReauthentication
	switch {
	case errors.As(err, &endpointNotFound):
		return &UnavailableError{Reason: ReasonEndpointNotFound, Err: err}
	case errors.As(err, &afterReauth), gophercloud.ResponseCodeIs(err, http.StatusUnauthorized):
		return &UnavailableError{Reason: ReasonUnauthorized, Err: err}
	default:
		return &UnavailableError{Reason: ReasonConnectFailure, Err: err}
	}
}

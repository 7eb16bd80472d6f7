// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"errors"
	"fmt"

	"github.com/cobaltcore-dev/placement-reporter/pkg/openstack"
)

var (
	// Placement could not be reached, or the session could not authenticate.
	ErrServiceUnavailable = errors.New("placement service unavailable")
	// Another writer changed the same providers. Claims retry on this.
	ErrConcurrentUpdate = errors.New("resource providers were concurrently updated")
	// All attempts of a retried operation failed.
	ErrRetriesExhausted = errors.New("out of retries")
	// The provider needs to be ensured before it can be updated.
	ErrProviderNotCached = errors.New("resource provider is not in the provider tree")
	// The consumer was expected to hold allocations, but has none.
	ErrNoAllocations = errors.New("consumer has no allocations")

	// An attempt of the inventory update protocol failed and may succeed
	// when repeated with fresh data.
	errAttemptFailed = errors.New("attempt failed")
)

// A resource that should exist could not be fetched.
type RetrievalFailedError struct {
	What       string
	StatusCode int
	Body       string
	RequestID  string
}

func newRetrievalFailed(what string, resp openstack.Response) *RetrievalFailedError {
	return &RetrievalFailedError{What: what, StatusCode: resp.StatusCode, Body: resp.Text(), RequestID: resp.RequestID}
}

func (e *RetrievalFailedError) Error() string {
	return fmt.Sprintf("failed to get %s: status %d [%s]: %s", e.What, e.StatusCode, e.RequestID, e.Body)
}

type ProviderCreationFailedError struct {
	UUID       string
	Name       string
	StatusCode int
	Body       string
}

func (e *ProviderCreationFailedError) Error() string {
	return fmt.Sprintf("failed to create resource provider %s (%s): status %d: %s", e.Name, e.UUID, e.StatusCode, e.Body)
}

// Inventory can't be removed while allocations consume it. This does not
// resolve by retrying.
type InventoryInUseError struct {
	ProviderUUID    string
	ResourceClasses string
}

func (e *InventoryInUseError) Error() string {
	return fmt.Sprintf("inventory for %s on resource provider %s is in use", e.ResourceClasses, e.ProviderUUID)
}

type InvalidResourceClassError struct {
	Name       string
	StatusCode int
	Body       string
}

func (e *InvalidResourceClassError) Error() string {
	return fmt.Sprintf("resource class %s is invalid: status %d: %s", e.Name, e.StatusCode, e.Body)
}

type TraitCreationFailedError struct {
	Name string
	Body string
}

func (e *TraitCreationFailedError) Error() string {
	return fmt.Sprintf("failed to create trait %s: %s", e.Name, e.Body)
}

type TraitRetrievalFailedError struct {
	StatusCode int
	Body       string
}

func (e *TraitRetrievalFailedError) Error() string {
	return fmt.Sprintf("failed to get traits: status %d: %s", e.StatusCode, e.Body)
}

// The provider generation sent with an update was outdated. Callers should
// invalidate the provider and try again with fresh data.
type ProviderUpdateConflictError struct {
	UUID       string
	Generation int
	Body       string
}

func (e *ProviderUpdateConflictError) Error() string {
	return fmt.Sprintf("conflict updating resource provider %s at generation %d: %s", e.UUID, e.Generation, e.Body)
}

type ProviderUpdateFailedError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *ProviderUpdateFailedError) Error() string {
	return fmt.Sprintf("failed to update resource provider via %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Placement answered with a status the operation can't handle.
type UnexpectedStatusError struct {
	Operation  string
	StatusCode int
	Body       string
	RequestID  string
}

func newUnexpectedStatus(operation string, resp openstack.Response) *UnexpectedStatusError {
	return &UnexpectedStatusError{Operation: operation, StatusCode: resp.StatusCode, Body: resp.Text(), RequestID: resp.RequestID}
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d [%s]: %s", e.Operation, e.StatusCode, e.RequestID, e.Body)
}

// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package reportclient keeps the placement service in sync with the
// resource providers of this deployment, and claims resources for consumers.
//
// The reporter in internal/compute drives the provider, inventory and trait
// operations. Claims, allocation moves, provider removal from allocations
// and allocation candidates are meant for scheduler and migration code
// embedding this client.
package reportclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cobaltcore-dev/placement-reporter/internal/providertree"
	"github.com/cobaltcore-dev/placement-reporter/pkg/openstack"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Transport to the placement service. Implementations return a response for
// every status code and only fail if the service could not be reached, in
// which case the error should be an *openstack.UnavailableError.
type Transport interface {
	Get(ctx context.Context, path, microversion string) (openstack.Response, error)
	Post(ctx context.Context, path string, body any, microversion string) (openstack.Response, error)
	Put(ctx context.Context, path string, body any, microversion string) (openstack.Response, error)
	Delete(ctx context.Context, path, microversion string) (openstack.Response, error)
}

// Creates a new session to the placement service. It is called on first use
// and after a session was dropped due to an authentication failure.
type SessionFactory func(ctx context.Context) (Transport, error)

// Defaults used for unset options.
const (
	DefaultRefreshInterval = 300 * time.Second
	DefaultRetryDelay      = time.Second
	// Log every n-th warning about an unavailable placement service.
	warnEvery = 10
)

type Options struct {
	// Age after which the aggregates and traits of a provider are refreshed.
	RefreshInterval time.Duration
	// Delay between attempts of a conflicting write. Zero means DefaultRetryDelay,
	// a negative value means no delay.
	RetryDelay time.Duration
	// Clock used for the association staleness timer. Defaults to the wall clock.
	Clock clock.Clock
	// Metrics, optional.
	Monitor Monitor
}

// Client for the placement service.
//
// The client is safe for concurrent use. It caches what it knows about
// resource providers in a provider tree, which is flushed whenever the
// session needs to be recreated. The cache is an optimization only: all
// writes carry the last known provider generation, so placement rejects
// writes based on outdated information.
type Client struct {
	newSession SessionFactory
	// Serializes session creation, so at most one is built at a time.
	sessions singleflight.Group

	mu      sync.RWMutex
	session Transport

	tree      *providertree.ProviderTree
	refreshed *refreshTimes
	// Per provider mutex for read-modify-write sequences on the tree.
	providerLocks sync.Map

	warnings        *rate.Sometimes
	clock           clock.Clock
	refreshInterval time.Duration
	retryDelay      time.Duration
	monitor         Monitor
}

func NewClient(newSession SessionFactory, opts Options) *Client {
	c := &Client{
		newSession:      newSession,
		tree:            providertree.New(),
		refreshed:       newRefreshTimes(),
		warnings:        &rate.Sometimes{First: 1, Every: warnEvery},
		clock:           opts.Clock,
		refreshInterval: opts.RefreshInterval,
		retryDelay:      opts.RetryDelay,
		monitor:         opts.Monitor,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.refreshInterval <= 0 {
		c.refreshInterval = DefaultRefreshInterval
	}
	switch {
	case c.retryDelay == 0:
		c.retryDelay = DefaultRetryDelay
	case c.retryDelay < 0:
		c.retryDelay = 0
	}
	return c
}

// Provider tree of this client. It reflects what the client learned from
// placement and should only be read by callers.
func (c *Client) ProviderTree() *providertree.ProviderTree {
	return c.tree
}

// Forget a provider, its descendants and their refresh times, so the next
// call re-learns them from placement. Unknown providers are ignored.
func (c *Client) InvalidateProvider(uuid string) {
	uuids, err := c.tree.ProviderUUIDs(uuid)
	if err != nil {
		return
	}
	if err := c.tree.Remove(uuid); err != nil {
		return
	}
	for _, u := range uuids {
		c.refreshed.forget(u)
	}
}

// Lock the given provider for a read-modify-write sequence.
func (c *Client) lockProvider(uuid string) (unlock func()) {
	v, _ := c.providerLocks.LoadOrStore(uuid, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Drop the lock of a deleted provider. Callers still waiting on it proceed
// with the old lock, callers arriving later get a new one; concurrent writes
// are then caught by the provider generation.
func (c *Client) forgetProviderLock(uuid string) {
	c.providerLocks.Delete(uuid)
}

// Current session, created on demand.
func (c *Client) transport(ctx context.Context) (Transport, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session != nil {
		return session, nil
	}
	v, err, _ := c.sessions.Do("session", func() (any, error) {
		c.mu.RLock()
		existing := c.session
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		slog.Info("creating placement session")
		session, err := c.newSession(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
		return session, nil
	})
	if err != nil {
		return nil, c.unavailable(err)
	}
	return v.(Transport), nil
}

// Drop the session and everything cached while it was in use.
func (c *Client) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.tree.Clear()
	c.refreshed.clear()
	c.monitor.sessionReset()
}

// Handle an error of the transport. The returned error wraps ErrServiceUnavailable.
func (c *Client) unavailable(err error) error {
	reason := openstack.ReasonConnectFailure
	var unavailable *openstack.UnavailableError
	if errors.As(err, &unavailable) {
		reason = unavailable.Reason
	}
	c.monitor.unavailable(reason)
	switch reason {
	case openstack.ReasonConnectFailure:
		slog.Warn("placement service is not responding", "error", err)
	case openstack.ReasonEndpointNotFound:
		c.warnings.Do(func() {
			slog.Warn("placement endpoint not found, check that the placement service is enabled", "error", err)
		})
	case openstack.ReasonMissingAuth:
		c.warnings.Do(func() {
			slog.Warn("no authentication information found for the placement service", "error", err)
		})
	case openstack.ReasonUnauthorized:
		c.warnings.Do(func() {
			slog.Warn("placement service credentials do not work", "error", err)
		})
	}
	if unavailable != nil && unavailable.RecreateSession() {
		c.resetSession()
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

func (c *Client) get(ctx context.Context, path, microversion string) (openstack.Response, error) {
	return c.request(ctx, http.MethodGet, path, nil, microversion)
}

func (c *Client) post(ctx context.Context, path string, body any, microversion string) (openstack.Response, error) {
	return c.request(ctx, http.MethodPost, path, body, microversion)
}

func (c *Client) put(ctx context.Context, path string, body any, microversion string) (openstack.Response, error) {
	return c.request(ctx, http.MethodPut, path, body, microversion)
}

func (c *Client) delete(ctx context.Context, path, microversion string) (openstack.Response, error) {
	return c.request(ctx, http.MethodDelete, path, nil, microversion)
}

func (c *Client) request(ctx context.Context, method, path string, body any, microversion string) (openstack.Response, error) {
	session, err := c.transport(ctx)
	if err != nil {
		return openstack.Response{}, err
	}
	start := time.Now()
	var resp openstack.Response
	switch method {
	case http.MethodGet:
		resp, err = session.Get(ctx, path, microversion)
	case http.MethodPost:
		resp, err = session.Post(ctx, path, body, microversion)
	case http.MethodPut:
		resp, err = session.Put(ctx, path, body, microversion)
	case http.MethodDelete:
		resp, err = session.Delete(ctx, path, microversion)
	default:
		return openstack.Response{}, fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return openstack.Response{}, c.unavailable(err)
	}
	c.monitor.observeRequest(method, resp.StatusCode, time.Since(start))
	return resp, nil
}

// Timestamps of the last association refresh per provider.
type refreshTimes struct {
	mu    sync.Mutex
	times map[string]time.Time
}

func newRefreshTimes() *refreshTimes {
	return &refreshTimes{times: make(map[string]time.Time)}
}

func (r *refreshTimes) get(uuid string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.times[uuid]
	return t, ok
}

func (r *refreshTimes) set(uuid string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times[uuid] = t
}

func (r *refreshTimes) forget(uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.times, uuid)
}

func (r *refreshTimes) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = make(map[string]time.Time)
}

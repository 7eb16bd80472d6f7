// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cobaltcore-dev/placement-reporter/pkg/keystone"
	"github.com/gophercloud/gophercloud/v2"
)

// Header under which openstack services return the id of a request, and
// under which a caller may pass a global request id along.
const RequestIDHeader = "X-Openstack-Request-Id"

// All success codes. Anything else is handed back to the caller as a response.
var successCodes = []int{
	http.StatusOK,
	http.StatusCreated,
	http.StatusAccepted,
	http.StatusNoContent,
}

type OpenstackClient struct {
	keystoneAPI   keystone.KeystoneClient
	serviceClient *gophercloud.ServiceClient
	// Header used to request a microversion, and the prefix of its value.
	apiVersionHeaderKey    string
	apiVersionHeaderPrefix string
}

// Response of a request against an openstack service. Non-2xx status codes
// are not reported as errors, callers need to check the status code.
type Response struct {
	StatusCode int
	Body       []byte
	// Request id assigned by the service, if any.
	RequestID string
}

// Whether the status code is a 2xx code.
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Body as text, e.g. for logging or matching error messages.
func (r Response) Text() string {
	return string(r.Body)
}

// Decode the json body into the given value.
func (r Response) Decode(into any) error {
	if err := json.Unmarshal(r.Body, into); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Endpoint of the service this client talks to.
func (c *OpenstackClient) Endpoint() string {
	return c.serviceClient.Endpoint
}

// Underlying gophercloud service client, for use with gophercloud's
// resource packages.
func (c *OpenstackClient) ServiceClient() *gophercloud.ServiceClient {
	return c.serviceClient
}

func (c *OpenstackClient) Get(ctx context.Context, path, microversion string) (Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, microversion)
}

func (c *OpenstackClient) Post(ctx context.Context, path string, body any, microversion string) (Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, microversion)
}

func (c *OpenstackClient) Put(ctx context.Context, path string, body any, microversion string) (Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, microversion)
}

func (c *OpenstackClient) Delete(ctx context.Context, path, microversion string) (Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, microversion)
}

// Send a request to the service and return its response.
//
// The path is relative to the service endpoint and may contain an encoded
// query. An empty microversion sends no version header, which means the
// service uses its minimum version. Errors are only returned when no
// response could be obtained, and are always of type *UnavailableError.
func (c *OpenstackClient) Request(ctx context.Context, method, path string, body any, microversion string) (Response, error) {
	if c.serviceClient.ProviderClient == nil {
		return Response{}, &UnavailableError{Reason: ReasonMissingAuth, Err: errors.New("no provider client")}
	}
	headers := map[string]string{"Accept": "application/json"}
	if microversion != "" {
		headers[c.apiVersionHeaderKey] = c.apiVersionHeaderPrefix + microversion
	}
	if id := GlobalRequestID(ctx); id != "" {
		headers[RequestIDHeader] = id
	}
	opts := &gophercloud.RequestOpts{
		OkCodes:          successCodes,
		KeepResponseBody: true,
		MoreHeaders:      headers,
	}
	if body != nil {
		opts.JSONBody = body
	}
	url := strings.TrimSuffix(c.serviceClient.Endpoint, "/") + "/" + strings.TrimPrefix(path, "/")
	resp, err := c.serviceClient.Request(ctx, method, url, opts)
	if err != nil {
		var unexpected gophercloud.ErrUnexpectedResponseCode
		if errors.As(err, &unexpected) && unexpected.Actual != http.StatusUnauthorized {
			return Response{
				StatusCode: unexpected.Actual,
				Body:       unexpected.Body,
				RequestID:  unexpected.ResponseHeader.Get(RequestIDHeader),
			}, nil
		}
		return Response{}, classifyError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &UnavailableError{Reason: ReasonConnectFailure, Err: err}
	}
	return Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		RequestID:  resp.Header.Get(RequestIDHeader),
	}, nil
}

type globalRequestIDKey struct{}

// Attach a global request id to the context. It is sent along with every
// request made with this context, so the request can be traced across services.
func WithGlobalRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, globalRequestIDKey{}, id)
}

// Global request id attached to the context, if any.
func GlobalRequestID(ctx context.Context) string {
	id, _ := ctx.Value(globalRequestIDKey{}).(string)
	return id
}

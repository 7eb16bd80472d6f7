// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"log/slog"
	"net/http"
)

// Make sure placement knows the custom resource class. Classes created by
// someone else in the meantime are fine.
func (c *Client) EnsureResourceClass(ctx context.Context, name string) error {
	resp, err := c.put(ctx, "/resource_classes/"+name, nil, "1.7")
	if err != nil {
		return err
	}
	switch {
	case resp.Success():
		return nil
	case resp.StatusCode == http.StatusNotAcceptable:
		// Placement is too old for the idempotent create.
		return c.getOrCreateResourceClass(ctx, name)
	default:
		slog.Error("failed to ensure resource class", "resourceClass", name,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return &InvalidResourceClassError{Name: name, StatusCode: resp.StatusCode, Body: resp.Text()}
	}
}

func (c *Client) getOrCreateResourceClass(ctx context.Context, name string) error {
	resp, err := c.get(ctx, "/resource_classes/"+name, "1.2")
	if err != nil {
		return err
	}
	switch {
	case resp.Success():
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return c.createResourceClass(ctx, name)
	default:
		slog.Error("failed to get resource class", "resourceClass", name,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return newRetrievalFailed("resource class "+name, resp)
	}
}

func (c *Client) createResourceClass(ctx context.Context, name string) error {
	resp, err := c.post(ctx, "/resource_classes", map[string]string{"name": name}, "1.2")
	if err != nil {
		return err
	}
	switch {
	case resp.Success():
		slog.Info("created resource class", "resourceClass", name, "requestID", resp.RequestID)
		return nil
	case resp.StatusCode == http.StatusConflict:
		slog.Info("resource class was created concurrently", "resourceClass", name, "requestID", resp.RequestID)
		return nil
	default:
		slog.Error("failed to create resource class", "resourceClass", name,
			"status", resp.StatusCode, "body", resp.Text(), "requestID", resp.RequestID)
		return &InvalidResourceClassError{Name: name, StatusCode: resp.StatusCode, Body: resp.Text()}
	}
}

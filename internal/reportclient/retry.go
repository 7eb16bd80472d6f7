// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eapache/go-resiliency/retrier"
)

// Attempts of writes that may race with other writers.
const maxAttempts = 3

var retryable = []error{errAttemptFailed, ErrConcurrentUpdate}

func isRetryable(err error) bool {
	for _, target := range retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Run the work until it succeeds, fails permanently or runs out of attempts.
// Only errAttemptFailed and ErrConcurrentUpdate are retried.
func (c *Client) retry(ctx context.Context, operation string, work func(ctx context.Context) error) error {
	r := retrier.New(retrier.ConstantBackoff(maxAttempts-1, c.retryDelay), retrier.WhitelistClassifier(retryable))
	err := r.RunFn(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			c.monitor.retried(operation)
		}
		err := work(ctx)
		if isRetryable(err) {
			slog.Debug("placement operation failed, retrying", "operation", operation, "attempt", attempt+1, "error", err)
		}
		return err
	})
	if isRetryable(err) {
		slog.Error("placement operation failed after all attempts", "operation", operation, "attempts", maxAttempts, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, operation, err)
	}
	return err
}

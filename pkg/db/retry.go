package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
)

const (
	DefaultTxAttempts = 3
	retryBaseDelay    = 25 * time.Millisecond
	retryJitter       = 20 * time.Millisecond
)

// RetryHook observes each retried attempt (metrics, logs).
type RetryHook func(attempt int, err error)

// WithTxRetry runs fn in a transaction and replays the whole transaction when
// it fails on contention, up to attempts times. Once attempts are exhausted a
// contention failure is surfaced as a CONCURRENCY_CONFLICT error so the caller
// can retry manually.
func (c *Client) WithTxRetry(ctx context.Context, attempts int, hook RetryHook, fn func(tx *gorm.DB) error) error {
	return RunWithRetry(ctx, attempts, hook, func(ctx context.Context) error {
		return c.WithTx(ctx, fn)
	})
}

// RunWithRetry is the backoff loop behind WithTxRetry.
func RunWithRetry(ctx context.Context, attempts int, hook RetryHook, op func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}
	backoff := retry.WithJitter(retryJitter, retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(retryBaseDelay)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt < attempts && hook != nil {
			hook(attempt, err)
		}
		return retry.RetryableError(err)
	})
	if err != nil && isRetryable(err) {
		if pkgerrors.IsCode(err, pkgerrors.CodeConcurrency) {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "concurrent update detected, please retry")
	}
	return err
}

func isRetryable(err error) bool {
	return IsTransient(err) || pkgerrors.IsCode(err, pkgerrors.CodeConcurrency)
}

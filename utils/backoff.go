// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
)

// InitialRetryInterval is the first pause between attempts. Later pauses
// grow exponentially.
const InitialRetryInterval = 50 * time.Millisecond

// Permanent marks err so the retry helpers stop immediately and return it.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// WithRetriesTimeout uses an exponential backoff to run the operation until
// it succeeds, returns a permanent error, the context ends or timeout has
// elapsed.
func WithRetriesTimeout(
	ctx context.Context,
	logger log.Logger,
	operation backoff.Operation,
	timeout time.Duration,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(InitialRetryInterval),
		backoff.WithMaxElapsedTime(timeout),
	)
	return backoff.RetryNotify(operation, backoff.WithContext(expBackOff, ctx), notifier(logger))
}

// WithMaxRetries runs the operation at most maxRetries+1 times.
func WithMaxRetries(
	operation backoff.Operation,
	maxRetries uint64,
	logger log.Logger,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(InitialRetryInterval),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.RetryNotify(operation, backoff.WithMaxRetries(expBackOff, maxRetries), notifier(logger))
}

func notifier(logger log.Logger) backoff.Notify {
	return func(err error, next time.Duration) {
		logger.Warn("operation failed, retrying",
			log.Err(err),
			log.Stringer("next", next),
		)
	}
}

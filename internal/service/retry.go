package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/metrics"
	"github.com/iliyamo/furniture-reservation/internal/repository"
)

// RetryPolicy re-runs a unit of work after transient storage failures
// with exponential backoff.  Every other error ends the loop on the first
// attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// VersionRetries bounds re-runs of a read-modify-write that lost an
	// optimistic version race.
	VersionRetries int
}

// DefaultRetryPolicy matches the config defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		VersionRetries:  3,
	}
}

func (p RetryPolicy) versionRetries() int {
	if p.VersionRetries < 1 {
		return 1
	}
	return p.VersionRetries
}

// Do runs fn until it succeeds, returns a non-transient error, the
// attempts are exhausted or ctx ends.  The last error is returned as is.
func (p RetryPolicy) Do(ctx context.Context, op string, log *zap.Logger, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil || repository.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		metrics.StorageRetries.WithLabelValues(op).Inc()
		log.Warn("transient storage failure, retrying",
			zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	})
}

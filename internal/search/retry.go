package search

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"btstrm/internal/domain"
)

// RetryPolicy bounds how often one indexer query is repeated. Every attempt
// shares the caller's request timeout.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	MaxDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 2, Backoff: 300 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = 0.25
	b.Multiplier = 2
	return b
}

// retryQuery repeats op while it fails with a retryable kind and attempts
// remain.
func retryQuery[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !classify(err).Retryable() {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return res, err
}

// classify maps a backend error onto the indexer failure taxonomy.
func classify(err error) domain.FailureKind {
	var (
		indexerErr *domain.IndexerError
		netErr     net.Error
	)
	switch {
	case errors.As(err, &indexerErr):
		return indexerErr.Kind
	case errors.Is(err, context.Canceled):
		return domain.FailureCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return domain.FailureTimeout
		}
		return domain.FailureUnavailable
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.FailureUnavailable
	default:
		return domain.FailureUnknown
	}
}

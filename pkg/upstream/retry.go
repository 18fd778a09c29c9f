package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/curate/pkg/logger"
)

// RetryConfig bounds retries of upstream calls. Delays are in milliseconds.
type RetryConfig struct {
	Attempts     int    `mapstructure:"attempts"`
	InitialDelay int    `mapstructure:"initial_delay"`
	MaxDelay     int    `mapstructure:"max_delay"`
	BackoffType  string `mapstructure:"backoff_type"`
}

// DefaultRetryConfig retries twice with exponential backoff.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 1000,
	MaxDelay:     10000,
	BackoffType:  "exponential",
}

// minAttempts guarantees at least one retry.
const minAttempts = 2

// StatusError is a failed upstream call that carries the HTTP status code.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s: %v", e.StatusCode, http.StatusText(e.StatusCode), e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// RetryOnStatus returns a predicate matching StatusErrors with one of codes.
func RetryOnStatus(codes ...int) func(error) bool {
	retryable := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		retryable[c] = struct{}{}
	}
	return func(err error) bool {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			return false
		}
		_, ok := retryable[statusErr.StatusCode]
		return ok
	}
}

// isTransient matches rate limiting (429) and the 403 GitHub returns for
// secondary rate limits.
var isTransient = RetryOnStatus(http.StatusTooManyRequests, http.StatusForbidden)

func withRetry[T any](ctx context.Context, cfg RetryConfig, retryIf func(error) bool, op string, fn func() (T, error)) (T, error) {
	attempts := cfg.Attempts
	if attempts < minAttempts {
		attempts = minAttempts
	}

	var delayType retry.DelayTypeFunc
	switch cfg.BackoffType {
	case "fixed":
		delayType = retry.FixedDelay
	case "exponential":
		fallthrough
	default:
		delayType = retry.BackOffDelay
	}

	result, err := retry.DoWithData(
		fn,
		retry.RetryIf(retryIf),
		retry.Attempts(uint(attempts)),
		retry.Delay(time.Duration(cfg.InitialDelay)*time.Millisecond),
		retry.DelayType(delayType),
		retry.MaxDelay(time.Duration(cfg.MaxDelay)*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("operation", op).
				WithField("attempt", n+1).
				WithField("max_attempts", attempts).
				Warn("retrying upstream call")
		}),
	)
	if err != nil {
		return result, errors.Wrapf(err, "%s failed", op)
	}
	return result, nil
}

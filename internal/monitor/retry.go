package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"carwatch/internal/fetcher"
)

// maxRetryDelay caps the linear backoff.
const maxRetryDelay = 60 * time.Second

// retryable classifies a fetch error. Rate limiting and transient server
// errors (403/429/5xx) are worth retrying, as are plain connection
// failures. A definite client error such as 404 is permanent, and a
// cancelled context means the caller gave up.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *fetcher.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusForbidden, se.Code == http.StatusTooManyRequests:
			return true
		case se.Code >= 500:
			return true
		default:
			return false
		}
	}
	return true
}

// retrier runs an operation with bounded retries and linear backoff
// (baseDelay * attemptNumber, capped). The sleep function is injectable so
// tests can record waits instead of actually waiting.
type retrier struct {
	attempts  int
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	log       logrus.FieldLogger
}

func newRetrier(attempts int, baseDelay time.Duration, logger logrus.FieldLogger) *retrier {
	return &retrier{
		attempts:  attempts,
		baseDelay: baseDelay,
		sleep:     sleepCtx,
		log:       logger,
	}
}

// do runs fn up to r.attempts times. Non-retryable errors stop immediately.
func (r *retrier) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			r.log.WithError(err).WithField("op", op).Debug("Permanent fetch error, not retrying")
			return err
		}
		if attempt == r.attempts {
			break
		}
		delay := r.baseDelay * time.Duration(attempt)
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		r.log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Fetch failed, retrying")
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

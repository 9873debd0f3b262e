package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func withRetry(ctx context.Context, maxRetries uint64, baseDelay time.Duration, fn func() error) error {
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	return backoff.Retry(fn, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

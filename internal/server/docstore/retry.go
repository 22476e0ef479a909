package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
	Cap        time.Duration
}

// DefaultRetryPolicy allows a handful of quick re-runs.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 8, Base: 5 * time.Millisecond, Cap: 250 * time.Millisecond}

func isRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || dbx.IsSerializationFailure(err)
}

// runWithRetry re-runs attempt while it fails with a conflict.
func runWithRetry(ctx context.Context, p RetryPolicy, attempt func(ctx context.Context) error) error {
	b := retry.NewExponential(p.Base)
	b = retry.WithJitterPercent(20, b)
	if p.Cap > 0 {
		b = retry.WithCappedDuration(p.Cap, b)
	}
	b = retry.WithMaxRetries(p.MaxRetries, b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := attempt(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

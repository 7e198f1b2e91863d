package resolver

import (
	"context"
	"time"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
)

// retryBaseDelay is the first backoff step; each further attempt doubles it.
// Variable so tests can shrink the delays.
var retryBaseDelay = time.Second

// submitWithRetry runs a state-changing chain call, retrying transient
// failures up to MaxRetries with exponential backoff. Ambiguous failures are
// never retried here: the transaction may already be on-chain, and only the
// reconcile path may decide what happens next.
func (e *Engine) submitWithRetry(ctx context.Context, opName string, submit func() (string, error)) (string, error) {
	delay := retryBaseDelay

	var txRef string
	var err error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return txRef, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		txRef, err = submit()
		if err == nil {
			return txRef, nil
		}
		if !commonerrors.IsTransient(err) || commonerrors.IsAmbiguous(err) {
			return txRef, err
		}

		e.logger.WithField("operation", opName).
			WithField("attempt", attempt+1).
			WithError(err).
			Warn("Transient chain failure, retrying")
	}

	return txRef, err
}

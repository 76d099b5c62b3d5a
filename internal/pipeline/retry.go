package pipeline

import (
	"context"
	"time"

	"vaultcore/internal/apperr"
)

// retryingRecognizer retries transient recognizer failures with a fixed
// backoff. Fatal failures pass straight through.
type retryingRecognizer struct {
	base       Recognizer
	maxRetries int
	backoff    time.Duration
}

// NewRetryingRecognizer wraps a recognizer with retry on Retryable errors.
func NewRetryingRecognizer(base Recognizer, maxRetries int, backoff time.Duration) Recognizer {
	if base == nil {
		return nil
	}
	return retryingRecognizer{base: base, maxRetries: maxRetries, backoff: backoff}
}

func (r retryingRecognizer) Recognize(ctx context.Context, key, contentType string) (*Result, error) {
	res, err := r.base.Recognize(ctx, key, contentType)
	if err == nil || !shouldRetry(err) {
		return res, err
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff):
		}

		res, err = r.base.Recognize(ctx, key, contentType)
		if err == nil || !shouldRetry(err) {
			return res, err
		}
	}
	return res, err
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return apperr.Retryable(err)
}

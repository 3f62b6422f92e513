package snapshot

import (
	"math/rand"
	"time"
)

// Retry parameters for snapshot writes. Exhausted retries surface as a
// scope-level failure, leaving any prior snapshot for the scope untouched.
const (
	DefaultRetryAttempts = 3
	retryBaseDelay       = 200 * time.Millisecond
	retryMaxDelay        = 5 * time.Second
	retryJitterFactor    = 0.2
)

// computeBackoff calculates the delay before retry attempt n (0-based)
// using exponential backoff with jitter.
func computeBackoff(attempt int, rng *rand.Rand) time.Duration {
	shift := uint(attempt)
	if shift > 16 {
		shift = 16
	}

	backoff := float64(retryBaseDelay) * float64(uint64(1)<<shift)
	if backoff > float64(retryMaxDelay) {
		backoff = float64(retryMaxDelay)
	}

	if rng != nil {
		// jitter in [-factor, +factor] to avoid synchronized retries
		jitter := (rng.Float64()*2 - 1) * retryJitterFactor
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}

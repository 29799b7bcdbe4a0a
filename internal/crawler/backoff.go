package crawler

import "time"

// Backoff computes the retry delay for temporarily failed URLs. The delay
// doubles with every retry and is clamped at Cap, so retry_after increases
// monotonically with retry_count.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff returns the frontier-level retry policy: 5 minutes doubling
// up to 24 hours.
func DefaultBackoff() Backoff {
	return Backoff{
		Base: 5 * time.Minute,
		Cap:  24 * time.Hour,
	}
}

// Delay returns the wait before retry number retryCount (1-based).
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := b.Base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= b.Cap {
			return b.Cap
		}
	}
	if delay > b.Cap {
		return b.Cap
	}
	return delay
}

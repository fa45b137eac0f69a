package polymarket

import (
	"context"
	"sync"
	"time"
)

// tokenBucket throttles outbound API calls. Tokens refill continuously at
// rate per second up to burst; Wait blocks until a token is available or the
// context is cancelled. Polymarket enforces per-IP limits on both the Gamma
// and CLOB APIs, so the clients pace themselves instead of burning requests
// into 429 responses.
type tokenBucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Wait consumes one token, sleeping for the refill time when the bucket is
// empty.
func (b *tokenBucket) Wait(ctx context.Context) error {
	b.mu.Lock()
	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		b.mu.Unlock()
		return nil
	}

	wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	b.tokens--
	b.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Return the reserved token so a cancelled caller does not
		// penalize the next one.
		b.mu.Lock()
		b.tokens++
		b.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package ingest

import (
	"math/rand"
	"time"
)

const maxBackoff = 30 * time.Second

// Backoff returns the delay before retry attempt n (0-indexed): base doubled per
// attempt, capped at 30s, plus up to 50% jitter.
func Backoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(min(attempt, 16))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

package internal

import (
	"context"
	"time"
)

// RateLimiter controls bandwidth usage of a single transfer
type RateLimiter interface {
	// Wait blocks until n more bytes may be moved without exceeding the limit
	Wait(ctx context.Context, n int) error
	// Reserve accounts n moved bytes and returns how long the caller must
	// hold off before moving the next chunk. Zero when unlimited or under budget.
	Reserve(n int) time.Duration
	// SetRate changes the ceiling; 0 removes it
	SetRate(bytesPerSecond int64)
	// Limit returns the current ceiling in bytes/s, 0 if unlimited
	Limit() int64
	// Rate returns the measured rate of the current window in bytes/s
	Rate() int64
}

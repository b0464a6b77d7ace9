// Package transfer moves bytes from an input endpoint to an output endpoint,
// either blocking the caller (Save*) or driven by completions (Init*).
//
// Both paths share one chunk step: read at most one chunk, write all of it,
// account the bytes with the rate limiter, then report progress.
package transfer

import (
	"context"
	"time"

	"tstream/internal"
	"tstream/utils"
)

// step holds the accounting shared by the blocking and async paths
type step struct {
	chunk   int
	limiter internal.RateLimiter
	fn      internal.SaveFunc
	priv    interface{}

	saved int64
	begin time.Time
}

func newStep(config internal.TransferConfig) *step {
	chunk := config.ChunkSize
	if chunk <= 0 {
		chunk = internal.DefaultChunkSize
	}
	if chunk > internal.MaxChunkSize {
		chunk = internal.MaxChunkSize
	}
	return &step{
		chunk:   chunk,
		limiter: utils.NewRateLimiter(config.Limiter, config.RateLimit),
		fn:      config.Func,
		priv:    config.Priv,
	}
}

// begun marks the start of the transfer for the average rate
func (s *step) begun() {
	if s.begin.IsZero() {
		s.begin = time.Now()
	}
}

// size returns how many bytes the next read may ask for. A limit smaller
// than the chunk caps it so one chunk never exceeds a second of budget.
func (s *step) size() int {
	if limit := s.limiter.Limit(); limit > 0 && limit < int64(s.chunk) {
		return int(limit)
	}
	return s.chunk
}

// account records n written bytes and returns the delay before the next read
func (s *step) account(n int) time.Duration {
	s.saved += int64(n)
	return s.limiter.Reserve(n)
}

// progress returns the values passed to the next progress report
func (s *step) progress() (saved, rate int64) {
	return s.saved, s.limiter.Rate()
}

// average returns the mean rate since the transfer began
func (s *step) average() int64 {
	if s.begin.IsZero() {
		return 0
	}
	elapsed := time.Since(s.begin)
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	return s.saved * int64(time.Second) / int64(elapsed)
}

// report invokes the progress callback; false asks the transfer to stop
func report(fn internal.SaveFunc, saved, rate int64, priv interface{}) bool {
	if fn == nil {
		return true
	}
	return fn(saved, rate, priv)
}

// finish invokes the callback with the finished sentinel and the average rate
func finish(fn internal.SaveFunc, average int64, priv interface{}) {
	if fn != nil {
		fn(internal.SizeFinished, average, priv)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

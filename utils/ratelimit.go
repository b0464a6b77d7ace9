package utils

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tstream/internal"
)

// RateWindow is the interval over which bytes are accounted
const RateWindow = time.Second

// Clock abstracts time for deterministic tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// meter measures the rate of the current window
type meter struct {
	windowStart   time.Time
	bytesInWindow int64
	lastRate      int64
}

func (m *meter) roll(now time.Time) time.Duration {
	elapsed := now.Sub(m.windowStart)
	if elapsed < 0 {
		// clock went backwards, start over
		m.windowStart = now
		m.bytesInWindow = 0
		return 0
	}
	if elapsed >= RateWindow {
		m.lastRate = m.bytesInWindow * int64(time.Second) / int64(elapsed)
		m.windowStart = now
		m.bytesInWindow = 0
		return 0
	}
	return elapsed
}

// restart opens a new window at now, keeping the last measured rate
func (m *meter) restart(now time.Time) {
	m.lastRate = m.rate(now)
	m.windowStart = now
	m.bytesInWindow = 0
}

func (m *meter) rate(now time.Time) int64 {
	if m.bytesInWindow == 0 {
		return m.lastRate
	}
	elapsed := now.Sub(m.windowStart)
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	return m.bytesInWindow * int64(time.Second) / int64(elapsed)
}

// WindowLimiter limits throughput by accounting bytes within a fixed window.
// The ceiling may be changed at any time; it applies from the next Reserve.
type WindowLimiter struct {
	mutex sync.Mutex
	limit int64
	meter meter
	clock Clock
}

// NewWindowLimiter creates a new rate limiter, 0 means unlimited
func NewWindowLimiter(bytesPerSecond int64) *WindowLimiter {
	return NewWindowLimiterWithClock(bytesPerSecond, systemClock{})
}

// NewWindowLimiterWithClock creates a limiter reading time from clock
func NewWindowLimiterWithClock(bytesPerSecond int64, clock Clock) *WindowLimiter {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return &WindowLimiter{
		limit: bytesPerSecond,
		meter: meter{windowStart: clock.Now()},
		clock: clock,
	}
}

// Reserve accounts n bytes and returns the delay before the next chunk
func (r *WindowLimiter) Reserve(n int) time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if n < 0 {
		n = 0
	}

	now := r.clock.Now()
	elapsed := r.meter.roll(now)
	r.meter.bytesInWindow += int64(n)

	if r.limit <= 0 {
		return 0
	}

	// time at which bytesInWindow is allowed under the ceiling
	allowed := time.Duration(r.meter.bytesInWindow * int64(time.Second) / r.limit)
	if allowed <= elapsed {
		return 0
	}
	return allowed - elapsed
}

// Wait accounts n bytes and sleeps for the required delay
func (r *WindowLimiter) Wait(ctx context.Context, n int) error {
	return sleep(ctx, r.Reserve(n))
}

// SetRate updates the rate limit. A new limit opens a new window so bytes
// accounted under the old one are not charged against it.
func (r *WindowLimiter) SetRate(bytesPerSecond int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	if bytesPerSecond == r.limit {
		return
	}
	r.limit = bytesPerSecond
	r.meter.restart(r.clock.Now())
}

// Limit returns the configured ceiling
func (r *WindowLimiter) Limit() int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.limit
}

// Rate returns the measured rate in bytes per second
func (r *WindowLimiter) Rate() int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.meter.rate(r.clock.Now())
}

// TokenBucketLimiter implements rate limiting using the token bucket algorithm
type TokenBucketLimiter struct {
	mutex   sync.Mutex
	limiter *rate.Limiter
	limit   int64
	meter   meter
	clock   Clock
}

// NewTokenBucketLimiter creates a new token bucket limiter, 0 means unlimited
func NewTokenBucketLimiter(bytesPerSecond int64) *TokenBucketLimiter {
	return NewTokenBucketLimiterWithClock(bytesPerSecond, systemClock{})
}

// NewTokenBucketLimiterWithClock creates a token bucket reading time from clock
func NewTokenBucketLimiterWithClock(bytesPerSecond int64, clock Clock) *TokenBucketLimiter {
	r := &TokenBucketLimiter{
		meter: meter{windowStart: clock.Now()},
		clock: clock,
	}
	r.setRate(bytesPerSecond)
	return r
}

func (r *TokenBucketLimiter) setRate(bytesPerSecond int64) {
	if bytesPerSecond <= 0 {
		r.limit = 0
		return
	}
	if r.limiter == nil || r.limit == 0 {
		// a fresh bucket starts full with one second worth of tokens
		r.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
	} else if bytesPerSecond < r.limit {
		// debt taken under the old limit is dropped; start from an empty bucket
		now := r.clock.Now()
		r.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
		r.limiter.ReserveN(now, int(bytesPerSecond))
	} else {
		now := r.clock.Now()
		r.limiter.SetLimitAt(now, rate.Limit(bytesPerSecond))
		if int64(r.limiter.Burst()) < bytesPerSecond {
			r.limiter.SetBurstAt(now, int(bytesPerSecond))
		}
	}
	r.limit = bytesPerSecond
}

// Reserve consumes n tokens and returns how long the caller must wait for them
func (r *TokenBucketLimiter) Reserve(n int) time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if n < 0 {
		n = 0
	}

	now := r.clock.Now()
	r.meter.roll(now)
	r.meter.bytesInWindow += int64(n)

	if r.limit <= 0 || n == 0 {
		return 0
	}

	// a chunk larger than the bucket could never be reserved
	if n > r.limiter.Burst() {
		r.limiter.SetBurstAt(now, n)
	}
	res := r.limiter.ReserveN(now, n)
	if !res.OK() {
		return 0
	}
	delay := res.DelayFrom(now)
	if delay < 0 {
		return 0
	}
	return delay
}

// Wait consumes n tokens, sleeping until they are available
func (r *TokenBucketLimiter) Wait(ctx context.Context, n int) error {
	return sleep(ctx, r.Reserve(n))
}

// SetRate updates the rate limit
func (r *TokenBucketLimiter) SetRate(bytesPerSecond int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.setRate(bytesPerSecond)
}

// Limit returns the configured ceiling
func (r *TokenBucketLimiter) Limit() int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.limit
}

// Rate returns the measured rate in bytes per second
func (r *TokenBucketLimiter) Rate() int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.meter.rate(r.clock.Now())
}

// NewRateLimiter returns the limiter selected by kind
func NewRateLimiter(kind internal.LimiterKind, bytesPerSecond int64) internal.RateLimiter {
	if kind == internal.LimiterBucket {
		return NewTokenBucketLimiter(bytesPerSecond)
	}
	return NewWindowLimiter(bytesPerSecond)
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

// ParseRateLimit parses human-readable rate limit strings (e.g., "5M", "1G")
func ParseRateLimit(rateStr string) (int64, error) {
	rateStr = strings.TrimSpace(rateStr)
	if rateStr == "" {
		return 0, nil
	}

	// Handle pure numbers (bytes per second)
	if val, err := strconv.ParseInt(rateStr, 10, 64); err == nil {
		if val < 0 {
			return 0, fmt.Errorf("rate cannot be negative: %d", val)
		}
		return val, nil
	}

	if len(rateStr) < 2 {
		return 0, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	// Extract number and suffix - handle both 1 and 2 character suffixes
	var numStr, suffix string
	rateUpper := strings.ToUpper(rateStr)

	if len(rateUpper) >= 3 && (strings.HasSuffix(rateUpper, "KB") ||
		strings.HasSuffix(rateUpper, "MB") ||
		strings.HasSuffix(rateUpper, "GB") ||
		strings.HasSuffix(rateUpper, "TB")) {
		numStr = rateStr[:len(rateStr)-2]
		suffix = rateUpper[len(rateUpper)-2:]
	} else {
		numStr = rateStr[:len(rateStr)-1]
		suffix = rateUpper[len(rateUpper)-1:]
	}

	baseValue, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value in rate: %s", numStr)
	}

	if baseValue < 0 {
		return 0, fmt.Errorf("rate cannot be negative: %f", baseValue)
	}

	var multiplier int64
	switch suffix {
	case "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	case "T", "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported rate suffix: %s (supported: B, K/KB, M/MB, G/GB, T/TB)", suffix)
	}

	result := int64(baseValue * float64(multiplier))
	if result < 0 {
		return 0, fmt.Errorf("rate value overflow")
	}

	return result, nil
}

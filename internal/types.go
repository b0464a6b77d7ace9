package internal

import "time"

// SaveFunc receives transfer progress.
//
// size is the saved size so far, or -1 once the transfer has finished
// (successfully or not). rate is the current rate in bytes/s, or the
// average rate over the whole transfer when size == -1.
//
// Returning false asks the transfer to stop.
type SaveFunc func(size int64, rate int64, priv interface{}) bool

// SizeFinished is the size passed to a SaveFunc when the transfer is over
const SizeFinished int64 = -1

// SaveFailed is the total reported by the blocking copier on failure
const SaveFailed int64 = -1

// LimiterKind selects the rate limiting strategy
type LimiterKind string

const (
	// LimiterWindow accounts bytes over a fixed one second window
	LimiterWindow LimiterKind = "window"
	// LimiterBucket uses a token bucket
	LimiterBucket LimiterKind = "bucket"
)

// TransferConfig contains per transfer options
type TransferConfig struct {
	ChunkSize int
	RateLimit int64 // bytes per second, 0 = unlimited
	Limiter   LimiterKind
	Func      SaveFunc
	Priv      interface{}
}

// TransferSummary contains final statistics of a finished transfer
type TransferSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed int64 // bytes per second
	Failed       bool
}

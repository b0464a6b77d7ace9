package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultChunkSize is the size of one read/write step
const DefaultChunkSize = 8 * 1024

// MaxChunkSize bounds the transfer buffer
const MaxChunkSize = 4 * 1024 * 1024

// Config holds application configuration
type Config struct {
	ChunkSize   int
	DefaultRate int64 // bytes per second, 0 = unlimited
	Limiter     LimiterKind
	Timeout     time.Duration
	ProxyURL    string

	// Logging configuration
	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:   DefaultChunkSize,
		DefaultRate: 0,
		Limiter:     LimiterWindow,
		Timeout:     30 * time.Second,

		// Logging defaults
		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if chunk := os.Getenv("TSTREAM_CHUNK_SIZE"); chunk != "" {
		if n, err := strconv.Atoi(chunk); err == nil && n > 0 && n <= MaxChunkSize {
			c.ChunkSize = n
		}
	}

	if rate := os.Getenv("TSTREAM_RATE"); rate != "" {
		if r, err := strconv.ParseInt(rate, 10, 64); err == nil && r >= 0 {
			c.DefaultRate = r
		}
	}

	if limiter := os.Getenv("TSTREAM_LIMITER"); limiter != "" {
		c.Limiter = LimiterKind(strings.ToLower(limiter))
	}

	if timeout := os.Getenv("TSTREAM_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t > 0 {
			c.Timeout = time.Duration(t) * time.Second
		}
	}

	if proxy := os.Getenv("TSTREAM_PROXY"); proxy != "" {
		c.ProxyURL = proxy
	}

	// Load logging configuration from environment
	if logLevel := os.Getenv("TSTREAM_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}

	if debug := os.Getenv("TSTREAM_DEBUG"); debug != "" {
		c.EnableDebug = debug == "true" || debug == "1"
	}

	if quiet := os.Getenv("TSTREAM_QUIET"); quiet != "" {
		c.QuietMode = quiet == "true" || quiet == "1"
	}

	if logFile := os.Getenv("TSTREAM_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("invalid chunk size: %d (must be 1-%d)", c.ChunkSize, MaxChunkSize)
	}

	if c.DefaultRate < 0 {
		return fmt.Errorf("invalid rate: %d (must be >= 0)", c.DefaultRate)
	}

	switch c.Limiter {
	case LimiterWindow, LimiterBucket:
	default:
		return fmt.Errorf("invalid limiter: %q (must be %q or %q)", c.Limiter, LimiterWindow, LimiterBucket)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %v (must be > 0)", c.Timeout)
	}

	return nil
}

// TransferConfig returns per transfer options seeded from the configuration
func (c *Config) TransferConfig() TransferConfig {
	return TransferConfig{
		ChunkSize: c.ChunkSize,
		RateLimit: c.DefaultRate,
		Limiter:   c.Limiter,
	}
}

package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swapLogger(t *testing.T, l *SecureLogger) {
	t.Helper()
	previous := GetLogger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(previous) })
}

func TestInitLogger_File(t *testing.T) {
	swapLogger(t, GetLogger())

	path := filepath.Join(t.TempDir(), "tstream.log")
	cfg := DefaultConfig()
	cfg.LogFile = path
	cfg.LogLevel = "debug"
	require.NoError(t, InitLogger(cfg))

	LogDebug("opened %s", "mem://in")
	// a second init closes the first file
	require.NoError(t, InitLogger(DefaultConfig()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "opened mem://in")
}

func TestInitLogger_BadFile(t *testing.T) {
	swapLogger(t, GetLogger())

	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "missing", "tstream.log")
	err := InitLogger(cfg)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "log_file", validationErr.Field)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, parseLogLevel("warning"))
	assert.Equal(t, LogLevelWarn, parseLogLevel(" warn "))
	assert.Equal(t, LogLevelError, parseLogLevel("error"))
	assert.Equal(t, LogLevelInfo, parseLogLevel("info"))
	assert.Equal(t, LogLevelInfo, parseLogLevel("verbose"))
}

func TestLogTransferError_Severity(t *testing.T) {
	var buf bytes.Buffer
	swapLogger(t, NewSecureLogger(&buf, LogLevelWarn, false, false))

	info := NewTransferError(ErrReadFailed, "read", "retrying")
	info.Severity = SeverityInfo
	LogTransferError(info)
	assert.Empty(t, buf.String(), "info is below the warn level")

	warn := NewTransferError(ErrReadFailed, "read", "slow peer")
	warn.Severity = SeverityWarning
	LogTransferError(warn)
	assert.Contains(t, buf.String(), "level=warning")
	assert.Contains(t, buf.String(), "slow peer")

	buf.Reset()
	critical := NewTransferError(ErrWriteFailed, "write", "disk gone")
	critical.Severity = SeverityCritical
	LogTransferError(critical)
	assert.Contains(t, buf.String(), "level=error")
	assert.Contains(t, buf.String(), "critical:")
}

func TestLogValidationError(t *testing.T) {
	var buf bytes.Buffer
	swapLogger(t, NewSecureLogger(&buf, LogLevelError, false, false))

	LogValidationError(NewValidationErrorWithValue("chunk_size", "must be positive", -1))
	assert.Contains(t, buf.String(), "chunk_size")
	assert.Contains(t, buf.String(), "must be positive")
}

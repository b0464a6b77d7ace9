package internal

import (
	"io"
	"os"
	"strings"
	"sync"
)

// process-wide logger used by the Log* helpers and the transfer handles
var (
	loggerMu sync.RWMutex
	logger   *SecureLogger
	logFile  *os.File
)

// InitLogger builds the process logger from config. A log file replaces
// stderr; the file of a previous call is closed.
func InitLogger(config *Config) error {
	var output io.Writer = os.Stderr
	var file *os.File
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return NewValidationError("log_file", "cannot open log file").
				WithSuggestion("Check that the directory exists and is writable").
				WithContext("file", config.LogFile).
				WithContext("error", err.Error())
		}
		output, file = f, f
	}

	loggerMu.Lock()
	previous := logFile
	logger = NewSecureLogger(output, parseLogLevel(config.LogLevel), config.EnableDebug, config.QuietMode)
	logFile = file
	loggerMu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return nil
}

// SetLogger installs l as the process logger
func SetLogger(l *SecureLogger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// GetLogger returns the process logger, creating a stderr one on first use
func GetLogger() *SecureLogger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = NewDefaultLogger(false, false)
	}
	return logger
}

// unknown names fall back to info
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func LogError(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

func LogWarn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

func LogInfo(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

func LogDebug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// LogTransferError logs err at the level matching its severity
func LogTransferError(err *TransferError) {
	l := GetLogger()
	detail := err.DetailedError()

	switch err.Severity {
	case SeverityWarning:
		l.Warn("%s", detail)
	case SeverityInfo:
		l.Info("%s", detail)
	case SeverityCritical:
		l.Error("critical: %s", detail)
	default:
		l.Error("%s", detail)
	}
}

func LogValidationError(err *ValidationError) {
	GetLogger().Error("%s", err.DetailedError())
}

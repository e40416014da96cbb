package txn

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler
// and configures the log level based on the TXN_LOG_LEVEL environment variable.
// It defaults to Info level if not specified.
//
// This function should be called by the application at startup if it wants
// to use the default txn logging configuration.
func ConfigureLogging() {
	// Default to Info
	logLevel.Set(slog.LevelInfo)

	// Check environment variable for log level
	lvl := os.Getenv("TXN_LOG_LEVEL")
	switch lvl {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel sets the logging level for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

var verboseLogging atomic.Bool

// SetVerboseLogging toggles promotion of per-transaction trace lines to debug
// log output. It can be flipped at any time; transactions read it lazily.
func SetVerboseLogging(v bool) {
	verboseLogging.Store(v)
}

// IsVerboseLogging reports whether verbose transaction logging is enabled.
func IsVerboseLogging() bool {
	return verboseLogging.Load()
}

package observability

import (
	"io"
	"log/slog"
	"math"
	"testing"
)

// Log formats accepted by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatNone = "none"
)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))

// NoopLogger returns a disabled Logger.
func NoopLogger() *slog.Logger {
	return noopLogger
}

// NewLogger returns a Logger writing records of at least level to w in format.
// It errors if format is unknown.
func NewLogger(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case FormatNone:
		return noopLogger, nil
	default:
		return nil, newError("unknown log format %q", format)
	}
}

// SetTestDebugLogging assigns DEBUG level to slog Default logger for test duration.
func SetTestDebugLogging(t *testing.T) {
	oldLevel := slog.SetLogLoggerLevel(slog.LevelDebug)
	if oldLevel != slog.LevelDebug {
		t.Logf("Setting slog level to %s", slog.LevelDebug)
		t.Cleanup(func() {
			t.Logf("Restoring slog level to %s", oldLevel)
			slog.SetLogLoggerLevel(oldLevel)
		})
	}
}

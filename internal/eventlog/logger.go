// Package eventlog provides structured logging for the events subsystem.
package eventlog

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger wraps structured logging for the events database and metric type.
type Logger struct {
	logger *slog.Logger
}

// New creates a new Logger with JSON output to stdout.
func New() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{logger: slog.New(handler).With("component", "events")}
}

// NewWithWriter creates a new Logger with JSON output to a custom writer.
// Useful for testing or redirecting output.
func NewWithWriter(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{logger: slog.New(handler).With("component", "events")}
}

// LogRestartInjected logs a restart marker appended at initialize time.
func (l *Logger) LogRestartInjected(ping string, execCounter int64, rawTimestamp int64) {
	l.logger.Info("restart_injected",
		"ping", ping,
		"execution_counter", execCounter,
		"raw_timestamp_ms", rawTimestamp,
	)
}

// LogClockAnomaly logs a non-monotonic start-time observed across restarts.
func (l *Logger) LogClockAnomaly(ping string, currentStartTime, previousStartTime int64) {
	l.logger.Warn("restart_clock_anomaly",
		"ping", ping,
		"current_start_time_ms", currentStartTime,
		"previous_start_time_ms", previousStartTime,
	)
}

// LogCapacitySubmission logs a capacity-triggered submission of the events ping.
func (l *Logger) LogCapacitySubmission(count, maxEvents int) {
	l.logger.Info("submission_scheduled",
		"reason", "max_capacity",
		"event_count", count,
		"max_events", maxEvents,
	)
}

// LogStartupSubmission logs a startup-recovery submission of the events ping.
func (l *Logger) LogStartupSubmission(pings []string) {
	l.logger.Info("submission_scheduled",
		"reason", "startup",
		"pings", pings,
	)
}

// LogStorageFailure logs a swallowed persistent-store read/write failure.
func (l *Logger) LogStorageFailure(op, path string, err error) {
	l.logger.Warn("storage_failure",
		"op", op,
		"path", path,
		"error", err.Error(),
	)
}

// LogMalformedEntry logs a discarded malformed persisted event.
func (l *Logger) LogMalformedEntry(ping string, reason string) {
	l.logger.Warn("malformed_entry_discarded",
		"ping", ping,
		"reason", reason,
	)
}

// LogUploadFailure logs a failed ping upload attempt. No retry is
// scheduled; the events subsystem carries no upload retry/backoff
// policy.
func (l *Logger) LogUploadFailure(ping string, err error) {
	l.logger.Warn("upload_failure",
		"ping", ping,
		"error", err.Error(),
	)
}

// LogDebugPing logs a ping about to be submitted when Configuration.LogPings is set.
func (l *Logger) LogDebugPing(ping, reason string, eventCount int) {
	l.logger.Info("debug_ping",
		"ping", ping,
		"reason", reason,
		"event_count", eventCount,
	)
}

var (
	global     *Logger
	globalMu   sync.RWMutex
	globalNoop = Noop()
)

// SetGlobal sets the global events-subsystem logger instance.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// Global returns the global logger instance, or a shared no-op logger if
// unset.
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global != nil {
		return global
	}
	return globalNoop
}

// Noop returns a logger that discards all output. Useful for tests.
func Noop() *Logger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{logger: slog.New(handler)}
}

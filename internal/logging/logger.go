// Package logging provides leveled logging and run tracing for convbench.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger for structured JSONL run traces (<cache>/trace.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TraceFile is the JSONL trace file name inside the cache directory.
const TraceFile = "trace.jsonl"

// LevelTrace is a custom slog level below Debug. At this level every tracked
// iteration is logged.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "error", "warn", "warning", "info", "debug", "trace":
		return true
	}
	return false
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// TraceEvent is one line of the run trace. Empty fields are omitted.
type TraceEvent struct {
	Time       string   `json:"time"`
	Event      string   `json:"event"`
	Name       string   `json:"name,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	System     string   `json:"system,omitempty"`
	Algorithm  string   `json:"algorithm,omitempty"`
	Trial      *int     `json:"trial,omitempty"`
	Hit        *bool    `json:"hit,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Iterations int      `json:"iterations,omitempty"`
	Seconds    float64  `json:"seconds,omitempty"`
	Benchmark  *float64 `json:"benchmark,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// TraceLogger writes TraceEvents to a JSONL file.
// It is safe for concurrent use. A nil TraceLogger is safe to use;
// all methods are no-ops on nil receiver.
type TraceLogger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewTraceLogger creates a trace logger writing to dir/trace.jsonl.
// At "info" level and above, returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewTraceLogger(dir string, level string) *TraceLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, TraceFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TraceLogger{file: f, now: time.Now}
}

// Log writes an event as a single JSONL line, stamping Time if unset.
// Safe to call on nil receiver.
func (tl *TraceLogger) Log(event TraceEvent) {
	if tl == nil || tl.file == nil {
		return
	}
	if event.Time == "" {
		event.Time = tl.now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()
	_, _ = tl.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *TraceLogger) Close() {
	if tl == nil || tl.file == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.file.Close()
	tl.file = nil
}

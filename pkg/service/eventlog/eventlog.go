// Package eventlog writes the operator-facing event log: one JSON object per
// line with time, level, message and an optional data object.
package eventlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/interfaces"
	"github.com/secmon-lab/bulkdm/pkg/utils/errutil"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
)

// DefaultFileName is the log file name inside the app root
const DefaultFileName = "slack_dm_sender.log"

// timeFormat is ISO 8601 in UTC with millisecond precision
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger appends events to a file. A nil *Logger discards everything.
type Logger struct {
	path   string
	logger *slog.Logger
	closer io.Closer
}

var _ interfaces.EventLog = (*Logger)(nil)

// Open creates the log file if needed and opens it for appending
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create log directory", goerr.V("path", path))
	}

	// #nosec G304 - path is configured by the operator
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open event log", goerr.V("path", path))
	}

	l := New(f, path)
	l.closer = f
	return l, nil
}

// New writes events to w. path is only reported by Path.
func New(w io.Writer, path string) *Logger {
	filter := logging.Filter()
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.MessageKey:
					a.Key = "message"
					return a
				case slog.TimeKey:
					return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(timeFormat))
				case slog.LevelKey:
					return a
				}
			}
			return filter(groups, a)
		},
	})

	return &Logger{
		path:   path,
		logger: slog.New(handler),
	}
}

// Path returns the log file location
func (x *Logger) Path() string {
	if x == nil {
		return ""
	}
	return x.path
}

// Info records an informational event
func (x *Logger) Info(ctx context.Context, event string, data map[string]any) {
	x.log(ctx, slog.LevelInfo, event, data)
}

// Error records a failure event
func (x *Logger) Error(ctx context.Context, event string, data map[string]any) {
	x.log(ctx, slog.LevelError, event, data)
}

func (x *Logger) log(ctx context.Context, level slog.Level, event string, data map[string]any) {
	if x == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// slog drops handler write errors, so a full disk never reaches the caller
	if len(data) == 0 {
		x.logger.Log(ctx, level, event)
		return
	}
	x.logger.Log(ctx, level, event, slog.Any("data", data))
}

// Close closes the underlying file, if any
func (x *Logger) Close(ctx context.Context) {
	if x == nil || x.closer == nil {
		return
	}
	if err := x.closer.Close(); err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to close event log",
			goerr.V("path", x.path)), "failed to close event log")
	}
}

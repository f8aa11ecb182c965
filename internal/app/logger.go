package app

import (
	"io"
	"log/slog"
)

// logLevels maps -log-level flag values to slog levels. The CLI validates
// the flag, so unknown values only occur when a Config is assembled
// programmatically; those fall back to info.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the engine's logger from the configured level and
// output format. Each App owns its logger instance; the global slog
// default is never touched.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level, ok := logLevels[levelStr]
	if !ok {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}

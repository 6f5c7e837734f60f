// Package logger configures the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// L is the configured logger. It is slog.Default() until Init runs.
var L = slog.Default()

var (
	mu   sync.Mutex
	file io.Closer
)

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Init builds the logger for stderr and, when path is set, fans records out to
// a JSON log file as well. It replaces L and the slog default.
func Init(level, format, path string) error {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	handler := newHandler(os.Stderr, format, opts)

	mu.Lock()
	defer mu.Unlock()
	var opened *os.File
	if path = strings.TrimSpace(path); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		opened = f
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, opts))
	}
	if file != nil {
		_ = file.Close()
		file = nil
	}
	if opened != nil {
		file = opened
	}
	L = slog.New(handler)
	slog.SetDefault(L)
	return nil
}

// Close releases the log file opened by Init, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

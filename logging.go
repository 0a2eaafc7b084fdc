package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/onnwee/livewatch/config"
)

// setupLogging installs the default slog logger. Logs go to w (stderr) so
// stdout carries only marker lines and chat; LOG_FILE additionally appends
// every record to a file. The returned func closes the file.
func setupLogging(cfg *config.Config, w io.Writer) (func(), error) {
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closeFn = func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
			}
		}
	}
	slog.SetDefault(slog.New(newHandler(w, cfg.LogFormat, lvl)))
	slog.Debug("logger initialized", slog.String("level", lvl.String()), slog.String("format", strings.ToLower(cfg.LogFormat)))
	return closeFn, nil
}

func newHandler(w io.Writer, format string, lvl slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

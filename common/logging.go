// Package common holds shared service plumbing: logger setup and version.
package common

import (
	"log/slog"
	"os"
)

// LoggingOpts configures the process-wide structured logger.
type LoggingOpts struct {
	// Service is added as a 'service' tag to all log lines.
	Service string

	// JSON enables JSON log output instead of text.
	JSON bool

	// Debug lowers the log level to debug.
	Debug bool

	// Version is added as a 'version' tag to all log lines, if set.
	Version string
}

// SetupLogger creates a slog logger according to opts, writing to stderr.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	log = log.With("service", opts.Service)
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}

// Package logging builds the *log.Logger values handed to components.
//
// Every component logs through a stdlib logger whose prefix names it, e.g.
// "[scene] " or "[material] ". New builds the shared base writer: stderr,
// plus a size-rotated log file when one is configured.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging settings.
type Config struct {
	// File is the path of a rotated log file. Empty disables file logging.
	File string

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// Verbose enables per-event debug output.
	Verbose bool

	// Quiet drops stderr output; only the log file is written.
	Quiet bool
}

// DefaultConfig returns stderr-only logging.
func DefaultConfig() Config {
	return Config{MaxSizeMB: 10, MaxBackups: 3}
}

// Logger is a base logger plus the resources behind it.
type Logger struct {
	*log.Logger
	verbose bool
	file    *lumberjack.Logger
}

// New builds the base logger.
func New(cfg Config) *Logger {
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   false,
		}
		writers = append(writers, file)
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	return &Logger{
		Logger:  log.New(w, "", log.LstdFlags),
		verbose: cfg.Verbose,
		file:    file,
	}
}

// Verbose reports whether debug output is enabled.
func (l *Logger) Verbose() bool {
	return l.verbose
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// For derives a component logger from base. A nil base yields a stderr
// logger.
func For(base *log.Logger, component string) *log.Logger {
	prefix := "[" + component + "] "
	if base == nil {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(base.Writer(), prefix, base.Flags())
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

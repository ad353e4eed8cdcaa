// Package logging builds the prefixed loggers the engine's components use.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger with the given bracketed prefix writing to w.
// Pass io.Discard to silence a component (tests do this).
func New(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.New(w, "["+prefix+"] ", log.LstdFlags)
}

// RotatingWriter returns a size-rotated log file writer for daemon mode.
// The file and its parents are created on first write.
func RotatingWriter(path string, maxSizeMB, maxBackups int) io.Writer {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}

// Tee writes daemon logs both to the rotated file and to stderr so
// foreground runs stay observable.
func Tee(path string, maxSizeMB, maxBackups int) io.Writer {
	return io.MultiWriter(os.Stderr, RotatingWriter(path, maxSizeMB, maxBackups))
}

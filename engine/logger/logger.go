// logger.go provides the process-wide structured logger shared by every engine component.
// Components take a *log.Logger through their builder options and fall back to Default().
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	once      sync.Once
	singleton *log.Logger
)

// Default returns the shared engine logger, creating it on first use.
// It writes to stderr with RFC3339 timestamps at Info level.
//
// Returns:
//   - *log.Logger: the shared logger
func Default() *log.Logger {
	once.Do(func() {
		singleton = New(os.Stderr, "oxy-skin")
	})
	return singleton
}

// New creates a logger writing to w with the engine's formatting options.
//
// Parameters:
//   - w: the destination writer
//   - prefix: the prefix printed before every message
//
// Returns:
//   - *log.Logger: the configured logger
func New(w io.Writer, prefix string) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          prefix,
	})
	l.SetLevel(log.InfoLevel)
	return l
}

// Discard returns a logger that drops everything. Used by tests and benchmarks.
//
// Returns:
//   - *log.Logger: a logger writing to io.Discard
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// SetLevel parses a level name ("debug", "info", "warn", "error", "fatal") and applies it to l.
// An empty name leaves the level unchanged.
//
// Parameters:
//   - l: the logger to update
//   - level: the level name
//
// Returns:
//   - error: an error if the level name is not recognized
func SetLevel(l *log.Logger, level string) error {
	if level == "" {
		return nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}

// Component returns a child logger tagged with the component name.
//
// Parameters:
//   - l: the parent logger, or nil for Default()
//   - name: the component name
//
// Returns:
//   - *log.Logger: the child logger
func Component(l *log.Logger, name string) *log.Logger {
	if l == nil {
		l = Default()
	}
	return l.With("component", name)
}

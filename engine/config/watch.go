package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration file at path whenever it is written or replaced and passes the
// new configuration to onChange. Files that fail to parse are logged and skipped.
// The parent directory is watched so that editors that save by rename are followed.
// Watch blocks until ctx is done.
//
// Parameters:
//   - ctx: cancels the watch
//   - path: the TOML file
//   - l: the logger for reload failures, or nil for the default logger
//   - onChange: called with every successfully parsed configuration
//
// Returns:
//   - error: an error if the watcher could not be started
func Watch(ctx context.Context, path string, l *log.Logger, onChange func(Config)) error {
	if l == nil {
		l = logger.Component(nil, "config")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != abs || !e.Op.Has(fsnotify.Write) && !e.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				l.Warn("config reload failed", "path", abs, "err", err)
				continue
			}
			l.Info("config reloaded", "path", abs)
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Error("config watcher error", "err", err)
		}
	}
}

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads path into cfg whenever the file changes, until ctx is done.
// A file that fails to parse or validate is logged and the old settings stay live.
// onReload (optional) runs after each successful swap.
func Watch(ctx context.Context, path string, cfg *Config, onReload func()) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: atomic saves replace the file inode.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != absPath {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				reload(absPath, cfg, onReload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	slog.Info("watching config file", "path", absPath)
	return nil
}

func reload(path string, cfg *Config, onReload func()) {
	next, err := Load(path)
	if err != nil {
		slog.Warn("config reload failed, keeping old config", "error", err)
		return
	}
	if err := next.Validate(); err != nil {
		slog.Warn("config reload rejected, keeping old config", "error", err)
		return
	}
	before := cfg.Hash()
	cfg.ReplaceFrom(next)
	if cfg.Hash() == before {
		return
	}
	slog.Info("config reloaded", "path", path)
	if onReload != nil {
		onReload()
	}
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchPollInterval = time.Second
	settleDelay       = 50 * time.Millisecond
)

// Watch calls onChange with the reloaded config whenever path changes, until
// ctx is done. A file that fails to parse is logged and skipped. When fsnotify
// is unavailable it falls back to polling the modification time.
func Watch(ctx context.Context, path string, onChange func(*Config)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("fsnotify not available, falling back to polling")
		watchWithPolling(ctx, path, onChange)
		return
	}
	defer watcher.Close()

	// 监听目录，编辑器保存时常常是重命名替换
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn().Err(err).Msg("Failed to watch config directory, falling back to polling")
		watchWithPolling(ctx, path, onChange)
		return
	}
	logger.Info().Str("path", path).Msg("Config watcher started (using fsnotify)")

	pollTicker := time.NewTicker(watchPollInterval)
	defer pollTicker.Stop()
	lastMod := modTime(path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				watchWithPolling(ctx, path, onChange)
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) ||
				!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			time.Sleep(settleDelay)
			lastMod = modTime(path)
			reload(path, onChange)

		case <-pollTicker.C:
			if m := modTime(path); m.After(lastMod) {
				time.Sleep(settleDelay)
				lastMod = m
				reload(path, onChange)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				watchWithPolling(ctx, path, onChange)
				return
			}
			logger.Warn().Err(err).Msg("Config watcher error")

		case <-ctx.Done():
			return
		}
	}
}

func watchWithPolling(ctx context.Context, path string, onChange func(*Config)) {
	logger.Info().Str("path", path).Msg("Config watcher started (using polling fallback)")
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	lastMod := modTime(path)
	for {
		select {
		case <-ticker.C:
			if m := modTime(path); m.After(lastMod) {
				lastMod = m
				reload(path, onChange)
			}
		case <-ctx.Done():
			return
		}
	}
}

func reload(path string, onChange func(*Config)) {
	cfg, err := LoadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Failed to reload config, keeping current settings")
		return
	}
	onChange(cfg)
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

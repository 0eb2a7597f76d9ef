package app

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"obskit/internal/domain"
	"obskit/internal/infra/hashutil"
)

const defaultReloadDebounce = 200 * time.Millisecond

// ErrConfigPathRequired is returned by WatchConfig for an empty path.
var ErrConfigPathRequired = errors.New("config path is required")

// WatchConfig reloads the config at path whenever it changes and passes each
// valid result to onChange. Invalid configs are reported through onError and
// otherwise ignored. Saves that leave the effective config unchanged are
// dropped. It blocks until ctx is done.
func WatchConfig(ctx context.Context, path string, onChange func(Config), onError func(error)) error {
	if path == "" {
		return ErrConfigPathRequired
	}
	if onError == nil {
		onError = func(error) {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var lastETag string
	if cfg, err := LoadConfig(path); err == nil {
		_, lastETag = hashutil.Changed("", cfg)
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				onError(err)
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !shouldReloadForPath(event.Name, path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(defaultReloadDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(defaultReloadDebounce)
		case <-timerChan(timer):
			timer = nil
			cfg, err := LoadConfig(path)
			if err != nil {
				onError(err)
				continue
			}
			changed, etag := hashutil.Changed(lastETag, cfg)
			if !changed {
				continue
			}
			lastETag = etag
			onChange(cfg)
		}
	}
}

// WatchAndApply keeps m in sync with the config file at path.
func (m *Manager) WatchAndApply(ctx context.Context, path string) error {
	return WatchConfig(ctx, path, m.ApplyConfig, func(err error) {
		if logger, lerr := m.Logger(); lerr == nil {
			logger.Warn("Config reload failed", domain.LogContext{Operation: "config"}, map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		}
	})
}

func shouldReloadForPath(path string, configPath string) bool {
	if path == "" || configPath == "" {
		return false
	}
	return filepath.Clean(path) == filepath.Clean(configPath)
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

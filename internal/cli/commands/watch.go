package commands

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// watchedExts are the project files that trigger a re-conversion.
var watchedExts = map[string]bool{".sql": true, ".yml": true, ".yaml": true}

// unwatchedDirs hold build output and installed packages.
var unwatchedDirs = map[string]bool{"target": true, "dbt_packages": true, "dbt_modules": true, "logs": true}

// watchProject calls rebuild after project files change, coalescing bursts of
// events within debounce. It returns when ctx is cancelled. Rebuild errors are
// logged and do not stop the loop.
func watchProject(ctx context.Context, root string, logger *slog.Logger, debounce time.Duration, rebuild func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirs(watcher, root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchDirs(watcher, event.Name); err != nil {
						logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if event.Has(fsnotify.Chmod) || !watchedExts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			logger.Debug("project file changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := rebuild(); err != nil {
				logger.Error("re-conversion failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// watchDirs recursively adds directories to the watcher.
func watchDirs(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || unwatchedDirs[name]) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

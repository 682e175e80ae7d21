package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xaimorph/morphd/internal/log"
)

// rescanDebounce coalesces bursts of filesystem events into one rescan.
const rescanDebounce = 500 * time.Millisecond

// Watch rescans the library whenever files under the root change, until ctx
// ends. Category directories added later are picked up because the rescan
// re-registers watches.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("library: watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	logger := log.WithComponent("library")
	if err := l.addWatches(watcher); err != nil {
		return err
	}

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(rescanDebounce)
				fire = debounce.C
			} else {
				if !debounce.Stop() {
					<-debounce.C
				}
				debounce.Reset(rescanDebounce)
			}
		case <-fire:
			debounce = nil
			fire = nil
			if err := l.Scan(); err != nil {
				logger.Warn().Err(err).Msg("rescan failed")
				continue
			}
			if err := l.addWatches(watcher); err != nil {
				logger.Warn().Err(err).Msg("could not refresh watches")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// addWatches registers the root and every category directory. Adding an
// already watched directory is a no-op for fsnotify.
func (l *Library) addWatches(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(l.root); err != nil {
		return fmt.Errorf("library: watch %s: %w", l.root, err)
	}
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("library: read root %s: %w", l.root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := watcher.Add(filepath.Join(l.root, e.Name())); err != nil {
			logger := log.WithComponent("library")
			logger.Warn().Err(err).Str(log.FieldCategory, e.Name()).Msg("could not watch category")
		}
	}
	return nil
}

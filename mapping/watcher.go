package mapping

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rudderlabs/rudder-go-kit/logger"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/cefstream/cefstream/utils/misc"
)

// WatchFile reloads the mapping document at path whenever it is rewritten on
// disk and hands the freshly loaded catalog to onReload. A document that no
// longer validates is reported and the catalog currently being served stays
// in place. Rapid successive writes are debounced. Returns when ctx is done.
func WatchFile(ctx context.Context, path string, log logger.Logger, debounce time.Duration, onReload func(*Catalog)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create mapping watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// let the writer finish, then collapse the burst into one reload
			if err := misc.SleepCtx(ctx, debounce); err != nil {
				return nil
			}
			for drained := false; !drained; {
				select {
				case _, ok := <-watcher.Events:
					if !ok {
						return nil
					}
				default:
					drained = true
				}
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				log.Errorn("read changed mapping document",
					logger.NewStringField("path", path),
					obskit.Error(err),
				)
				continue
			}
			catalog, err := Load(raw, log)
			if err != nil {
				log.Errorn("changed mapping document is invalid, keeping the current catalog",
					logger.NewStringField("path", path),
					obskit.Error(err),
				)
				continue
			}
			log.Infon("mapping document reloaded", logger.NewStringField("path", path))
			onReload(catalog)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorn("mapping watcher", obskit.Error(err))
		}
	}
}

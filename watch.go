package sitesage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/sitesage/core"
	"github.com/poiesic/sitesage/ingestion"
	"github.com/poiesic/sitesage/loader"
	"github.com/poiesic/sitesage/storage"
)

// DefaultWatchDebounce is how long Watch waits for changes to settle.
const DefaultWatchDebounce = 2 * time.Second

// RebuildFunc receives the outcome of each rebuild triggered by Watch.
type RebuildFunc func(stats *ingestion.Stats, err error)

// Watch re-ingests changed files under path and rebuilds the index until
// ctx is done. Bursts of events are coalesced for debounce before one
// rebuild runs. Removed files are dropped from the store. A file that fails
// to load is retried with the next batch of changes. Queries are served
// from the previous index while a rebuild runs.
func (e *Engine) Watch(ctx context.Context, path string, debounce time.Duration, onRebuild RebuildFunc) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatches(watcher, path); err != nil {
		return err
	}
	e.logger.Info("watching for changes", "path", path)

	changed := map[string]struct{}{}
	removed := map[string]struct{}{}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", "err", err)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addWatches(watcher, event.Name); err != nil {
						e.logger.Warn("could not watch new directory", "path", event.Name, "err", err)
					}
					continue
				}
			}
			if !loader.Supported(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(changed, event.Name)
				removed[event.Name] = struct{}{}
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				delete(removed, event.Name)
				changed[event.Name] = struct{}{}
			default:
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			stats, err := e.applyChanges(ctx, changed, removed)
			if onRebuild != nil {
				onRebuild(stats, err)
			}
		}
	}
}

// applyChanges drops removed files from the store, re-ingests changed ones
// and rebuilds. Applied paths are taken out of the sets; a path that failed
// stays queued for the next flush. The rebuild runs even when some paths
// failed, and every failure is reported in the returned error.
func (e *Engine) applyChanges(ctx context.Context, changed, removed map[string]struct{}) (*ingestion.Stats, error) {
	var errs []error
	for name := range removed {
		source := name
		if abs, err := filepath.Abs(name); err == nil {
			source = abs
		}
		doc := core.Document{Source: source}
		err := e.store.DeleteDocument(ctx, doc.ID())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("removing %s: %w", name, err))
			continue
		}
		delete(removed, name)
	}
	for name := range changed {
		if _, err := e.IngestPath(ctx, name); err != nil {
			e.logger.Warn("could not ingest changed file", "path", name, "err", err)
			errs = append(errs, fmt.Errorf("ingesting %s: %w", name, err))
			continue
		}
		delete(changed, name)
	}

	stats, err := e.Build(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

func addWatches(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(root)
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

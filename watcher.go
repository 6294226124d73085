package tuneup

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// assetWatcher invalidates asset entries when their source files change
// on disk.
type assetWatcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// WatchAssets invalidates the asset-kind entry for a file whenever it is
// written, created, removed, or renamed under one of the given paths, so
// a cached decode is never served for a modified source. Asset entries
// must be keyed by the path fsnotify reports: the watched path joined
// with the file name. Repeated calls add paths to the same watcher;
// Close tears it down.
func (e *Engine) WatchAssets(paths ...string) error {
	e.mu.Lock()
	w := e.watch
	if w == nil {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("creating watcher: %w", err)
		}
		w = &assetWatcher{fsw: fsw, done: make(chan struct{})}
		e.watch = w
		go e.watchLoop(w)
	}
	e.mu.Unlock()

	for _, p := range paths {
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		e.logger.Debug("watching asset path", "path", p)
	}
	return nil
}

func (e *Engine) watchLoop(w *assetWatcher) {
	defer close(w.done)

	assets := e.Kind(KindAsset)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if assets.Invalidate(event.Name) {
				e.logger.Debug("asset invalidated", "file", event.Name, "event", event.Op)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			e.logger.Warn("asset watcher error", "error", err)
		}
	}
}

// close shuts the fsnotify watcher down and waits for the event loop to
// drain.
func (w *assetWatcher) close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/imyousuf/CodeContext/internal/indexer"
	"github.com/imyousuf/CodeContext/internal/watcher"
)

// WatchResult reports one re-index triggered by a batch of changes.
type WatchResult struct {
	Changes []watcher.Event
	Nodes   int
	Stats   indexer.IndexStats
	Err     error
}

// Watch indexes root, then re-indexes it after every debounced batch of
// changes until ctx is cancelled. fn, which may be nil, receives the initial
// pass (with no Changes) and every later one. A cancelled ctx is not an
// error; a failed initial pass is.
func (e *Engine) Watch(ctx context.Context, root string, fn func(WatchResult)) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root %s: %w", root, err)
	}
	matcher, err := indexer.NewIgnoreMatcher(abs, e.cfg.Index.Ignore, e.cfg.Index.Gitignore)
	if err != nil {
		return err
	}

	nodes, stats, err := e.Index(ctx, abs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if fn != nil {
		fn(WatchResult{Nodes: nodes, Stats: stats})
	}

	w, err := watcher.New(watcher.Config{
		Root:     abs,
		Ignore:   matcher,
		Debounce: e.cfg.Watch.Debounce,
		Logger:   e.log,
	})
	if err != nil {
		return err
	}
	defer w.Close()
	batches, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	e.log.Info("watch.start", "root", abs, "debounce", e.cfg.Watch.Debounce)

	for batch := range batches {
		e.log.Info("watch.changes", "count", len(batch), "first", batch[0].Path)
		nodes, stats, err := e.Index(ctx, abs)
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			e.log.Warn("watch.reindex_failed", "err", err)
		}
		if fn != nil {
			fn(WatchResult{Changes: batch, Nodes: nodes, Stats: stats, Err: err})
		}
	}
	e.log.Info("watch.stop", "root", abs)
	return nil
}

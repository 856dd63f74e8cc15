// Package watcher reports debounced batches of file changes under a root.
package watcher

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	Create EventOp = iota
	Write
	Remove
	Rename
)

// String returns the string representation of EventOp.
func (op EventOp) String() string {
	switch op {
	case Create:
		return "Create"
	case Write:
		return "Write"
	case Remove:
		return "Remove"
	case Rename:
		return "Rename"
	default:
		return "Unknown"
	}
}

// Event is a change to one path, relative to the watched root and slash
// separated.
type Event struct {
	Path string
	Op   EventOp
	Time time.Time
}

// Matcher decides which root-relative paths are ignored.
type Matcher interface {
	Match(rel string, isDir bool) bool
}

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Config holds configuration for the file system watcher.
type Config struct {
	Root string
	// Ignore filters paths; nil watches everything.
	Ignore Matcher
	// Debounce is the quiet period that closes a batch.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher watches a directory tree and emits batches of changes once no
// further change has arrived for the debounce period.
type Watcher struct {
	cfg    Config
	root   string
	log    *slog.Logger
	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	closed bool
}

// New creates a Watcher for cfg.Root.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{cfg: cfg, root: root, log: log}, nil
}

// Start registers every non-ignored directory and returns the batch channel.
// The channel closes when ctx is cancelled or the watcher is closed. Each
// batch holds the latest event per path, sorted by path.
func (w *Watcher) Start(ctx context.Context) (<-chan []Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan []Event, 8)
	go w.eventLoop(ctx, fsw, out)
	return out, nil
}

// Close shuts down the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// rel maps an absolute path to the root-relative form; ok is false outside
// the root.
func (w *Watcher) rel(path string) (string, bool) {
	r, err := filepath.Rel(w.root, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	if w.cfg.Ignore == nil {
		return false
	}
	r, ok := w.rel(path)
	if !ok {
		return true
	}
	if r == "." {
		return false
	}
	return w.cfg.Ignore.Match(r, isDir)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- []Event) {
	defer close(out)

	pending := make(map[string]Event)
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()

	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		batch := make([]Event, 0, len(pending))
		for _, e := range pending {
			batch = append(batch, e)
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
		clear(pending)
		select {
		case out <- batch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case <-timer.C:
			if !flush() {
				return
			}

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return
			}
			op, valid := convertOp(fsEvent.Op)
			if !valid {
				continue
			}
			isDir := false
			if op == Create {
				if isDir = isDirectory(fsEvent.Name); isDir && !w.ignored(fsEvent.Name, true) {
					if err := w.addRecursive(fsEvent.Name); err != nil {
						w.log.Warn("watch.add_failed", "path", fsEvent.Name, "err", err)
					}
				}
			}
			if w.ignored(fsEvent.Name, isDir) {
				continue
			}
			r, ok := w.rel(fsEvent.Name)
			if !ok {
				continue
			}
			pending[r] = Event{Path: r, Op: op, Time: time.Now()}
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch.error", "err", err)
		}
	}
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func convertOp(op fsnotify.Op) (EventOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Create, true
	case op.Has(fsnotify.Write):
		return Write, true
	case op.Has(fsnotify.Remove):
		return Remove, true
	case op.Has(fsnotify.Rename):
		return Rename, true
	default:
		return 0, false
	}
}

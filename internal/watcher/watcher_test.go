package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// segmentMatcher ignores any path with a listed segment.
type segmentMatcher []string

func (m segmentMatcher) Match(rel string, _ bool) bool {
	for _, seg := range strings.Split(rel, "/") {
		for _, s := range m {
			if seg == s {
				return true
			}
		}
	}
	return false
}

func startWatcher(t *testing.T, root string, ignore Matcher) <-chan []Event {
	t.Helper()
	w, err := New(Config{Root: root, Ignore: ignore, Debounce: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	batches, err := w.Start(ctx)
	require.NoError(t, err)
	return batches
}

// collect gathers events until no batch arrives for quiet.
func collect(batches <-chan []Event, quiet time.Duration) []Event {
	var all []Event
	for {
		select {
		case b, ok := <-batches:
			if !ok {
				return all
			}
			all = append(all, b...)
		case <-time.After(quiet):
			return all
		}
	}
}

func paths(events []Event) []string {
	var out []string
	for _, e := range events {
		out = append(out, e.Path)
	}
	return out
}

func TestBatchDebouncing(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a.py")
	require.NoError(t, os.WriteFile(target, []byte("x = 0\n"), 0o644))
	batches := startWatcher(t, root, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("x = 1\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case b := <-batches:
		require.Len(t, b, 1)
		assert.Equal(t, "a.py", b[0].Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestBatchHoldsSortedDistinctPaths(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root, nil)

	for _, name := range []string{"c.py", "a.py", "b.py", "a.py"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("pass\n"), 0o644))
	}

	got := paths(collect(batches, time.Second))
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, got)
}

func TestIgnoredPathsAreFiltered(t *testing.T) {
	root := t.TempDir()
	nm := filepath.Join(root, "node_modules")
	require.NoError(t, os.MkdirAll(nm, 0o755))
	batches := startWatcher(t, root, segmentMatcher{"node_modules"})

	require.NoError(t, os.WriteFile(filepath.Join(nm, "pkg.js"), []byte("updated"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))

	got := paths(collect(batches, time.Second))
	assert.Contains(t, got, "main.go")
	for _, p := range got {
		assert.NotContains(t, p, "node_modules")
	}
}

func TestNewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root, nil)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	first := collect(batches, 500*time.Millisecond)
	assert.Contains(t, paths(first), "pkg")

	require.NoError(t, os.WriteFile(filepath.Join(sub, "mod.py"), []byte("pass\n"), 0o644))
	assert.Contains(t, paths(collect(batches, time.Second)), "pkg/mod.py")
}

func TestStopsOnCancel(t *testing.T) {
	w, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	batches, err := w.Start(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-batches:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestConvertOp(t *testing.T) {
	tests := []struct {
		in   fsnotify.Op
		want EventOp
		ok   bool
	}{
		{fsnotify.Create, Create, true},
		{fsnotify.Write, Write, true},
		{fsnotify.Remove, Remove, true},
		{fsnotify.Rename, Rename, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		got, ok := convertOp(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in.String())
		if ok {
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestEventOpString(t *testing.T) {
	assert.Equal(t, "Create", Create.String())
	assert.Equal(t, "Write", Write.String())
	assert.Equal(t, "Remove", Remove.String())
	assert.Equal(t, "Rename", Rename.String())
	assert.Equal(t, "Unknown", EventOp(42).String())
}

func TestDefaultDebounce(t *testing.T) {
	w, err := New(Config{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.cfg.Debounce)
	assert.True(t, filepath.IsAbs(w.root))
}

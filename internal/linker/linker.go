// Package linker resolves call sites to definitions after extraction.
// It runs as the second phase of an index pass, once every file's import and
// export records exist, and emits calls edges between graph nodes.
package linker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser"
)

// Config holds configuration for the Linker.
type Config struct {
	Graph    *graph.Graph
	Registry *parser.Registry
	Provider *parser.Provider
	// Root is the directory pending body paths are relative to.
	Root string
	// Workers bounds how many files are linked at once; zero means runtime.NumCPU().
	Workers int
	Logger  *slog.Logger
}

// Stats counts call sites by outcome.
type Stats struct {
	Linked     int
	Unresolved int
}

// Linker resolves call expressions in pending bodies to callable nodes.
type Linker struct {
	cfg Config
	log *slog.Logger
}

// New creates a Linker.
func New(cfg Config) *Linker {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Linker{cfg: cfg, log: log}
}

// Run links every call site found in pending. Bodies are grouped by file and
// each file is re-read and re-parsed once, so calls beyond the stored content
// ceiling are still seen. Files that cannot be read or parsed are skipped.
func (l *Linker) Run(ctx context.Context, pending []parser.PendingBody) (Stats, error) {
	byFile := make(map[string][]parser.PendingBody)
	var files []string
	for _, b := range pending {
		if _, ok := byFile[b.File]; !ok {
			files = append(files, b.File)
		}
		byFile[b.File] = append(byFile[b.File], b)
	}
	sort.Strings(files)

	var linked, unresolved atomic.Int64
	exports := &exportCache{g: l.cfg.Graph, byFile: make(map[string]map[string]string)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	for _, file := range files {
		bodies := byFile[file]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, missed, err := l.linkFile(gctx, file, bodies, exports)
			if err != nil {
				l.log.Warn("link.file_failed", "file", file, "err", err)
				return nil
			}
			linked.Add(int64(ok))
			unresolved.Add(int64(missed))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	st := Stats{Linked: int(linked.Load()), Unresolved: int(unresolved.Load())}
	l.log.Info("link.done", "files", len(files), "linked", st.Linked, "unresolved", st.Unresolved)
	return st, nil
}

func (l *Linker) linkFile(ctx context.Context, file string, bodies []parser.PendingBody, exports *exportCache) (linked, unresolved int, err error) {
	lang := bodies[0].Language
	ext, ok := l.cfg.Registry.Get(lang)
	if !ok {
		return 0, 0, fmt.Errorf("no extractor for %q", lang)
	}
	src, err := os.ReadFile(filepath.Join(l.cfg.Root, filepath.FromSlash(file)))
	if err != nil {
		return 0, 0, err
	}
	tree, err := l.cfg.Provider.Parse(ctx, lang, src)
	if err != nil {
		return 0, 0, err
	}
	defer tree.Close()
	matches, err := l.cfg.Provider.Query(tree, nil, ext.CallQuery())
	if err != nil {
		return 0, 0, err
	}

	scope, err := l.newFileScope(ctx, file, exports)
	if err != nil {
		return 0, 0, err
	}
	for _, m := range matches {
		call, ok := m.Get("call")
		if !ok {
			continue
		}
		name := ext.Callee(m, src)
		if name == "" {
			continue
		}
		body, ok := innermost(bodies, call.StartByte, call.EndByte)
		if !ok {
			continue
		}
		target, targetFile := scope.resolve(name)
		if target == "" {
			unresolved++
			continue
		}
		l.cfg.Graph.UpsertEdge(ctx, body.NodeID, target, graph.RelCalls, map[string]string{
			"line":       strconv.Itoa(call.StartLine),
			"callee":     name,
			"cross_file": strconv.FormatBool(targetFile != file),
		})
		linked++
	}
	return linked, unresolved, nil
}

// innermost returns the smallest body containing [start, end).
func innermost(bodies []parser.PendingBody, start, end uint32) (parser.PendingBody, bool) {
	var best parser.PendingBody
	found := false
	for _, b := range bodies {
		if !b.Contains(start, end) {
			continue
		}
		if !found || b.EndByte-b.StartByte < best.EndByte-best.StartByte {
			best = b
			found = true
		}
	}
	return best, found
}

// exportCache memoizes export symbol maps across files of one run.
type exportCache struct {
	g      *graph.Graph
	mu     sync.Mutex
	byFile map[string]map[string]string
}

func (c *exportCache) symbols(ctx context.Context, file string) map[string]string {
	c.mu.Lock()
	syms, ok := c.byFile[file]
	c.mu.Unlock()
	if ok {
		return syms
	}
	rec, err := c.g.Exports(ctx, file)
	if err == nil {
		syms = rec.Symbols
	}
	c.mu.Lock()
	c.byFile[file] = syms
	c.mu.Unlock()
	return syms
}

// Package indexer walks a source tree and extracts every file into the graph.
// It is phase one of an index pass; call linking runs after it completes.
package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser"
)

// IndexStats reports what an index pass did. Per-file failures are counted
// here rather than returned as errors.
type IndexStats struct {
	FilesSeen       int           `json:"files_seen" yaml:"files_seen"`
	FilesIndexed    int           `json:"files_indexed" yaml:"files_indexed"`
	FilesFailed     int           `json:"files_failed" yaml:"files_failed"`
	EmptyFiles      int           `json:"empty_files" yaml:"empty_files"`
	ParseFailures   int           `json:"parse_failures" yaml:"parse_failures"`
	FallbackFiles   int           `json:"fallback_files" yaml:"fallback_files"`
	Unsupported     int           `json:"unsupported" yaml:"unsupported"`
	WriteFailures   int           `json:"write_failures" yaml:"write_failures"`
	CallsLinked     int           `json:"calls_linked" yaml:"calls_linked"`
	CallsUnresolved int           `json:"calls_unresolved" yaml:"calls_unresolved"`
	Errors          []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// Config holds configuration for the Indexer.
type Config struct {
	Graph    *graph.Graph
	Registry *parser.Registry
	Provider *parser.Provider

	// Ignore patterns; see IgnoreMatcher. Nil means DefaultIgnorePatterns.
	Ignore []string
	// Extensions limits the walk to these extensions. Empty means every
	// extension a language is detected for.
	Extensions []string
	// Extensionless includes files without an extension, detected by content.
	Extensionless bool
	// Gitignore applies the root .gitignore.
	Gitignore bool
	// Workers is the pool size; zero means runtime.NumCPU().
	Workers int
	Logger  *slog.Logger
}

// Result is the outcome of phase one.
type Result struct {
	Stats IndexStats
	// Pending lists the definition bodies queued for call linking, ordered
	// by file then position.
	Pending []parser.PendingBody
}

// Indexer orchestrates file extraction into the knowledge graph.
type Indexer struct {
	cfg     Config
	log     *slog.Logger
	allowed map[string]bool
}

// New creates an Indexer.
func New(cfg Config) *Indexer {
	if cfg.Ignore == nil {
		cfg.Ignore = DefaultIgnorePatterns
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	allowed := make(map[string]bool)
	if len(cfg.Extensions) > 0 {
		for _, ext := range cfg.Extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			allowed[ext] = true
		}
	} else {
		for _, exts := range parser.FileExtensions {
			for _, ext := range exts {
				allowed[ext] = true
			}
		}
	}
	return &Indexer{cfg: cfg, log: log, allowed: allowed}
}

// run accumulates per-pass state shared by the workers.
type run struct {
	root     string
	resolver parser.ModuleResolver

	mu      sync.Mutex
	stats   IndexStats
	pending []parser.PendingBody
}

func (r *run) update(fn func(s *IndexStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

func (r *run) fail(rel string, err error) {
	r.mu.Lock()
	r.stats.Errors = append(r.stats.Errors, fmt.Sprintf("%s: %v", rel, err))
	r.mu.Unlock()
}

// Index walks root and extracts every accepted file. res resolves import
// strings to root-relative files and may be nil. Cancelling ctx stops the
// pass between files and returns the context error.
func (idx *Indexer) Index(ctx context.Context, root string, res parser.ModuleResolver) (*Result, error) {
	start := time.Now()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	matcher, err := NewIgnoreMatcher(abs, idx.cfg.Ignore, idx.cfg.Gitignore)
	if err != nil {
		return nil, err
	}

	_, _, failedBefore := idx.cfg.Graph.WriteCounts()
	r := &run{root: abs, resolver: res}
	idx.log.Info("index.start", "root", abs, "workers", idx.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	paths := make(chan string, idx.cfg.Workers*4)

	g.Go(func() error {
		defer close(paths)
		return idx.walk(gctx, abs, matcher, paths)
	})
	for i := 0; i < idx.cfg.Workers; i++ {
		g.Go(func() error {
			for rel := range paths {
				if err := gctx.Err(); err != nil {
					return err
				}
				idx.indexFile(gctx, r, rel)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, _, failedAfter := idx.cfg.Graph.WriteCounts()
	r.stats.WriteFailures = int(failedAfter - failedBefore)
	r.stats.Duration = time.Since(start)
	sort.Strings(r.stats.Errors)
	sort.Slice(r.pending, func(i, j int) bool {
		a, b := r.pending[i], r.pending[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartByte != b.StartByte {
			return a.StartByte < b.StartByte
		}
		return a.NodeID < b.NodeID
	})

	idx.log.Info("index.phase1_done",
		"files", r.stats.FilesSeen,
		"indexed", r.stats.FilesIndexed,
		"fallback", r.stats.FallbackFiles,
		"parse_failures", r.stats.ParseFailures,
		"pending", len(r.pending),
		"elapsed", r.stats.Duration)
	return &Result{Stats: r.stats, Pending: r.pending}, nil
}

// walk sends the root-relative, slash-separated path of every accepted file.
func (idx *Indexer) walk(ctx context.Context, root string, matcher *IgnoreMatcher, out chan<- string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			idx.log.Debug("index.walk.skipped", "path", p, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel, false) || !idx.accept(rel) {
			return nil
		}
		select {
		case out <- rel:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (idx *Indexer) accept(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	if ext == "" || strings.HasPrefix(filepath.Base(rel), ".") && ext == filepath.Base(rel) {
		return idx.cfg.Extensionless
	}
	return idx.allowed[ext]
}

// indexFile extracts one file. Every failure is recovered here: the file
// node is kept and the failure is counted.
func (idx *Indexer) indexFile(ctx context.Context, r *run, rel string) {
	r.update(func(s *IndexStats) { s.FilesSeen++ })
	g := idx.cfg.Graph

	content, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		idx.log.Warn("index.file.read_failed", "file", rel, "err", err)
		g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFile, Name: rel, File: rel})
		r.update(func(s *IndexStats) { s.FilesFailed++ })
		r.fail(rel, err)
		return
	}

	fileID := g.UpsertNode(ctx, graph.NodeSpec{
		Type:    graph.NodeFile,
		Name:    rel,
		File:    rel,
		EndLine: lineCount(content),
		Content: string(content),
	})
	if len(bytes.TrimSpace(content)) == 0 {
		idx.log.Debug("index.file.empty", "file", rel)
		r.update(func(s *IndexStats) { s.EmptyFiles++ })
		return
	}
	if fileID == "" {
		r.update(func(s *IndexStats) { s.FilesFailed++ })
		return
	}

	lang := parser.Detect(rel, content)
	ext, ok := idx.cfg.Registry.Get(lang)
	switch {
	case ok && idx.cfg.Provider.Supports(lang):
		pending, err := idx.extract(ctx, r, ext, rel, content, fileID)
		if err != nil {
			idx.log.Warn("index.file.parse_failed", "file", rel, "language", lang, "err", err)
			r.update(func(s *IndexStats) { s.ParseFailures++ })
			r.fail(rel, err)
			return
		}
		r.mu.Lock()
		r.stats.FilesIndexed++
		r.pending = append(r.pending, pending...)
		r.mu.Unlock()
	case lang != parser.LangUnknown:
		fc := parser.NewFileContext(ctx, g, r.resolver, idx.log, rel, content, nil, fileID)
		parser.Fallback(fc, lang)
		r.update(func(s *IndexStats) {
			s.FilesIndexed++
			s.FallbackFiles++
		})
	default:
		idx.log.Debug("index.file.unsupported", "file", rel)
		r.update(func(s *IndexStats) { s.Unsupported++ })
	}
}

// extract parses content and runs ext over it. A panic inside a grammar
// walk is reported as a parse failure for this file only.
func (idx *Indexer) extract(ctx context.Context, r *run, ext parser.Extractor, rel string, content []byte, fileID string) (pending []parser.PendingBody, err error) {
	defer func() {
		if p := recover(); p != nil {
			pending, err = nil, fmt.Errorf("extractor panic: %v", p)
		}
	}()

	tree, err := idx.cfg.Provider.Parse(ctx, ext.Language(), content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	if tree.HasErrors() {
		idx.log.Debug("index.file.syntax_errors", "file", rel, "language", ext.Language())
	}

	fc := parser.NewFileContext(ctx, idx.cfg.Graph, r.resolver, idx.log, rel, content, tree, fileID)
	if err := ext.Extract(fc); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("extract %s: %w", rel, err)
	}
	return fc.Pending(), nil
}

func lineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

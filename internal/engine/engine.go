// Package engine is the caller-owned handle over a knowledge graph: it opens
// the configured backend, runs index passes and answers queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imyousuf/CodeContext/internal/config"
	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/graph/embedded"
	"github.com/imyousuf/CodeContext/internal/graph/memory"
	"github.com/imyousuf/CodeContext/internal/graph/sqlite"
	"github.com/imyousuf/CodeContext/internal/indexer"
	"github.com/imyousuf/CodeContext/internal/linker"
	"github.com/imyousuf/CodeContext/internal/parser"
	"github.com/imyousuf/CodeContext/internal/parser/golang"
	"github.com/imyousuf/CodeContext/internal/parser/java"
	"github.com/imyousuf/CodeContext/internal/parser/javascript"
	"github.com/imyousuf/CodeContext/internal/parser/python"
	"github.com/imyousuf/CodeContext/internal/relevance"
	"github.com/imyousuf/CodeContext/internal/resolver"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("engine closed")

// Option configures Open.
type Option func(*options)

type options struct {
	log   *slog.Logger
	store graph.Store
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStore uses s instead of opening the configured backend.
func WithStore(s graph.Store) Option {
	return func(o *options) { o.store = s }
}

// Engine owns a graph backend, the extractor registry and the parser. Index
// passes and Clear take the write lock; queries share the read lock.
type Engine struct {
	mu sync.RWMutex

	cfg      config.Config
	log      *slog.Logger
	backend  string
	graph    *graph.Graph
	registry *parser.Registry
	provider *parser.Provider
	query    *relevance.Engine

	root    string
	indexed bool
	closed  bool
}

// Open validates cfg and opens its backend. A nil cfg means config.Default().
// When a persistent backend cannot be opened and graph.fallback_to_memory is
// set, an in-memory store is used instead.
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, backend := o.store, "custom"
	if store == nil {
		var err error
		store, backend, err = openStore(cfg.Graph, log)
		if err != nil {
			return nil, err
		}
	}

	g := graph.New(store, graph.WithLogger(log), graph.WithMaxContent(cfg.Graph.MaxContent))
	e := &Engine{
		cfg:      *cfg,
		log:      log,
		backend:  backend,
		graph:    g,
		registry: NewRegistry(),
		provider: parser.NewProvider(),
		query: relevance.New(g, relevance.Options{
			MaxBytes:     cfg.Context.MaxBytes,
			NodeBytes:    cfg.Context.NodeBytes,
			RelatedBytes: cfg.Context.RelatedBytes,
			RelatedLimit: cfg.Context.RelatedLimit,
			TopK:         cfg.Context.TopK,
		}, log),
	}

	// A persistent graph left by an earlier run is queryable straight away.
	ctx := context.Background()
	if st, err := g.Stats(ctx); err == nil && st.Nodes > 0 {
		e.indexed = true
		root, err := g.Meta(ctx, graph.MetaRoot)
		if err != nil {
			log.Warn("engine.root_unknown", "err", err)
		}
		e.root = root
	}
	log.Info("engine.open", "backend", backend, "indexed", e.indexed, "root", e.root)
	return e, nil
}

func openStore(cfg config.GraphConfig, log *slog.Logger) (graph.Store, string, error) {
	var (
		store graph.Store
		err   error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewStore(), config.BackendMemory, nil
	case config.BackendBadger:
		if err = os.MkdirAll(cfg.Path, 0o755); err == nil {
			store, err = embedded.NewStore(cfg.Path)
		}
	case config.BackendSQLite:
		if err = os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err == nil {
			store, err = sqlite.NewStore(cfg.Path)
		}
	default:
		return nil, "", fmt.Errorf("%w: unknown graph backend %q", config.ErrInvalid, cfg.Backend)
	}
	if err == nil {
		return store, cfg.Backend, nil
	}
	if !cfg.FallbackToMemory {
		return nil, "", fmt.Errorf("open %s backend at %s: %w", cfg.Backend, cfg.Path, err)
	}
	log.Warn("engine.backend_fallback", "backend", cfg.Backend, "path", cfg.Path, "err", err)
	return memory.NewStore(), config.BackendMemory, nil
}

// NewRegistry returns a registry holding every structural extractor.
func NewRegistry() *parser.Registry {
	r := parser.NewRegistry()
	r.Register(python.NewExtractor())
	r.Register(javascript.NewExtractor(parser.LangJavaScript))
	r.Register(javascript.NewExtractor(parser.LangTypeScript))
	r.Register(javascript.NewExtractor(parser.LangTSX))
	r.Register(golang.NewExtractor())
	r.Register(java.NewExtractor())
	return r
}

// LanguageSupport describes how files of one language are indexed.
type LanguageSupport struct {
	Language   string   `json:"language" yaml:"language"`
	Extensions []string `json:"extensions" yaml:"extensions"`
	// Extractor is false for languages indexed by the fallback extractor.
	Extractor bool `json:"extractor" yaml:"extractor"`
}

// Languages lists the languages with a structural extractor in registration
// order, followed by the fallback-only languages sorted by name.
func Languages() []LanguageSupport {
	reg := NewRegistry()
	out := make([]LanguageSupport, 0, len(parser.FileExtensions))
	for _, ex := range reg.All() {
		out = append(out, LanguageSupport{Language: string(ex.Language()), Extensions: ex.Extensions(), Extractor: true})
	}

	covered := make(map[string]bool)
	for _, ext := range reg.SupportedExtensions() {
		covered[ext] = true
	}
	var fallback []LanguageSupport
	for lang, exts := range parser.FileExtensions {
		var own []string
		for _, ext := range exts {
			if !covered[strings.ToLower(ext)] {
				own = append(own, ext)
			}
		}
		if len(own) > 0 {
			fallback = append(fallback, LanguageSupport{Language: string(lang), Extensions: own})
		}
	}
	sort.Slice(fallback, func(i, j int) bool { return fallback[i].Language < fallback[j].Language })
	return append(out, fallback...)
}

// Backend names the store in use, which differs from the configured one after
// a fallback.
func (e *Engine) Backend() string { return e.backend }

// Graph exposes the underlying graph for read-only inspection.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Root returns the absolute directory of the last completed index pass,
// restored from the store when a persistent graph is reopened. It is empty
// when the graph holds no completed pass.
func (e *Engine) Root() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.root
}

// Index replaces the graph with a fresh index of root: the graph is cleared,
// every file is extracted and then call sites are linked, all inside one bulk
// write scope. It returns the resulting node count.
func (e *Engine) Index(ctx context.Context, root string) (int, indexer.IndexStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, indexer.IndexStats{}, ErrClosed
	}

	start := time.Now()
	abs, err := filepath.Abs(root)
	if err != nil {
		return 0, indexer.IndexStats{}, fmt.Errorf("resolve root %s: %w", root, err)
	}
	res, err := resolver.New(abs, resolver.Options{
		Extensions:     e.cfg.Resolver.Extensions,
		Aliases:        e.cfg.Resolver.Aliases,
		SourceRoots:    e.cfg.Resolver.SourceRoots,
		DependencyDirs: e.cfg.Resolver.DependencyDirs,
		CacheSize:      e.cfg.Resolver.CacheSize,
	})
	if err != nil {
		return 0, indexer.IndexStats{}, fmt.Errorf("resolver: %w", err)
	}
	e.log.Debug("index.start", "root", abs, "go_module", res.GoModule(), "source_roots", res.SourceRoots())

	if err := e.graph.Clear(ctx); err != nil {
		return 0, indexer.IndexStats{}, fmt.Errorf("clear graph: %w", err)
	}
	e.indexed = false
	e.root = ""
	_, _, failedBefore := e.graph.WriteCounts()

	var stats indexer.IndexStats
	err = e.graph.Bulk(ctx, func(ctx context.Context) error {
		result, err := indexer.New(indexer.Config{
			Graph:         e.graph,
			Registry:      e.registry,
			Provider:      e.provider,
			Ignore:        e.cfg.Index.Ignore,
			Extensions:    e.cfg.Index.Extensions,
			Extensionless: e.cfg.Index.Extensionless,
			Gitignore:     e.cfg.Index.Gitignore,
			Workers:       e.cfg.Index.Workers,
			Logger:        e.log,
		}).Index(ctx, abs, res)
		if err != nil {
			return err
		}
		linked, err := linker.New(linker.Config{
			Graph:    e.graph,
			Registry: e.registry,
			Provider: e.provider,
			Root:     abs,
			Workers:  e.cfg.Index.Workers,
			Logger:   e.log,
		}).Run(ctx, result.Pending)
		if err != nil {
			return err
		}
		stats = result.Stats
		stats.CallsLinked = linked.Linked
		stats.CallsUnresolved = linked.Unresolved
		return e.graph.SetMeta(ctx, graph.MetaRoot, abs)
	})
	if err != nil {
		return 0, indexer.IndexStats{}, err
	}

	_, _, failedAfter := e.graph.WriteCounts()
	stats.WriteFailures = int(failedAfter - failedBefore)
	stats.Duration = time.Since(start)

	st, err := e.graph.Stats(ctx)
	if err != nil {
		return 0, stats, fmt.Errorf("graph stats: %w", err)
	}
	e.root = abs
	e.indexed = true
	e.log.Info("index.done",
		"root", abs,
		"nodes", st.Nodes,
		"edges", st.Edges,
		"files", stats.FilesIndexed,
		"calls_linked", stats.CallsLinked,
		"write_failures", stats.WriteFailures,
		"elapsed", stats.Duration)
	return int(st.Nodes), stats, nil
}

// IsIndexed reports whether the graph holds a completed index pass.
func (e *Engine) IsIndexed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.indexed && !e.closed
}

// Stats returns node and edge counts.
func (e *Engine) Stats(ctx context.Context) (*graph.Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.graph.Stats(ctx)
}

// FindImportersOf lists the files importing file, sorted. file may be
// root-relative or an absolute path under the indexed root.
func (e *Engine) FindImportersOf(ctx context.Context, file string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.query.FindImportersOf(ctx, e.relative(file))
}

// FindUsages lists the files importing symbol or file, with the name each
// binds it to.
func (e *Engine) FindUsages(ctx context.Context, symbol string) ([]relevance.Usage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.query.FindUsages(ctx, e.relative(symbol))
}

// GetContext assembles prompt context for query within the configured byte
// budget.
func (e *Engine) GetContext(ctx context.Context, query string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return "", ErrClosed
	}
	return e.query.GenerateContext(ctx, query)
}

// Relevant returns the ranked nodes behind GetContext.
func (e *Engine) Relevant(ctx context.Context, query string) ([]relevance.Scored, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.query.FindRelevant(ctx, query)
}

// Export writes a JSON-lines snapshot of every node and edge to w.
func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return graph.Export(ctx, e.graph, w)
}

// Clear empties the graph.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.graph.Clear(ctx); err != nil {
		return err
	}
	e.indexed = false
	e.root = ""
	return nil
}

// Close releases the parser and the backend. Further calls return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.provider.Close()
	return e.graph.Close()
}

// relative maps an absolute path under the indexed root to the root-relative
// form; anything else is returned unchanged.
func (e *Engine) relative(p string) string {
	if e.root == "" || !filepath.IsAbs(p) {
		return p
	}
	rel, err := filepath.Rel(e.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(rel)
}

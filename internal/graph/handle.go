package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"
	"unicode/utf8"
)

// DefaultMaxContent is the storage ceiling for node content when none is configured.
const DefaultMaxContent = 8000

// NodeSpec is the input to UpsertNode. Name and File may be empty.
type NodeSpec struct {
	Type      NodeType
	Name      string
	File      string
	StartLine int
	EndLine   int
	Content   string
}

// Graph is the caller-facing handle over a Store backend. It owns id
// generation, sentinel substitution, content capping and the
// log-and-continue policy for failed writes.
type Graph struct {
	store      Store
	log        *slog.Logger
	maxContent int

	inserted      atomic.Int64
	updated       atomic.Int64
	writeFailures atomic.Int64
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.log = l
		}
	}
}

// WithMaxContent sets the node content storage ceiling in bytes.
func WithMaxContent(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxContent = n
		}
	}
}

// New wraps store in a Graph.
func New(store Store, opts ...Option) *Graph {
	g := &Graph{
		store:      store,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxContent: DefaultMaxContent,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the backend.
func (g *Graph) Store() Store { return g.store }

// MaxContent returns the content storage ceiling.
func (g *Graph) MaxContent() int { return g.maxContent }

// UpsertNode inserts or updates the node identified by (type, file, name,
// start line) and returns its id. A failed backend write is logged and
// reported as an empty id.
func (g *Graph) UpsertNode(ctx context.Context, spec NodeSpec) string {
	name := spec.Name
	if name == "" {
		name = AnonymousName
	}
	file := spec.File
	if file == "" {
		file = VirtualFile
	}
	if spec.Type == "" {
		spec.Type = NodeModule
	}
	start, end := spec.StartLine, spec.EndLine
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}

	n := &Node{
		ID:        NewNodeID(spec.Type, file, name, start),
		Type:      spec.Type,
		Name:      name,
		File:      file,
		StartLine: start,
		EndLine:   end,
		Content:   CapContent(spec.Content, g.maxContent),
	}
	created, err := g.store.PutNode(ctx, n)
	if err != nil {
		g.writeFailures.Add(1)
		g.log.Warn("graph.write_failed", "kind", "node", "type", n.Type, "name", n.Name, "file", n.File, "err", err)
		return ""
	}
	if created {
		g.inserted.Add(1)
	} else {
		g.updated.Add(1)
	}
	return n.ID
}

// UpsertEdge records a relationship. Empty ids and backend failures are
// logged and otherwise ignored; duplicate edges are coalesced by the backend.
func (g *Graph) UpsertEdge(ctx context.Context, sourceID, targetID string, rel Relationship, metadata map[string]string) {
	if sourceID == "" || targetID == "" {
		g.log.Debug("graph.edge_skipped", "relationship", rel, "source", sourceID, "target", targetID)
		return
	}
	e := &Edge{SourceID: sourceID, TargetID: targetID, Relationship: rel, Metadata: metadata}
	created, err := g.store.PutEdge(ctx, e)
	if err != nil {
		g.writeFailures.Add(1)
		g.log.Warn("graph.write_failed", "kind", "edge", "relationship", rel, "err", err)
		return
	}
	if created {
		g.inserted.Add(1)
	}
}

// RecordImport stores an import record and its reverse-index entry together.
func (g *Graph) RecordImport(ctx context.Context, importer, alias string, rec ImportRecord) {
	if importer == "" || alias == "" {
		return
	}
	if err := g.store.PutImport(ctx, importer, alias, rec); err != nil {
		g.writeFailures.Add(1)
		g.log.Warn("graph.write_failed", "kind", "import", "file", importer, "alias", alias, "err", err)
	}
}

// RecordExport maps an exported name of file to the defining node.
func (g *Graph) RecordExport(ctx context.Context, file, name, nodeID string) {
	if file == "" || name == "" || nodeID == "" {
		return
	}
	if err := g.store.PutExport(ctx, file, name, nodeID); err != nil {
		g.writeFailures.Add(1)
		g.log.Warn("graph.write_failed", "kind", "export", "file", file, "name", name, "err", err)
	}
}

// GetNode returns the node with id.
func (g *Graph) GetNode(ctx context.Context, id string) (*Node, error) {
	return g.store.GetNode(ctx, id)
}

// GetRelated returns the neighbors of id over both outgoing and incoming
// edges. Outgoing entries carry the relationship as label, incoming entries
// the inverse phrase. Edges whose far end no longer resolves are skipped.
func (g *Graph) GetRelated(ctx context.Context, id string) ([]RelatedNode, error) {
	out, err := g.store.EdgesFrom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("outgoing edges of %s: %w", id, err)
	}
	in, err := g.store.EdgesTo(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("incoming edges of %s: %w", id, err)
	}
	sortEdges(out)
	sortEdges(in)

	related := make([]RelatedNode, 0, len(out)+len(in))
	for _, e := range out {
		n, err := g.store.GetNode(ctx, e.TargetID)
		if err != nil {
			continue
		}
		related = append(related, RelatedNode{
			Node:         n,
			Relationship: e.Relationship,
			Label:        string(e.Relationship),
			Outgoing:     true,
			Metadata:     e.Metadata,
		})
	}
	for _, e := range in {
		n, err := g.store.GetNode(ctx, e.SourceID)
		if err != nil {
			continue
		}
		related = append(related, RelatedNode{
			Node:         n,
			Relationship: e.Relationship,
			Label:        e.Relationship.Inverse(),
			Metadata:     e.Metadata,
		})
	}
	return related, nil
}

// FindNodes returns nodes matching filter sorted by (file, start line, id).
func (g *Graph) FindNodes(ctx context.Context, filter NodeFilter) ([]*Node, error) {
	nodes, err := g.store.QueryNodes(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortNodes(nodes)
	return nodes, nil
}

// ScanNodes calls fn for every node until fn returns false.
func (g *Graph) ScanNodes(ctx context.Context, fn func(*Node) bool) error {
	return g.store.ScanNodes(ctx, fn)
}

// ScanEdges calls fn for every edge until fn returns false.
func (g *Graph) ScanEdges(ctx context.Context, fn func(*Edge) bool) error {
	return g.store.ScanEdges(ctx, fn)
}

// Imports returns the import records of file keyed by alias.
func (g *Graph) Imports(ctx context.Context, file string) (map[string]ImportRecord, error) {
	return g.store.Imports(ctx, file)
}

// AllImports returns every import record keyed by importer then alias.
func (g *Graph) AllImports(ctx context.Context) (map[string]map[string]ImportRecord, error) {
	return g.store.AllImports(ctx)
}

// Exports returns the export record of file.
func (g *Graph) Exports(ctx context.Context, file string) (*ExportRecord, error) {
	return g.store.Exports(ctx, file)
}

// ExportingFiles returns the files exporting name, sorted.
func (g *Graph) ExportingFiles(ctx context.Context, name string) ([]string, error) {
	files, err := g.store.ExportingFiles(ctx, name)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Stats returns aggregate counters.
func (g *Graph) Stats(ctx context.Context) (*Stats, error) {
	return g.store.Stats(ctx)
}

// MetaRoot is the metadata key holding the absolute root of the last
// completed index pass.
const MetaRoot = "root"

// SetMeta stores a metadata value.
func (g *Graph) SetMeta(ctx context.Context, key, value string) error {
	return g.store.PutMeta(ctx, key, value)
}

// Meta returns a metadata value, or "" when unset.
func (g *Graph) Meta(ctx context.Context, key string) (string, error) {
	return g.store.Meta(ctx, key)
}

// Clear atomically empties the graph and resets write bookkeeping.
func (g *Graph) Clear(ctx context.Context) error {
	if err := g.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	g.inserted.Store(0)
	g.updated.Store(0)
	g.writeFailures.Store(0)
	return nil
}

// Bulk runs fn inside the backend's bulk-write scope.
func (g *Graph) Bulk(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.store.Bulk(ctx, fn)
}

// WriteCounts reports records inserted, nodes updated in place, and failed writes.
func (g *Graph) WriteCounts() (inserted, updated, failed int64) {
	return g.inserted.Load(), g.updated.Load(), g.writeFailures.Load()
}

// Close releases the backend.
func (g *Graph) Close() error {
	return g.store.Close()
}

// CapContent truncates s to at most max bytes (backed off to a rune
// boundary) and appends TruncationMarker when anything was cut.
func CapContent(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:RuneBoundary(s, max)] + TruncationMarker
}

// RuneBoundary returns the largest index <= n that does not split a UTF-8
// sequence in s.
func RuneBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// SortNodes orders nodes by (file, start line, id).
func SortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.ID < b.ID
	})
}

func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key() < edges[j].Key() })
}

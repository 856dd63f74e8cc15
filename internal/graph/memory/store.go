// Package memory implements graph.Store with plain maps guarded by a mutex.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// Store is an in-memory graph.Store. Every write is applied atomically under
// the store lock, so concurrent writers never observe a partial record.
type Store struct {
	mu sync.RWMutex

	nodes  map[string]*graph.Node
	edges  map[string]*graph.Edge
	out    map[string]map[string]struct{} // source id -> edge keys
	in     map[string]map[string]struct{} // target id -> edge keys
	byFile map[string]map[string]struct{} // file -> node ids

	imports    map[string]map[string]graph.ImportRecord // importer -> alias -> record
	exports    map[string]map[string]string             // file -> name -> node id
	importedBy map[string]map[string]struct{}           // file -> importer files
	meta       map[string]string
}

// Compile-time check: *Store satisfies graph.Store.
var _ graph.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.nodes = make(map[string]*graph.Node)
	s.edges = make(map[string]*graph.Edge)
	s.out = make(map[string]map[string]struct{})
	s.in = make(map[string]map[string]struct{})
	s.byFile = make(map[string]map[string]struct{})
	s.imports = make(map[string]map[string]graph.ImportRecord)
	s.exports = make(map[string]map[string]string)
	s.importedBy = make(map[string]map[string]struct{})
	s.meta = make(map[string]string)
}

func (s *Store) PutNode(_ context.Context, n *graph.Node) (bool, error) {
	cp := *n
	s.mu.Lock()
	defer s.mu.Unlock()
	old, exists := s.nodes[n.ID]
	if exists && old.File != cp.File {
		delete(s.byFile[old.File], old.ID)
	}
	s.nodes[n.ID] = &cp
	addToSet(s.byFile, cp.File, cp.ID)
	return !exists, nil
}

func (s *Store) PutEdge(_ context.Context, e *graph.Edge) (bool, error) {
	key := e.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.edges[key]; exists {
		return false, nil
	}
	cp := *e
	cp.Metadata = copyMap(e.Metadata)
	s.edges[key] = &cp
	addToSet(s.out, e.SourceID, key)
	addToSet(s.in, e.TargetID, key)
	return true, nil
}

func (s *Store) GetNode(_ context.Context, id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, graph.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *Store) EdgesFrom(_ context.Context, id string) ([]*graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesFor(s.out[id]), nil
}

func (s *Store) EdgesTo(_ context.Context, id string) ([]*graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesFor(s.in[id]), nil
}

func (s *Store) edgesFor(keys map[string]struct{}) []*graph.Edge {
	edges := make([]*graph.Edge, 0, len(keys))
	for key := range keys {
		cp := *s.edges[key]
		cp.Metadata = copyMap(cp.Metadata)
		edges = append(edges, &cp)
	}
	return edges
}

func (s *Store) QueryNodes(_ context.Context, filter graph.NodeFilter) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*graph.Node
	if filter.File != "" {
		for id := range s.byFile[filter.File] {
			if n := s.nodes[id]; filter.Match(n) {
				cp := *n
				results = append(results, &cp)
			}
		}
		return results, nil
	}
	for _, n := range s.nodes {
		if filter.Match(n) {
			cp := *n
			results = append(results, &cp)
		}
	}
	return results, nil
}

func (s *Store) ScanNodes(_ context.Context, fn func(*graph.Node) bool) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		s.mu.RLock()
		n, ok := s.nodes[id]
		var cp graph.Node
		if ok {
			cp = *n
		}
		s.mu.RUnlock()
		if ok && !fn(&cp) {
			break
		}
	}
	return nil
}

func (s *Store) ScanEdges(_ context.Context, fn func(*graph.Edge) bool) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.edges))
	for k := range s.edges {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	for _, k := range keys {
		s.mu.RLock()
		e, ok := s.edges[k]
		var cp graph.Edge
		if ok {
			cp = *e
			cp.Metadata = copyMap(e.Metadata)
		}
		s.mu.RUnlock()
		if ok && !fn(&cp) {
			break
		}
	}
	return nil
}

func (s *Store) PutImport(_ context.Context, importer, alias string, rec graph.ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.imports[importer]
	if !ok {
		m = make(map[string]graph.ImportRecord)
		s.imports[importer] = m
	}
	m[alias] = rec
	for _, f := range rec.Files() {
		addToSet(s.importedBy, f, importer)
	}
	return nil
}

func (s *Store) Imports(_ context.Context, file string) (map[string]graph.ImportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]graph.ImportRecord, len(s.imports[file]))
	for alias, rec := range s.imports[file] {
		out[alias] = rec
	}
	return out, nil
}

func (s *Store) AllImports(_ context.Context) (map[string]map[string]graph.ImportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]graph.ImportRecord, len(s.imports))
	for file, m := range s.imports {
		cp := make(map[string]graph.ImportRecord, len(m))
		for alias, rec := range m {
			cp[alias] = rec
		}
		out[file] = cp
	}
	return out, nil
}

func (s *Store) PutExport(_ context.Context, file, name, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.exports[file]
	if !ok {
		m = make(map[string]string)
		s.exports[file] = m
	}
	m[name] = nodeID
	return nil
}

func (s *Store) Exports(_ context.Context, file string) (*graph.ExportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := &graph.ExportRecord{
		Symbols:    make(map[string]string, len(s.exports[file])),
		ImportedBy: make([]string, 0, len(s.importedBy[file])),
	}
	for name, id := range s.exports[file] {
		rec.Symbols[name] = id
	}
	for importer := range s.importedBy[file] {
		rec.ImportedBy = append(rec.ImportedBy, importer)
	}
	sort.Strings(rec.ImportedBy)
	return rec, nil
}

func (s *Store) ExportingFiles(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var files []string
	for file, m := range s.exports {
		if _, ok := m[name]; ok {
			files = append(files, file)
		}
	}
	return files, nil
}

func (s *Store) Stats(_ context.Context) (*graph.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &graph.Stats{
		Nodes: int64(len(s.nodes)),
		Edges: int64(len(s.edges)),
	}
	for _, n := range s.nodes {
		countNode(st, n.Type)
	}
	for _, m := range s.exports {
		st.Exports += int64(len(m))
	}
	return st, nil
}

// countNode increments the per-type counters of st for one node.
func countNode(st *graph.Stats, t graph.NodeType) {
	switch t {
	case graph.NodeFile:
		st.Files++
	case graph.NodeFunction, graph.NodeMethod:
		st.Functions++
	case graph.NodeClass:
		st.Classes++
	case graph.NodeImport, graph.NodeRequire:
		st.Imports++
	}
}

func (s *Store) PutMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

func (s *Store) Meta(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta[key], nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// Bulk runs fn directly; every individual write is already atomic.
func (s *Store) Bulk(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Close() error { return nil }

func addToSet(m map[string]map[string]struct{}, key, member string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[member] = struct{}{}
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

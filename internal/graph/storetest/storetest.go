// Package storetest holds the behavioral suite every graph.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) graph.Store

// Options describes backend capabilities the suite adapts to.
type Options struct {
	// Transactional backends discard Bulk writes when the callback fails.
	Transactional bool
}

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Factory, opts Options) {
	t.Run("PutNodeIdempotent", func(t *testing.T) { testPutNodeIdempotent(t, open(t)) })
	t.Run("GetNodeMissing", func(t *testing.T) { testGetNodeMissing(t, open(t)) })
	t.Run("EdgeCoalescing", func(t *testing.T) { testEdgeCoalescing(t, open(t)) })
	t.Run("EdgeDirections", func(t *testing.T) { testEdgeDirections(t, open(t)) })
	t.Run("QueryNodes", func(t *testing.T) { testQueryNodes(t, open(t)) })
	t.Run("ScanStopsEarly", func(t *testing.T) { testScanStopsEarly(t, open(t)) })
	t.Run("ImportSymmetry", func(t *testing.T) { testImportSymmetry(t, open(t)) })
	t.Run("PackageImport", func(t *testing.T) { testPackageImport(t, open(t)) })
	t.Run("Exports", func(t *testing.T) { testExports(t, open(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, open(t)) })
	t.Run("Meta", func(t *testing.T) { testMeta(t, open(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, open(t)) })
	t.Run("BulkCommit", func(t *testing.T) { testBulkCommit(t, open(t)) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, open(t)) })
	if opts.Transactional {
		t.Run("BulkRollback", func(t *testing.T) { testBulkRollback(t, open(t)) })
	}
}

func node(typ graph.NodeType, file, name string, line int) *graph.Node {
	return &graph.Node{
		ID:        graph.NewNodeID(typ, file, name, line),
		Type:      typ,
		Name:      name,
		File:      file,
		StartLine: line,
		EndLine:   line + 2,
		Content:   "def " + name + "(): pass",
	}
}

func mustPutNode(t *testing.T, s graph.Store, n *graph.Node) {
	t.Helper()
	_, err := s.PutNode(context.Background(), n)
	require.NoError(t, err)
}

func testPutNodeIdempotent(t *testing.T, s graph.Store) {
	ctx := context.Background()
	n := node(graph.NodeFunction, "a.py", "foo", 1)

	created, err := s.PutNode(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	updated := *n
	updated.Content = "def foo(): return 1"
	updated.EndLine = 5
	created, err = s.PutNode(ctx, &updated)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "def foo(): return 1", got.Content)
	assert.Equal(t, 5, got.EndLine)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Nodes)
}

func testGetNodeMissing(t *testing.T, s graph.Store) {
	_, err := s.GetNode(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, graph.ErrNotFound), "got %v", err)
}

func testEdgeCoalescing(t *testing.T, s graph.Store) {
	ctx := context.Background()
	a := node(graph.NodeFunction, "a.py", "a", 1)
	b := node(graph.NodeFunction, "a.py", "b", 5)
	mustPutNode(t, s, a)
	mustPutNode(t, s, b)

	created, err := s.PutEdge(ctx, &graph.Edge{SourceID: a.ID, TargetID: b.ID, Relationship: graph.RelCalls, Metadata: map[string]string{"line": "2"}})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.PutEdge(ctx, &graph.Edge{SourceID: a.ID, TargetID: b.ID, Relationship: graph.RelCalls, Metadata: map[string]string{"line": "3"}})
	require.NoError(t, err)
	assert.False(t, created)

	edges, err := s.EdgesFrom(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "2", edges[0].Metadata["line"], "first writer's metadata must win")

	// Same endpoints with a different relationship is a distinct edge.
	created, err = s.PutEdge(ctx, &graph.Edge{SourceID: a.ID, TargetID: b.ID, Relationship: graph.RelContains})
	require.NoError(t, err)
	assert.True(t, created)
}

func testEdgeDirections(t *testing.T, s graph.Store) {
	ctx := context.Background()
	file := node(graph.NodeFile, "m.py", "m.py", 0)
	fn := node(graph.NodeFunction, "m.py", "run", 3)
	mustPutNode(t, s, file)
	mustPutNode(t, s, fn)
	_, err := s.PutEdge(ctx, &graph.Edge{SourceID: file.ID, TargetID: fn.ID, Relationship: graph.RelContains})
	require.NoError(t, err)

	out, err := s.EdgesFrom(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, fn.ID, out[0].TargetID)
	assert.Equal(t, graph.RelContains, out[0].Relationship)

	in, err := s.EdgesTo(ctx, fn.ID)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, file.ID, in[0].SourceID)

	none, err := s.EdgesTo(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testQueryNodes(t *testing.T, s graph.Store) {
	ctx := context.Background()
	mustPutNode(t, s, node(graph.NodeFunction, "a.py", "foo", 1))
	mustPutNode(t, s, node(graph.NodeFunction, "b.py", "foo", 1))
	mustPutNode(t, s, node(graph.NodeClass, "a.py", "Foo", 10))
	mustPutNode(t, s, node(graph.NodeFile, "a.py", "a.py", 0))

	byName, err := s.QueryNodes(ctx, graph.NodeFilter{Name: "foo"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	byFile, err := s.QueryNodes(ctx, graph.NodeFilter{File: "a.py"})
	require.NoError(t, err)
	assert.Len(t, byFile, 3)

	combined, err := s.QueryNodes(ctx, graph.NodeFilter{File: "a.py", Type: graph.NodeFunction})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "foo", combined[0].Name)

	all, err := s.QueryNodes(ctx, graph.NodeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func testScanStopsEarly(t *testing.T, s graph.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustPutNode(t, s, node(graph.NodeFunction, "a.py", fmt.Sprintf("f%d", i), i))
	}
	var seen int
	require.NoError(t, s.ScanNodes(ctx, func(*graph.Node) bool {
		seen++
		return seen < 2
	}))
	assert.Equal(t, 2, seen)

	seen = 0
	require.NoError(t, s.ScanNodes(ctx, func(*graph.Node) bool {
		seen++
		return true
	}))
	assert.Equal(t, 5, seen)
}

func testImportSymmetry(t *testing.T, s graph.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutImport(ctx, "b.py", "util", graph.ImportRecord{
		Module: "a", OriginalName: "util", Kind: graph.ImportNamed, ResolvedFile: "a.py", Line: 1,
	}))
	require.NoError(t, s.PutImport(ctx, "c.py", "util", graph.ImportRecord{
		Module: "a", OriginalName: "util", Kind: graph.ImportNamed, ResolvedFile: "a.py", Line: 3,
	}))
	require.NoError(t, s.PutImport(ctx, "c.py", "os", graph.ImportRecord{Module: "os", Kind: graph.ImportNamespace}))

	imports, err := s.Imports(ctx, "c.py")
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.Equal(t, "a.py", imports["util"].ResolvedFile)
	assert.Equal(t, 3, imports["util"].Line)
	assert.Empty(t, imports["os"].ResolvedFile)

	rec, err := s.Exports(ctx, "a.py")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b.py", "c.py"}, rec.ImportedBy)

	all, err := s.AllImports(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, graph.ImportNamed, all["b.py"]["util"].Kind)

	unresolved, err := s.Exports(ctx, "os")
	require.NoError(t, err)
	assert.Empty(t, unresolved.ImportedBy)
}

func testPackageImport(t *testing.T, s graph.Store) {
	ctx := context.Background()
	rec := graph.ImportRecord{
		Module:       "example.com/m/pkg/util",
		Kind:         graph.ImportNamespace,
		ResolvedFile: "pkg/util/a.go",
		PackageFiles: []string{"pkg/util/b.go", "pkg/util/c.go"},
		Line:         3,
	}
	require.NoError(t, s.PutImport(ctx, "main.go", "util", rec))

	imports, err := s.Imports(ctx, "main.go")
	require.NoError(t, err)
	assert.Equal(t, rec, imports["util"])

	for _, f := range rec.Files() {
		exp, err := s.Exports(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, []string{"main.go"}, exp.ImportedBy, f)
	}
}

func testExports(t *testing.T, s graph.Store) {
	ctx := context.Background()
	fn := node(graph.NodeFunction, "a.py", "util", 1)
	mustPutNode(t, s, fn)
	require.NoError(t, s.PutExport(ctx, "a.py", "util", fn.ID))
	require.NoError(t, s.PutExport(ctx, "lib.js", "util", "other"))

	rec, err := s.Exports(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"util": fn.ID}, rec.Symbols)

	files, err := s.ExportingFiles(ctx, "util")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py", "lib.js"}, files)

	empty, err := s.Exports(ctx, "never-seen.py")
	require.NoError(t, err)
	assert.Empty(t, empty.Symbols)
	assert.Empty(t, empty.ImportedBy)
}

func testStats(t *testing.T, s graph.Store) {
	ctx := context.Background()
	f := node(graph.NodeFile, "a.py", "a.py", 0)
	fn := node(graph.NodeFunction, "a.py", "foo", 1)
	m := node(graph.NodeMethod, "a.py", "Foo.bar", 8)
	c := node(graph.NodeClass, "a.py", "Foo", 7)
	imp := node(graph.NodeImport, "a.py", "os", 0)
	for _, n := range []*graph.Node{f, fn, m, c, imp} {
		mustPutNode(t, s, n)
	}
	_, err := s.PutEdge(ctx, &graph.Edge{SourceID: f.ID, TargetID: fn.ID, Relationship: graph.RelContains})
	require.NoError(t, err)
	require.NoError(t, s.PutExport(ctx, "a.py", "foo", fn.ID))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{Nodes: 5, Edges: 1, Files: 1, Functions: 2, Classes: 1, Imports: 1, Exports: 1}, *st)
}

func testMeta(t *testing.T, s graph.Store) {
	ctx := context.Background()
	v, err := s.Meta(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.PutMeta(ctx, graph.MetaRoot, "/src/a"))
	require.NoError(t, s.PutMeta(ctx, graph.MetaRoot, "/src/b"))
	v, err = s.Meta(ctx, graph.MetaRoot)
	require.NoError(t, err)
	assert.Equal(t, "/src/b", v)

	// Metadata is not a node and does not show up in the counts.
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{}, *st)

	require.NoError(t, s.Bulk(ctx, func(ctx context.Context) error {
		require.NoError(t, s.PutMeta(ctx, "pass", "2"))
		v, err := s.Meta(ctx, "pass")
		require.NoError(t, err)
		assert.Equal(t, "2", v)
		return nil
	}))
	v, err = s.Meta(ctx, "pass")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func testClear(t *testing.T, s graph.Store) {
	ctx := context.Background()
	a := node(graph.NodeFunction, "a.py", "a", 1)
	b := node(graph.NodeFunction, "a.py", "b", 2)
	mustPutNode(t, s, a)
	mustPutNode(t, s, b)
	_, err := s.PutEdge(ctx, &graph.Edge{SourceID: a.ID, TargetID: b.ID, Relationship: graph.RelCalls})
	require.NoError(t, err)
	require.NoError(t, s.PutImport(ctx, "b.py", "a", graph.ImportRecord{Module: "a", Kind: graph.ImportNamespace, ResolvedFile: "a.py"}))
	require.NoError(t, s.PutExport(ctx, "a.py", "a", a.ID))
	require.NoError(t, s.PutMeta(ctx, graph.MetaRoot, "/src/project"))

	require.NoError(t, s.Clear(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{}, *st)
	imports, err := s.AllImports(ctx)
	require.NoError(t, err)
	assert.Empty(t, imports)
	rec, err := s.Exports(ctx, "a.py")
	require.NoError(t, err)
	assert.Empty(t, rec.Symbols)
	assert.Empty(t, rec.ImportedBy)
	root, err := s.Meta(ctx, graph.MetaRoot)
	require.NoError(t, err)
	assert.Empty(t, root)

	// The store stays usable after clearing.
	mustPutNode(t, s, a)
	got, err := s.GetNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
}

func testBulkCommit(t *testing.T, s graph.Store) {
	ctx := context.Background()
	a := node(graph.NodeFunction, "a.py", "a", 1)
	err := s.Bulk(ctx, func(ctx context.Context) error {
		if _, err := s.PutNode(ctx, a); err != nil {
			return err
		}
		// Reads inside the scope see pending writes.
		got, err := s.GetNode(ctx, a.ID)
		if err != nil {
			return err
		}
		if got.Name != "a" {
			return fmt.Errorf("unexpected name %q", got.Name)
		}
		return s.PutExport(ctx, "a.py", "a", a.ID)
	})
	require.NoError(t, err)

	got, err := s.GetNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Content, got.Content)
	rec, err := s.Exports(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, a.ID, rec.Symbols["a"])
}

func testBulkRollback(t *testing.T, s graph.Store) {
	ctx := context.Background()
	before := node(graph.NodeFunction, "a.py", "before", 1)
	mustPutNode(t, s, before)

	boom := errors.New("boom")
	inside := node(graph.NodeFunction, "a.py", "inside", 5)
	err := s.Bulk(ctx, func(ctx context.Context) error {
		if _, err := s.PutNode(ctx, inside); err != nil {
			return err
		}
		if err := s.PutImport(ctx, "b.py", "x", graph.ImportRecord{Module: "a", Kind: graph.ImportNamespace, ResolvedFile: "a.py"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetNode(ctx, inside.ID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = s.GetNode(ctx, before.ID)
	assert.NoError(t, err)
	imports, err := s.Imports(ctx, "b.py")
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func testConcurrentWriters(t *testing.T, s graph.Store) {
	ctx := context.Background()
	const workers = 8
	const perWorker = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Every worker writes the same shared node and edge plus its own node.
				shared := node(graph.NodeFunction, "shared.py", "shared", 1)
				own := node(graph.NodeFunction, fmt.Sprintf("w%d.py", w), fmt.Sprintf("f%d", i), i)
				if _, err := s.PutNode(ctx, shared); err != nil {
					errs <- err
					return
				}
				if _, err := s.PutNode(ctx, own); err != nil {
					errs <- err
					return
				}
				if _, err := s.PutEdge(ctx, &graph.Edge{SourceID: own.ID, TargetID: shared.ID, Relationship: graph.RelCalls}); err != nil {
					errs <- err
					return
				}
				if err := s.PutImport(ctx, fmt.Sprintf("w%d.py", w), "shared", graph.ImportRecord{Module: "shared", Kind: graph.ImportNamespace, ResolvedFile: "shared.py"}); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, workers*perWorker+1, st.Nodes)
	assert.EqualValues(t, workers*perWorker, st.Edges)

	shared := node(graph.NodeFunction, "shared.py", "shared", 1)
	in, err := s.EdgesTo(ctx, shared.ID)
	require.NoError(t, err)
	assert.Len(t, in, workers*perWorker)

	rec, err := s.Exports(ctx, "shared.py")
	require.NoError(t, err)
	assert.Len(t, rec.ImportedBy, workers)
}

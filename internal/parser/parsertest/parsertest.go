// Package parsertest runs extractors against in-memory graphs for tests.
package parsertest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/graph/memory"
	"github.com/imyousuf/CodeContext/internal/parser"
)

// Result is the outcome of extracting one file.
type Result struct {
	Graph   *graph.Graph
	FileID  string
	Path    string
	Pending []parser.PendingBody
}

// Extract parses src as path with ext's language and runs ext against a
// fresh in-memory graph. res may be nil.
func Extract(t *testing.T, ext parser.Extractor, res parser.ModuleResolver, path, src string) *Result {
	t.Helper()
	g := graph.New(memory.NewStore())
	t.Cleanup(func() { g.Close() })
	return ExtractInto(t, g, ext, res, path, src)
}

// ExtractInto is Extract against an existing graph.
func ExtractInto(t *testing.T, g *graph.Graph, ext parser.Extractor, res parser.ModuleResolver, path, src string) *Result {
	t.Helper()
	ctx := context.Background()

	provider := parser.NewProvider()
	t.Cleanup(provider.Close)
	tree, err := provider.Parse(ctx, ext.Language(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)

	fileID := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFile, Name: path, File: path, Content: src})
	require.Equal(t, parser.FileNodeID(path), fileID)

	fc := parser.NewFileContext(ctx, g, res, nil, path, []byte(src), tree, fileID)
	require.NoError(t, ext.Extract(fc))
	return &Result{Graph: g, FileID: fileID, Path: path, Pending: fc.Pending()}
}

// Names returns the sorted names of nodes of typ in the result's file.
func (r *Result) Names(t *testing.T, typ graph.NodeType) []string {
	t.Helper()
	nodes, err := r.Graph.FindNodes(context.Background(), graph.NodeFilter{Type: typ, File: r.Path})
	require.NoError(t, err)
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	return names
}

// Exports returns the sorted exported names of the result's file.
func (r *Result) Exports(t *testing.T) []string {
	t.Helper()
	rec, err := r.Graph.Exports(context.Background(), r.Path)
	require.NoError(t, err)
	names := make([]string, 0, len(rec.Symbols))
	for name := range rec.Symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportTarget returns the node an exported name maps to.
func (r *Result) ExportTarget(t *testing.T, name string) *graph.Node {
	t.Helper()
	rec, err := r.Graph.Exports(context.Background(), r.Path)
	require.NoError(t, err)
	id, ok := rec.Symbols[name]
	require.True(t, ok, "export %q missing", name)
	n, err := r.Graph.GetNode(context.Background(), id)
	require.NoError(t, err)
	return n
}

// Imports returns the import records of the result's file.
func (r *Result) Imports(t *testing.T) map[string]graph.ImportRecord {
	t.Helper()
	imports, err := r.Graph.Imports(context.Background(), r.Path)
	require.NoError(t, err)
	return imports
}

// Callees parses src and returns the callee names ext reports for every call
// site, in match order, skipping unlinkable ones.
func Callees(t *testing.T, ext parser.Extractor, src string) []string {
	t.Helper()
	provider := parser.NewProvider()
	defer provider.Close()
	tree, err := provider.Parse(context.Background(), ext.Language(), []byte(src))
	require.NoError(t, err)
	defer tree.Close()

	matches, err := provider.Query(tree, nil, ext.CallQuery())
	require.NoError(t, err)
	var names []string
	for _, m := range matches {
		if name := ext.Callee(m, tree.Source); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// StaticResolver resolves import strings through a fixed table.
type StaticResolver map[string]string

// ResolveFile implements parser.ModuleResolver.
func (s StaticResolver) ResolveFile(_, importString string) string {
	return s[importString]
}

// StaticPackages resolves Go import paths to package files through a fixed
// table.
type StaticPackages map[string][]string

// ResolveFile implements parser.ModuleResolver.
func (s StaticPackages) ResolveFile(_, importString string) string {
	if files := s[importString]; len(files) > 0 {
		return files[0]
	}
	return ""
}

// ResolvePackage implements parser.PackageResolver.
func (s StaticPackages) ResolvePackage(_, importString string) []string {
	return s[importString]
}

package relevance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// usageGraph models:
//
//	a.py      def foo
//	b.py      from a import foo
//	c.py      import a as mod
//	d.py      from a import foo as f
//	e.js      import Widget from './w'; const req = require('requests')
//	w.js      export default class Widget
func usageGraph(t *testing.T) *graph.Graph {
	t.Helper()
	ctx := context.Background()
	g := newGraph(t)
	foo := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "foo", File: "a.py", StartLine: 1, EndLine: 2})
	g.RecordExport(ctx, "a.py", "foo", foo)
	widget := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeClass, Name: "Widget", File: "w.js", StartLine: 1, EndLine: 3})
	g.RecordExport(ctx, "w.js", "Widget", widget)
	g.RecordExport(ctx, "w.js", graph.DefaultExport, widget)

	g.RecordImport(ctx, "b.py", "foo", graph.ImportRecord{Module: "a", OriginalName: "foo", Kind: graph.ImportNamed, ResolvedFile: "a.py", Line: 1})
	g.RecordImport(ctx, "c.py", "mod", graph.ImportRecord{Module: "a", Kind: graph.ImportNamespace, ResolvedFile: "a.py", Line: 1})
	g.RecordImport(ctx, "d.py", "f", graph.ImportRecord{Module: "a", OriginalName: "foo", Kind: graph.ImportNamed, ResolvedFile: "a.py", Line: 1})
	g.RecordImport(ctx, "e.js", "Widget", graph.ImportRecord{Module: "./w", Kind: graph.ImportDefault, ResolvedFile: "w.js", Line: 1})
	g.RecordImport(ctx, "e.js", "req", graph.ImportRecord{Module: "requests", Kind: graph.ImportCommonJS, Line: 2})
	return g
}

func TestFindImportersOf(t *testing.T) {
	ctx := context.Background()
	e := New(usageGraph(t), Options{}, nil)

	for _, p := range []string{"a.py", "./a.py", " a.py "} {
		got, err := e.FindImportersOf(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.py", "c.py", "d.py"}, got, p)
	}

	got, err := e.FindImportersOf(ctx, "missing.py")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindUsagesOfFile(t *testing.T) {
	got, err := New(usageGraph(t), Options{}, nil).FindUsages(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, []Usage{
		{File: "b.py", ImportedAs: "foo"},
		{File: "c.py", ImportedAs: "mod"},
		{File: "d.py", ImportedAs: "f"},
	}, got)
}

func TestFindUsagesOfSymbol(t *testing.T) {
	ctx := context.Background()
	e := New(usageGraph(t), Options{}, nil)

	got, err := e.FindUsages(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, []Usage{
		{File: "b.py", ImportedAs: "foo"},
		{File: "c.py", ImportedAs: "mod"},
		{File: "d.py", ImportedAs: "f"},
	}, got)

	got, err = e.FindUsages(ctx, "Widget")
	require.NoError(t, err)
	assert.Equal(t, []Usage{{File: "e.js", ImportedAs: "Widget"}}, got)
}

func TestFindUsagesStructuralFallback(t *testing.T) {
	ctx := context.Background()
	e := New(usageGraph(t), Options{}, nil)

	got, err := e.FindUsages(ctx, "requests")
	require.NoError(t, err)
	assert.Equal(t, []Usage{{File: "e.js", ImportedAs: "req"}}, got)

	got, err = e.FindUsages(ctx, "nothing_here")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = e.FindUsages(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestModuleBase(t *testing.T) {
	tests := map[string]string{
		"requests":          "requests",
		"os.path":           "path",
		"./util.js":         "util",
		"../lib/helpers":    "helpers",
		"github.com/x/yaml": "yaml",
		"java.util.List":    "List",
		"pkg/":              "pkg",
	}
	for in, want := range tests {
		assert.Equal(t, want, moduleBase(in), in)
	}
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "src/a.py", NormalizePath("./src/a.py"))
	assert.Equal(t, "src/a.py", NormalizePath(`src\a.py`))
	assert.Equal(t, "src/a.py", NormalizePath("src/x/../a.py"))
	assert.Equal(t, "", NormalizePath(" "))
}

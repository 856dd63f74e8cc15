package linker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/graph/memory"
	"github.com/imyousuf/CodeContext/internal/indexer"
	"github.com/imyousuf/CodeContext/internal/parser"
	"github.com/imyousuf/CodeContext/internal/parser/golang"
	"github.com/imyousuf/CodeContext/internal/parser/java"
	"github.com/imyousuf/CodeContext/internal/parser/javascript"
	"github.com/imyousuf/CodeContext/internal/parser/python"
	"github.com/imyousuf/CodeContext/internal/resolver"
)

// linkTree indexes files under a fresh root, links the pending bodies and
// returns the graph together with the link stats.
func linkTree(t *testing.T, files map[string]string) (*graph.Graph, Stats) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	g := graph.New(memory.NewStore())
	t.Cleanup(func() { g.Close() })
	registry := parser.NewRegistry()
	registry.Register(python.NewExtractor())
	registry.Register(javascript.NewExtractor(parser.LangJavaScript))
	registry.Register(java.NewExtractor())
	registry.Register(golang.NewExtractor())
	provider := parser.NewProvider()
	t.Cleanup(provider.Close)

	res, err := resolver.New(root, resolver.Options{})
	require.NoError(t, err)
	idx := indexer.New(indexer.Config{Graph: g, Registry: registry, Provider: provider, Workers: 2})
	result, err := idx.Index(context.Background(), root, res)
	require.NoError(t, err)

	l := New(Config{Graph: g, Registry: registry, Provider: provider, Root: root, Workers: 2})
	st, err := l.Run(context.Background(), result.Pending)
	require.NoError(t, err)
	return g, st
}

type call struct {
	from, to string
	meta     map[string]string
}

// calls lists calls edges as "caller -> callee" using node names.
func calls(t *testing.T, g *graph.Graph) []call {
	t.Helper()
	var edges []*graph.Edge
	require.NoError(t, g.ScanEdges(t.Context(), func(e *graph.Edge) bool {
		if e.Relationship == graph.RelCalls {
			edges = append(edges, e)
		}
		return true
	}))
	out := make([]call, 0, len(edges))
	for _, e := range edges {
		src, err := g.GetNode(t.Context(), e.SourceID)
		require.NoError(t, err)
		dst, err := g.GetNode(t.Context(), e.TargetID)
		require.NoError(t, err)
		out = append(out, call{from: src.Name, to: fmt.Sprintf("%s:%s:%d", dst.File, dst.Name, dst.StartLine), meta: e.Metadata})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].from != out[j].from {
			return out[i].from < out[j].from
		}
		return out[i].to < out[j].to
	})
	return out
}

func pairs(cs []call) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.from + " -> " + c.to
	}
	return out
}

func TestCrossFileCall(t *testing.T) {
	g, st := linkTree(t, map[string]string{
		"a.py": "def foo():\n    return 1\n",
		"b.py": "from a import foo\n\ndef bar():\n    return foo()\n",
	})

	cs := calls(t, g)
	require.Len(t, cs, 1)
	assert.Equal(t, "bar", cs[0].from)
	assert.Equal(t, "a.py:foo:1", cs[0].to)
	assert.Equal(t, map[string]string{"line": "4", "callee": "foo", "cross_file": "true"}, cs[0].meta)
	assert.Equal(t, 1, st.Linked)

	foo, err := g.FindNodes(t.Context(), graph.NodeFilter{Name: "foo", Type: graph.NodeFunction})
	require.NoError(t, err)
	require.Len(t, foo, 1)
	related, err := g.GetRelated(t.Context(), foo[0].ID)
	require.NoError(t, err)
	var labels []string
	for _, r := range related {
		labels = append(labels, r.Label+" "+r.Node.Name)
	}
	assert.Contains(t, labels, "called by bar")
}

func TestSameFileAmbiguityPicksFirst(t *testing.T) {
	files := map[string]string{
		"dup.py": "def dup():\n    pass\n\nif True:\n    def dup():\n        pass\n\ndup()\n",
	}
	for i := 0; i < 3; i++ {
		g, _ := linkTree(t, files)
		assert.Equal(t, []string{"dup.py -> dup.py:dup:1"}, pairs(calls(t, g)))
	}
}

func TestUnresolvedCallsProduceNoEdges(t *testing.T) {
	g, st := linkTree(t, map[string]string{
		"main.py": "import requests\n\ndef run():\n    undefined_fn()\n    requests.get('x')\n    print('hi')\n",
	})
	assert.Empty(t, calls(t, g))
	assert.Zero(t, st.Linked)
	assert.Equal(t, 3, st.Unresolved)
}

func TestReceiverAndInnermostBody(t *testing.T) {
	g, _ := linkTree(t, map[string]string{
		"svc.py": `class Service:
    def run(self):
        self.stop()

    def stop(self):
        def inner():
            helper()
        inner()

def helper():
    pass
`,
	})
	assert.Equal(t, []string{
		"inner -> svc.py:helper:10",
		"run -> svc.py:stop:5",
		"stop -> svc.py:inner:6",
	}, pairs(calls(t, g)))
}

func TestNamespaceAndWildcardImports(t *testing.T) {
	g, _ := linkTree(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/tools.py":    "def hammer():\n    pass\n\ndef saw():\n    pass\n",
		"main.py":         "import pkg.tools\nfrom pkg.tools import *\n\npkg.tools.hammer()\nsaw()\n",
	})
	cs := calls(t, g)
	assert.Equal(t, []string{"main.py -> pkg/tools.py:hammer:1", "main.py -> pkg/tools.py:saw:4"}, pairs(cs))
	for _, c := range cs {
		assert.Equal(t, "true", c.meta["cross_file"])
	}
}

func TestGoPackageImports(t *testing.T) {
	g, st := linkTree(t, map[string]string{
		"go.mod":           "module example.com/m\n",
		"pkg/util/a.go":    "package util\n\nfunc First() {}\n",
		"pkg/util/b.go":    "package util\n\nfunc Second() {}\n\nfunc hidden() {}\n",
		"pkg/fmtx/fmtx.go": "package fmtx\n\nfunc Pretty() {}\n",
		"main.go": `package main

import (
	u "example.com/m/pkg/util"
	. "example.com/m/pkg/fmtx"
)

func main() {
	u.First()
	u.Second()
	u.hidden()
	Pretty()
}
`,
	})
	assert.Equal(t, []string{
		"main -> pkg/fmtx/fmtx.go:Pretty:3",
		"main -> pkg/util/a.go:First:3",
		"main -> pkg/util/b.go:Second:3",
	}, pairs(calls(t, g)))
	assert.Equal(t, 3, st.Linked)
	assert.Equal(t, 1, st.Unresolved)
}

func TestJavaScriptDefaultAndCommonJS(t *testing.T) {
	g, _ := linkTree(t, map[string]string{
		"lib.js":    "function main() {}\nmodule.exports = main;\n",
		"create.js": "export default function create() {}\nexport function helper() {}\n",
		"ns.js":     "export const fmt = () => 1;\n",
		"app.js": `const m = require('./lib');
import make, { helper as h } from './create';
import * as ns from './ns';

function start() {
  m();
  make();
  h();
  ns.fmt();
}
`,
	})
	assert.Equal(t, []string{
		"start -> create.js:create:1",
		"start -> create.js:helper:2",
		"start -> lib.js:main:1",
		"start -> ns.js:fmt:1",
	}, pairs(calls(t, g)))
}

func TestJavaStaticAndClassImports(t *testing.T) {
	g, _ := linkTree(t, map[string]string{
		"src/main/java/com/example/util/Strings.java": `package com.example.util;

public class Strings {
    public static String join(String a) { return a; }
}
`,
		"src/main/java/com/example/App.java": `package com.example;

import static com.example.util.Strings.join;
import com.example.util.Strings;

public class App {
    public void run() {
        join("a");
        Strings.join("b");
        helper();
    }

    private void helper() {}
}
`,
	})
	cs := calls(t, g)
	assert.Equal(t, []string{
		"run -> src/main/java/com/example/App.java:helper:13",
		"run -> src/main/java/com/example/util/Strings.java:join:4",
	}, pairs(cs))
}

func TestRunCancelled(t *testing.T) {
	g := graph.New(memory.NewStore())
	t.Cleanup(func() { g.Close() })
	l := New(Config{Graph: g, Registry: parser.NewRegistry(), Provider: parser.NewProvider(), Root: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Run(ctx, []parser.PendingBody{{File: "x.py", Language: parser.LangPython}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInnermost(t *testing.T) {
	bodies := []parser.PendingBody{
		{NodeID: "file", StartByte: 0, EndByte: 100},
		{NodeID: "outer", StartByte: 10, EndByte: 80},
		{NodeID: "inner", StartByte: 20, EndByte: 40},
	}
	b, ok := innermost(bodies, 25, 30)
	require.True(t, ok)
	assert.Equal(t, "inner", b.NodeID)

	b, _ = innermost(bodies, 50, 60)
	assert.Equal(t, "outer", b.NodeID)

	_, ok = innermost(bodies, 90, 120)
	assert.False(t, ok)
}

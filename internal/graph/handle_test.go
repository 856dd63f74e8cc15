package graph_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/graph/memory"
)

func newGraph(t *testing.T, opts ...graph.Option) *graph.Graph {
	t.Helper()
	g := graph.New(memory.NewStore(), opts...)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestUpsertNodeDeterministicID(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)

	spec := graph.NodeSpec{Type: graph.NodeFunction, Name: "foo", File: "a.py", StartLine: 3, EndLine: 4, Content: "def foo(): pass"}
	id1 := g.UpsertNode(ctx, spec)
	id2 := g.UpsertNode(ctx, spec)
	require.NotEmpty(t, id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, graph.NewNodeID(graph.NodeFunction, "a.py", "foo", 3), id1)
	assert.Len(t, id1, 24)

	inserted, updated, failed := g.WriteCounts()
	assert.EqualValues(t, 1, inserted)
	assert.EqualValues(t, 1, updated)
	assert.Zero(t, failed)
}

func TestUpsertNodeSentinels(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)

	id := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, StartLine: -4, EndLine: -9})
	n, err := g.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, graph.AnonymousName, n.Name)
	assert.Equal(t, graph.VirtualFile, n.File)
	assert.Equal(t, 0, n.StartLine)
	assert.Equal(t, 0, n.EndLine)
}

func TestUpsertNodeCapsContent(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t, graph.WithMaxContent(100))

	huge := strings.Repeat("x", 10*1024*1024)
	id := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "big", File: "big.py", Content: huge})
	n, err := g.GetNode(ctx, id)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(n.Content, graph.TruncationMarker))
	assert.Equal(t, 100+len(graph.TruncationMarker), len(n.Content))
}

func TestCapContentRuneBoundary(t *testing.T) {
	s := "ab" + "é" + "cd" // é is two bytes, at offsets 2-3
	got := graph.CapContent(s, 3)
	assert.Equal(t, "ab"+graph.TruncationMarker, got)
	assert.Equal(t, s, graph.CapContent(s, len(s)))
}

func TestUpsertEdgeSkipsEmptyIDs(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	a := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "a", File: "a.py"})

	g.UpsertEdge(ctx, a, "", graph.RelCalls, nil)
	g.UpsertEdge(ctx, "", a, graph.RelCalls, nil)

	st, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Edges)
}

func TestGetRelatedLabels(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	file := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFile, Name: "a.py", File: "a.py"})
	caller := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "caller", File: "a.py", StartLine: 1})
	callee := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "callee", File: "a.py", StartLine: 5})
	g.UpsertEdge(ctx, file, caller, graph.RelContains, nil)
	g.UpsertEdge(ctx, caller, callee, graph.RelCalls, map[string]string{"line": "2"})

	related, err := g.GetRelated(ctx, caller)
	require.NoError(t, err)
	require.Len(t, related, 2)

	assert.True(t, related[0].Outgoing)
	assert.Equal(t, "calls", related[0].Label)
	assert.Equal(t, "callee", related[0].Node.Name)
	assert.Equal(t, "2", related[0].Metadata["line"])

	assert.False(t, related[1].Outgoing)
	assert.Equal(t, "contained in", related[1].Label)
	assert.Equal(t, "a.py", related[1].Node.Name)

	fromCallee, err := g.GetRelated(ctx, callee)
	require.NoError(t, err)
	require.Len(t, fromCallee, 1)
	assert.Equal(t, "called by", fromCallee[0].Label)
}

func TestFindNodesSorted(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "run", File: "b.py", StartLine: 1})
	g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "run", File: "a.py", StartLine: 9})
	g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "run", File: "a.py", StartLine: 2})

	nodes, err := g.FindNodes(ctx, graph.NodeFilter{Name: "run"})
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "a.py", nodes[0].File)
	assert.Equal(t, 2, nodes[0].StartLine)
	assert.Equal(t, 9, nodes[1].StartLine)
	assert.Equal(t, "b.py", nodes[2].File)
}

type failingStore struct {
	graph.Store
}

func (failingStore) PutNode(context.Context, *graph.Node) (bool, error) {
	return false, errors.New("disk full")
}

func TestUpsertNodeFailureIsCounted(t *testing.T) {
	g := graph.New(failingStore{Store: memory.NewStore()})
	id := g.UpsertNode(context.Background(), graph.NodeSpec{Type: graph.NodeFunction, Name: "x"})
	assert.Empty(t, id)
	_, _, failed := g.WriteCounts()
	assert.EqualValues(t, 1, failed)
}

func TestClearResetsCounters(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "a"})
	require.NoError(t, g.Clear(ctx))

	inserted, _, _ := g.WriteCounts()
	assert.Zero(t, inserted)
	st, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Nodes)
}

func TestExportJSONLines(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	a := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "a", File: "a.py", StartLine: 1})
	b := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "b", File: "a.py", StartLine: 3})
	g.UpsertEdge(ctx, a, b, graph.RelCalls, nil)

	var buf bytes.Buffer
	require.NoError(t, graph.Export(ctx, g, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	var kinds []string
	for _, line := range lines {
		var rec struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		kinds = append(kinds, rec.Kind)
	}
	assert.Equal(t, []string{"node", "node", "edge"}, kinds)
}

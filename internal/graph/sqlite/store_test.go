package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/graph/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) graph.Store {
		s, err := NewStore(filepath.Join(t.TempDir(), "graph.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}, storetest.Options{Transactional: true})
}

func TestReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	g := graph.New(s)
	a := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "a", File: "a.py", StartLine: 1})
	b := g.UpsertNode(ctx, graph.NodeSpec{Type: graph.NodeFunction, Name: "b", File: "a.py", StartLine: 4})
	g.UpsertEdge(ctx, a, b, graph.RelCalls, map[string]string{"line": "2", "callee": "b"})
	require.NoError(t, g.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	edges, err := s.EdgesTo(ctx, b)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, a, edges[0].SourceID)
	assert.Equal(t, map[string]string{"line": "2", "callee": "b"}, edges[0].Metadata)
}

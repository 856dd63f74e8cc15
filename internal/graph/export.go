package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// exportRecord is the JSON-lines format written by Export.
type exportRecord struct {
	Kind string `json:"kind"` // "node" or "edge"
	Data any    `json:"data"`
}

// Export writes all nodes and then all edges to w in JSON-lines format.
// The format is backend-neutral and meant for inspection, not reloading.
func Export(ctx context.Context, g *Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	var encErr error
	err := g.ScanNodes(ctx, func(n *Node) bool {
		encErr = enc.Encode(exportRecord{Kind: "node", Data: n})
		return encErr == nil
	})
	if err != nil {
		return fmt.Errorf("export nodes: %w", err)
	}
	if encErr != nil {
		return fmt.Errorf("encode node: %w", encErr)
	}

	err = g.ScanEdges(ctx, func(e *Edge) bool {
		encErr = enc.Encode(exportRecord{Kind: "edge", Data: e})
		return encErr == nil
	})
	if err != nil {
		return fmt.Errorf("export edges: %w", err)
	}
	if encErr != nil {
		return fmt.Errorf("encode edge: %w", encErr)
	}
	return nil
}

package graph

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a node does not exist.
var ErrNotFound = errors.New("not found")

// NodeFilter specifies criteria for querying nodes. Zero fields match anything.
type NodeFilter struct {
	Type NodeType
	File string
	Name string
}

// Match reports whether n satisfies every non-zero field of the filter.
func (f NodeFilter) Match(n *Node) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.File != "" && n.File != f.File {
		return false
	}
	if f.Name != "" && n.Name != f.Name {
		return false
	}
	return true
}

// Store is the backend contract behind Graph. Implementations must be safe for
// concurrent use and must serialize conflicting writes.
type Store interface {
	// PutNode inserts or replaces the node with n.ID. It reports whether the
	// write created a new record.
	PutNode(ctx context.Context, n *Node) (bool, error)

	// PutEdge inserts the edge unless one with the same (source, target,
	// relationship) exists. It reports whether the write created a new record.
	PutEdge(ctx context.Context, e *Edge) (bool, error)

	// GetNode retrieves a single node by ID, returning ErrNotFound when absent.
	GetNode(ctx context.Context, id string) (*Node, error)

	// EdgesFrom returns the outgoing edges of id.
	EdgesFrom(ctx context.Context, id string) ([]*Edge, error)

	// EdgesTo returns the incoming edges of id.
	EdgesTo(ctx context.Context, id string) ([]*Edge, error)

	// QueryNodes returns all nodes matching the filter.
	QueryNodes(ctx context.Context, filter NodeFilter) ([]*Node, error)

	// ScanNodes calls fn for every node until fn returns false. fn must not
	// call back into the store.
	ScanNodes(ctx context.Context, fn func(*Node) bool) error

	// ScanEdges calls fn for every edge until fn returns false.
	ScanEdges(ctx context.Context, fn func(*Edge) bool) error

	// PutImport stores the import record for (importer, alias) and adds
	// importer to the imported-by set of every file in rec.Files() in the
	// same transaction.
	PutImport(ctx context.Context, importer, alias string, rec ImportRecord) error

	// Imports returns the import records of file keyed by alias.
	Imports(ctx context.Context, file string) (map[string]ImportRecord, error)

	// AllImports returns every import record, keyed by importer then alias.
	AllImports(ctx context.Context) (map[string]map[string]ImportRecord, error)

	// PutExport maps name to nodeID in file's export record.
	PutExport(ctx context.Context, file, name, nodeID string) error

	// Exports returns the export record of file. Files never seen return an
	// empty record, not an error.
	Exports(ctx context.Context, file string) (*ExportRecord, error)

	// ExportingFiles returns the files whose export record contains name.
	ExportingFiles(ctx context.Context, name string) ([]string, error)

	// Stats returns aggregate counters.
	Stats(ctx context.Context) (*Stats, error)

	// PutMeta sets a store-level metadata value, such as the indexed root.
	PutMeta(ctx context.Context, key, value string) error

	// Meta returns the metadata value for key, or "" when unset.
	Meta(ctx context.Context, key string) (string, error)

	// Clear atomically removes every node, edge, import and export record
	// and all metadata.
	Clear(ctx context.Context) error

	// Bulk runs fn inside a bulk-write scope. Persistent backends commit the
	// scope as one or few transactions and discard uncommitted writes when fn
	// fails.
	Bulk(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the store.
	Close() error
}

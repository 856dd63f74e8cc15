package graph

import (
	"crypto/sha256"
	"fmt"
	"strconv"
)

// NodeType represents the kind of entity in the knowledge graph.
type NodeType string

const (
	NodeFile     NodeType = "file"
	NodeFunction NodeType = "function"
	NodeMethod   NodeType = "method"
	NodeClass    NodeType = "class"
	NodeImport   NodeType = "import"
	NodeExport   NodeType = "export"
	NodeRequire  NodeType = "require"
	NodeModule   NodeType = "module"
)

// Callable reports whether nodes of this type can be the target of a call edge.
func (t NodeType) Callable() bool {
	return t == NodeFunction || t == NodeMethod || t == NodeClass
}

// Relationship is the type of a directed edge.
type Relationship string

const (
	RelContains Relationship = "contains"
	RelImports  Relationship = "imports"
	RelExports  Relationship = "exports"
	RelCalls    Relationship = "calls"
)

// Inverse returns the phrase used when an edge is seen from its target.
func (r Relationship) Inverse() string {
	switch r {
	case RelContains:
		return "contained in"
	case RelImports:
		return "imported by"
	case RelExports:
		return "exported by"
	case RelCalls:
		return "called by"
	default:
		return "inverse of " + string(r)
	}
}

// Sentinels substituted for absent optional node fields.
const (
	AnonymousName = "<anonymous>"
	VirtualFile   = "<virtual>"
)

// TruncationMarker is appended to node content cut at the storage ceiling.
const TruncationMarker = "\n... [content truncated]"

// Node represents a code entity in the knowledge graph.
type Node struct {
	ID        string   `json:"id"`
	Type      NodeType `json:"type"`
	Name      string   `json:"name"`
	File      string   `json:"file"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Content   string   `json:"content,omitempty"`
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	SourceID     string            `json:"source_id"`
	TargetID     string            `json:"target_id"`
	Relationship Relationship      `json:"relationship"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Key returns the uniqueness key of the edge.
func (e *Edge) Key() string {
	return e.SourceID + "|" + string(e.Relationship) + "|" + e.TargetID
}

// ImportKind distinguishes import flavors so the linker can pick the right export.
type ImportKind string

const (
	ImportDefault    ImportKind = "default"
	ImportNamed      ImportKind = "named"
	ImportNamespace  ImportKind = "namespace"
	ImportSideEffect ImportKind = "side_effect"
	ImportDynamic    ImportKind = "dynamic"
	ImportCommonJS   ImportKind = "commonjs"
)

// WildcardAlias keys imports that bring every exported name into scope
// (Python "from m import *", Go dot-imports).
const WildcardAlias = "*"

// DefaultExport is the export name used for default/module-level exports.
const DefaultExport = "default"

// ImportRecord describes one local alias bound by an import in a file.
type ImportRecord struct {
	Module       string     `json:"module"`
	OriginalName string     `json:"original_name,omitempty"`
	Kind         ImportKind `json:"kind"`
	ResolvedFile string     `json:"resolved_file,omitempty"`
	// PackageFiles are the other files of a resolved Go package. Each one
	// gets an imported-by entry like ResolvedFile.
	PackageFiles []string   `json:"package_files,omitempty"`
	Line         int        `json:"line,omitempty"`
}

// Files returns ResolvedFile followed by PackageFiles, or nil when the
// import did not resolve.
func (r ImportRecord) Files() []string {
	if r.ResolvedFile == "" {
		return nil
	}
	return append([]string{r.ResolvedFile}, r.PackageFiles...)
}

// Binds reports whether the import resolved to file.
func (r ImportRecord) Binds(file string) bool {
	for _, f := range r.Files() {
		if f == file {
			return true
		}
	}
	return false
}

// ExportRecord lists a file's exported names and the files importing from it.
type ExportRecord struct {
	Symbols    map[string]string `json:"symbols"`
	ImportedBy []string          `json:"imported_by"`
}

// RelatedNode is a neighbor returned by GetRelated, labelled from the
// perspective of the queried node.
type RelatedNode struct {
	Node         *Node
	Relationship Relationship
	Label        string
	Outgoing     bool
	Metadata     map[string]string
}

// Stats holds aggregate counters about the graph.
type Stats struct {
	Nodes     int64 `json:"nodes" yaml:"nodes"`
	Edges     int64 `json:"edges" yaml:"edges"`
	Files     int64 `json:"files" yaml:"files"`
	Functions int64 `json:"functions" yaml:"functions"`
	Classes   int64 `json:"classes" yaml:"classes"`
	Imports   int64 `json:"imports" yaml:"imports"`
	Exports   int64 `json:"exports" yaml:"exports"`
}

// NewNodeID generates a deterministic node ID from the type, file path, name and start line.
// The ID is a hex-encoded SHA-256 hash prefix to keep keys compact and collision-resistant.
func NewNodeID(nodeType NodeType, filePath, name string, startLine int) string {
	raw := string(nodeType) + ":" + filePath + ":" + name + ":" + strconv.Itoa(startLine)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:12])
}

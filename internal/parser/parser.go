package parser

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// Language represents a detected source language.
type Language string

const (
	LangUnknown    Language = ""
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJavaScript Language = "javascript"
	LangJava       Language = "java"

	// Languages below are detected but only served by the fallback extractor.
	LangC      Language = "c"
	LangCPP    Language = "cpp"
	LangCSharp Language = "csharp"
	LangRuby   Language = "ruby"
	LangRust   Language = "rust"
	LangPHP    Language = "php"
	LangShell  Language = "shell"
	LangCSS    Language = "css"
	LangLua    Language = "lua"
	LangPerl   Language = "perl"
	LangKotlin Language = "kotlin"
	LangSwift  Language = "swift"
)

// FileExtensions maps each language to its recognized file extensions.
var FileExtensions = map[Language][]string{
	LangGo:         {".go"},
	LangPython:     {".py", ".pyi", ".pyw"},
	LangTypeScript: {".ts", ".mts", ".cts"},
	LangTSX:        {".tsx"},
	LangJavaScript: {".js", ".jsx", ".mjs", ".cjs"},
	LangJava:       {".java"},
	LangC:          {".c", ".h"},
	LangCPP:        {".cc", ".cpp", ".cxx", ".hpp", ".hh", ".hxx"},
	LangCSharp:     {".cs"},
	LangRuby:       {".rb", ".rake"},
	LangRust:       {".rs"},
	LangPHP:        {".php"},
	LangShell:      {".sh", ".bash", ".zsh"},
	LangCSS:        {".css", ".scss", ".sass", ".less"},
	LangLua:        {".lua"},
	LangPerl:       {".pl", ".pm"},
	LangKotlin:     {".kt", ".kts"},
	LangSwift:      {".swift"},
}

// Extractor turns a parsed file into graph entities, import records and
// export records.
type Extractor interface {
	// Language returns which language this extractor handles.
	Language() Language

	// Extensions returns the file extensions this extractor can handle.
	Extensions() []string

	// Extract writes the file's definitions, imports and exports through fc
	// and queues every definition body for call analysis.
	Extract(fc *FileContext) error

	// CallQuery returns the tree-sitter query locating call sites. Each match
	// captures the whole call as @call and the called expression as @callee.
	CallQuery() string

	// Callee returns the called-name text of a call match, such as "foo",
	// "mod.foo" or "self.run". An empty result means the call is not linkable.
	Callee(m Match, src []byte) string
}

// ModuleResolver maps an import string to a root-relative file path, or "".
type ModuleResolver interface {
	ResolveFile(importingFile, importString string) string
}

// PackageResolver maps a Go import path to every root-relative file of the
// package, sorted.
type PackageResolver interface {
	ResolvePackage(importingFile, importString string) []string
}

// PendingBody is a definition body queued during extraction for the call
// linker. The module-level body of a file has NodeID equal to the file node.
type PendingBody struct {
	File      string
	Language  Language
	NodeID    string
	Name      string
	StartByte uint32
	EndByte   uint32
}

// Contains reports whether the byte range [start, end) lies inside the body.
func (b PendingBody) Contains(start, end uint32) bool {
	return start >= b.StartByte && end <= b.EndByte
}

// FileContext carries everything an extractor needs for one file and
// collects the bodies it queues.
type FileContext struct {
	Ctx      context.Context
	Graph    *graph.Graph
	Resolver ModuleResolver
	Log      *slog.Logger

	Path    string // root-relative, slash separated
	Content []byte
	Tree    *Tree
	FileID  string

	pending []PendingBody
	exports int
}

// NewFileContext builds a context for path and queues its module-level body.
func NewFileContext(ctx context.Context, g *graph.Graph, res ModuleResolver, log *slog.Logger, path string, content []byte, tree *Tree, fileID string) *FileContext {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fc := &FileContext{
		Ctx:      ctx,
		Graph:    g,
		Resolver: res,
		Log:      log,
		Path:     path,
		Content:  content,
		Tree:     tree,
		FileID:   fileID,
	}
	if tree != nil {
		fc.pending = append(fc.pending, PendingBody{
			File:      path,
			Language:  tree.Lang,
			NodeID:    fileID,
			Name:      path,
			StartByte: 0,
			EndByte:   uint32(len(content)),
		})
	}
	return fc
}

// Pending returns the bodies queued so far.
func (fc *FileContext) Pending() []PendingBody { return fc.pending }

// ExportCount returns the number of export entries recorded.
func (fc *FileContext) ExportCount() int { return fc.exports }

// Text returns the source text of n.
func (fc *FileContext) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(fc.Content)
}

// Line returns the 1-based start line of n.
func Line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

// EndLine returns the 1-based end line of n.
func EndLine(n *sitter.Node) int { return int(n.EndPoint().Row) + 1 }

// AddDefinition upserts a definition node spanning n, links it from parentID
// (the file node when empty) with a contains edge and, for callable types,
// queues its body for call analysis. It returns the node id, or "" when the
// write failed.
func (fc *FileContext) AddDefinition(typ graph.NodeType, name string, n *sitter.Node, parentID string) string {
	id := fc.Graph.UpsertNode(fc.Ctx, graph.NodeSpec{
		Type:      typ,
		Name:      name,
		File:      fc.Path,
		StartLine: Line(n),
		EndLine:   EndLine(n),
		Content:   fc.Text(n),
	})
	if id == "" {
		return ""
	}
	if parentID == "" {
		parentID = fc.FileID
	}
	fc.Graph.UpsertEdge(fc.Ctx, parentID, id, graph.RelContains, nil)
	if typ.Callable() && fc.Tree != nil {
		fc.pending = append(fc.pending, PendingBody{
			File:      fc.Path,
			Language:  fc.Tree.Lang,
			NodeID:    id,
			Name:      name,
			StartByte: n.StartByte(),
			EndByte:   n.EndByte(),
		})
	}
	return id
}

// AddImport records one imported alias: an import (or require) node with a
// contains edge from the file, the Import Record, and an imports edge to each
// resolved file's node when the module resolves.
func (fc *FileContext) AddImport(alias string, rec graph.ImportRecord, n *sitter.Node) {
	rec.Module = strings.TrimSpace(rec.Module)
	if alias == "" || rec.Module == "" {
		return
	}
	if n != nil && rec.Line == 0 {
		rec.Line = Line(n)
	}
	if rec.ResolvedFile == "" && fc.Resolver != nil {
		rec.ResolvedFile = fc.Resolver.ResolveFile(fc.Path, rec.Module)
	}

	typ := graph.NodeImport
	if rec.Kind == graph.ImportCommonJS {
		typ = graph.NodeRequire
	}
	spec := graph.NodeSpec{Type: typ, Name: alias, File: fc.Path, StartLine: rec.Line, EndLine: rec.Line}
	if n != nil {
		spec.EndLine = EndLine(n)
		spec.Content = fc.Text(n)
	}
	if id := fc.Graph.UpsertNode(fc.Ctx, spec); id != "" {
		fc.Graph.UpsertEdge(fc.Ctx, fc.FileID, id, graph.RelContains, nil)
	}

	fc.Graph.RecordImport(fc.Ctx, fc.Path, alias, rec)
	for _, f := range rec.Files() {
		fc.Graph.UpsertEdge(fc.Ctx, fc.FileID, FileNodeID(f), graph.RelImports, map[string]string{"alias": alias})
	}
}

// AddExport maps name to nodeID in the file's Export Record and emits an
// exports edge from the file node.
func (fc *FileContext) AddExport(name, nodeID string) {
	if name == "" || nodeID == "" {
		return
	}
	fc.Graph.RecordExport(fc.Ctx, fc.Path, name, nodeID)
	fc.Graph.UpsertEdge(fc.Ctx, fc.FileID, nodeID, graph.RelExports, map[string]string{"name": name})
	fc.exports++
}

// FileNodeID returns the id of the file node for a root-relative path.
func FileNodeID(path string) string {
	return graph.NewNodeID(graph.NodeFile, path, path, 0)
}

// DottedName normalizes called-expression text into an identifier chain such
// as "foo" or "pkg.mod.foo". Anything else (calls on call results, subscripts,
// literals) yields "".
func DottedName(text string) string {
	text = strings.ReplaceAll(text, "?.", ".")
	text = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, text)
	if text == "" || strings.HasPrefix(text, ".") || strings.HasSuffix(text, ".") || strings.Contains(text, "..") {
		return ""
	}
	for _, r := range text {
		if r == '.' || r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return ""
	}
	return text
}

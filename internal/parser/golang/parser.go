// Package golang extracts definitions, imports and exports from Go sources.
package golang

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser"
)

const callQuery = `(call_expression function: (_) @callee) @call`

// majorVersion matches the /vN suffix of module import paths.
var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// Extractor implements parser.Extractor for Go.
type Extractor struct{}

// NewExtractor creates a new Go extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

func (p *Extractor) Language() parser.Language {
	return parser.LangGo
}

func (p *Extractor) Extensions() []string {
	return parser.FileExtensions[parser.LangGo]
}

func (p *Extractor) CallQuery() string { return callQuery }

func (p *Extractor) Callee(m parser.Match, _ []byte) string {
	c, ok := m.Get("callee")
	if !ok {
		return ""
	}
	// Generic instantiations: Map[int](xs) calls Map.
	text := c.Text
	if i := strings.IndexByte(text, '['); i > 0 {
		text = text[:i]
	}
	return parser.DottedName(text)
}

func (p *Extractor) Extract(fc *parser.FileContext) error {
	e := &extractor{fc: fc, types: make(map[string]string)}
	root := fc.Tree.Root()
	// Types first so methods can hang off their receiver type.
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_declaration":
			e.extractImports(child)
		case "type_declaration":
			e.extractTypes(child)
		}
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_declaration":
			e.extractFunction(child)
		case "method_declaration":
			e.extractMethod(child)
		}
	}
	return nil
}

type extractor struct {
	fc    *parser.FileContext
	types map[string]string // type name -> node id
}

func (e *extractor) extractImports(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_spec":
			e.extractImportSpec(child)
		case "import_spec_list":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if spec := child.NamedChild(j); spec.Type() == "import_spec" {
					e.extractImportSpec(spec)
				}
			}
		}
	}
}

func (e *extractor) extractImportSpec(spec *sitter.Node) {
	pathNode := spec.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	importPath, err := strconv.Unquote(e.fc.Text(pathNode))
	if err != nil {
		importPath = strings.Trim(e.fc.Text(pathNode), "\"`")
	}

	alias := packageName(importPath)
	kind := graph.ImportNamespace
	if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
		switch name := e.fc.Text(nameNode); name {
		case ".":
			alias = graph.WildcardAlias
		case "_":
			alias = importPath
			kind = graph.ImportSideEffect
		default:
			alias = name
		}
	}
	rec := graph.ImportRecord{Module: importPath, Kind: kind}
	if pr, ok := e.fc.Resolver.(parser.PackageResolver); ok {
		if files := pr.ResolvePackage(e.fc.Path, importPath); len(files) > 0 {
			rec.ResolvedFile = files[0]
			if len(files) > 1 {
				rec.PackageFiles = files[1:]
			}
		}
	}
	e.fc.AddImport(alias, rec, spec)
}

// packageName guesses the package identifier of an import path: its last
// element, skipping a major-version suffix and dropping a gopkg.in-style
// ".vN" or a "go-" prefix.
func packageName(importPath string) string {
	base := path.Base(importPath)
	if majorVersion.MatchString(base) {
		base = path.Base(path.Dir(importPath))
	}
	if i := strings.Index(base, ".v"); i > 0 {
		base = base[:i]
	}
	base = strings.TrimPrefix(base, "go-")
	return strings.ReplaceAll(base, "-", "_")
}

func (e *extractor) extractFunction(node *sitter.Node) {
	name := e.fc.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	id := e.fc.AddDefinition(graph.NodeFunction, name, node, "")
	if isExported(name) {
		e.fc.AddExport(name, id)
	}
}

func (e *extractor) extractMethod(node *sitter.Node) {
	name := e.fc.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	// Receiver types declared in another file of the package fall back to the file node.
	parentID := e.types[receiverType(e.fc, node.ChildByFieldName("receiver"))]
	e.fc.AddDefinition(graph.NodeMethod, name, node, parentID)
}

// receiverType returns the base type name of a method receiver list such as
// "(s *Server)" or "(l List[T])".
func receiverType(fc *parser.FileContext, recv *sitter.Node) string {
	if recv == nil {
		return ""
	}
	text := fc.Text(recv)
	text = strings.Trim(text, "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typ := strings.TrimLeft(fields[len(fields)-1], "*")
	if i := strings.IndexByte(typ, '['); i >= 0 {
		typ = typ[:i]
	}
	return typ
}

func (e *extractor) extractTypes(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		spec := node.NamedChild(i)
		if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
			continue
		}
		name := e.fc.Text(spec.ChildByFieldName("name"))
		if name == "" {
			continue
		}
		id := e.fc.AddDefinition(graph.NodeClass, name, spec, "")
		if id != "" {
			e.types[name] = id
		}
		if isExported(name) {
			e.fc.AddExport(name, id)
		}
	}
}

// isExported applies the Go rule: an uppercase initial exports the name.
func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

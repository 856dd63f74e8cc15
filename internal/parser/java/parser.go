// Package java extracts definitions, imports and exports from Java sources.
package java

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser"
)

const callQuery = `
(method_invocation name: (identifier) @callee) @call
(object_creation_expression type: (_) @callee) @call
`

// Extractor implements parser.Extractor for Java.
type Extractor struct{}

// NewExtractor creates a new Java extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

func (p *Extractor) Language() parser.Language {
	return parser.LangJava
}

func (p *Extractor) Extensions() []string {
	return parser.FileExtensions[parser.LangJava]
}

func (p *Extractor) CallQuery() string { return callQuery }

// Callee composes "object.name" for qualified invocations and strips type
// arguments from constructor calls.
func (p *Extractor) Callee(m parser.Match, src []byte) string {
	c, ok := m.Get("callee")
	if !ok {
		return ""
	}
	name := c.Text
	if i := strings.IndexByte(name, '<'); i > 0 {
		name = name[:i]
	}
	call, ok := m.Get("call")
	if ok && call.Node.Type() == "method_invocation" {
		if obj := call.Node.ChildByFieldName("object"); obj != nil {
			name = obj.Content(src) + "." + name
		}
	}
	return parser.DottedName(name)
}

func (p *Extractor) Extract(fc *parser.FileContext) error {
	e := &extractor{fc: fc}
	root := fc.Tree.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_declaration":
			e.extractImport(child)
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration", "annotation_type_declaration":
			e.extractType(child, "", true)
		}
	}
	return nil
}

type extractor struct {
	fc *parser.FileContext
}

func (e *extractor) extractImport(node *sitter.Node) {
	// import a.b.C; import a.b.*; import static a.b.C.m;
	var path string
	wildcard, static := false, false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "scoped_identifier", "identifier":
			path = e.fc.Text(child)
		case "asterisk":
			wildcard = true
		case "static":
			static = true
		}
	}
	if path == "" {
		return
	}
	if wildcard {
		e.fc.AddImport(graph.WildcardAlias, graph.ImportRecord{Module: path, Kind: graph.ImportNamespace}, node)
		return
	}

	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	if static {
		// The member's class is the module; its export key is Class.member.
		class := strings.TrimSuffix(path, "."+last)
		className := class
		if i := strings.LastIndexByte(class, '.'); i >= 0 {
			className = class[i+1:]
		}
		e.fc.AddImport(last, graph.ImportRecord{Module: class, OriginalName: className + "." + last, Kind: graph.ImportNamed}, node)
		return
	}
	e.fc.AddImport(last, graph.ImportRecord{Module: path, OriginalName: last, Kind: graph.ImportNamed}, node)
}

// extractType records a class-like declaration and its members. Only public
// top-level types and their public methods are exported.
func (e *extractor) extractType(node *sitter.Node, parentID string, topLevel bool) {
	name := e.fc.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	typeID := e.fc.AddDefinition(graph.NodeClass, name, node, parentID)
	if typeID == "" {
		return
	}
	exported := topLevel && isPublic(e.fc, node)
	if exported {
		e.fc.AddExport(name, typeID)
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	e.walkBody(body, name, typeID, exported)
}

func (e *extractor) walkBody(body *sitter.Node, className, typeID string, exported bool) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			name := e.fc.Text(member.ChildByFieldName("name"))
			if name == "" {
				name = className
			}
			id := e.fc.AddDefinition(graph.NodeMethod, name, member, typeID)
			if exported && isPublic(e.fc, member) {
				e.fc.AddExport(className+"."+name, id)
			}
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			e.extractType(member, typeID, false)
		case "enum_body_declarations":
			e.walkBody(member, className, typeID, exported)
		}
	}
}

func isPublic(fc *parser.FileContext, node *sitter.Node) bool {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "modifiers" {
			continue
		}
		for _, word := range strings.Fields(fc.Text(child)) {
			if word == "public" {
				return true
			}
		}
	}
	return false
}

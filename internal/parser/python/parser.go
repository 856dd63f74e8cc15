// Package python extracts definitions, imports and exports from Python sources.
package python

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser"
)

const callQuery = `(call function: (_) @callee) @call`

// Extractor implements parser.Extractor for Python.
type Extractor struct{}

// NewExtractor creates a new Python extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

func (p *Extractor) Language() parser.Language {
	return parser.LangPython
}

func (p *Extractor) Extensions() []string {
	return parser.FileExtensions[parser.LangPython]
}

func (p *Extractor) CallQuery() string { return callQuery }

func (p *Extractor) Callee(m parser.Match, _ []byte) string {
	c, ok := m.Get("callee")
	if !ok {
		return ""
	}
	return parser.DottedName(c.Text)
}

func (p *Extractor) Extract(fc *parser.FileContext) error {
	e := &extractor{fc: fc}
	e.walkBlock(fc.Tree.Root(), "", "", true)
	return nil
}

// extractor walks a tree-sitter Python AST and writes through the file context.
type extractor struct {
	fc *parser.FileContext
}

// walkBlock visits the statements of a module, class body or function body.
// className is set inside a class body; topLevel marks module scope, the only
// scope whose definitions are exported.
func (e *extractor) walkBlock(block *sitter.Node, parentID, className string, topLevel bool) {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			if topLevel || className == "" {
				e.extractImport(child)
			}
		case "import_from_statement":
			if topLevel || className == "" {
				e.extractFromImport(child)
			}
		case "class_definition":
			e.extractClass(child, child, parentID, topLevel)
		case "function_definition":
			e.extractFunction(child, child, parentID, className, topLevel)
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			switch def.Type() {
			case "class_definition":
				e.extractClass(def, child, parentID, topLevel)
			case "function_definition":
				e.extractFunction(def, child, parentID, className, topLevel)
			}
		case "if_statement", "try_statement", "with_statement":
			// Definitions under a module-level if, try or with stay module scope.
			if topLevel {
				e.walkNested(child, parentID)
			}
		}
	}
}

// walkNested descends into compound statements at module scope. Their
// blocks are walked as module scope, so definitions there are exported.
func (e *extractor) walkNested(node *sitter.Node, parentID string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "block":
			e.walkBlock(child, parentID, "", true)
		case "else_clause", "elif_clause", "except_clause", "finally_clause":
			e.walkNested(child, parentID)
		}
	}
}

func (e *extractor) extractImport(node *sitter.Node) {
	// import a.b, c as d
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			module := e.fc.Text(child)
			e.fc.AddImport(module, graph.ImportRecord{Module: module, Kind: graph.ImportNamespace}, node)
		case "aliased_import":
			module := e.fc.Text(child.ChildByFieldName("name"))
			alias := e.fc.Text(child.ChildByFieldName("alias"))
			e.fc.AddImport(alias, graph.ImportRecord{Module: module, Kind: graph.ImportNamespace}, node)
		}
	}
}

func (e *extractor) extractFromImport(node *sitter.Node) {
	// from X import Y, Z as W / from X import *
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	module := e.fc.Text(moduleNode)
	onlyDots := strings.Trim(module, ".") == ""

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "wildcard_import" {
			e.fc.AddImport(graph.WildcardAlias, graph.ImportRecord{Module: module, Kind: graph.ImportNamespace}, node)
			continue
		}
		if child.StartByte() == moduleNode.StartByte() {
			continue
		}
		var name, alias string
		switch child.Type() {
		case "dotted_name":
			name = e.fc.Text(child)
			alias = name
		case "aliased_import":
			name = e.fc.Text(child.ChildByFieldName("name"))
			alias = e.fc.Text(child.ChildByFieldName("alias"))
		default:
			continue
		}
		if onlyDots {
			// from . import sibling: the name is itself a module.
			e.fc.AddImport(alias, graph.ImportRecord{Module: module + name, Kind: graph.ImportNamespace}, node)
			continue
		}
		e.fc.AddImport(alias, graph.ImportRecord{Module: module, OriginalName: name, Kind: graph.ImportNamed}, node)
	}
}

func (e *extractor) extractClass(node, outer *sitter.Node, parentID string, topLevel bool) {
	name := e.fc.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	classID := e.fc.AddDefinition(graph.NodeClass, name, outer, parentID)
	if classID == "" {
		return
	}
	if topLevel && isExported(name) {
		e.fc.AddExport(name, classID)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		e.walkBlock(body, classID, name, false)
	}
}

func (e *extractor) extractFunction(node, outer *sitter.Node, parentID, className string, topLevel bool) {
	name := e.fc.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	nodeType := graph.NodeFunction
	if className != "" {
		nodeType = graph.NodeMethod
	}
	funcID := e.fc.AddDefinition(nodeType, name, outer, parentID)
	if funcID == "" {
		return
	}
	if topLevel && isExported(name) {
		e.fc.AddExport(name, funcID)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		e.walkBlock(body, funcID, "", false)
	}
}

// isExported applies the Python convention: names starting with an
// underscore are private.
func isExported(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}

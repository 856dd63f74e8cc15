// Package javascript extracts definitions, imports and exports from
// JavaScript and TypeScript sources, covering both ES modules and CommonJS.
package javascript

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser"
)

const callQuery = `
(call_expression function: (_) @callee) @call
(new_expression constructor: (_) @callee) @call
`

// Extractor implements parser.Extractor for one of javascript, typescript or
// tsx. The three grammars share the node types this extractor relies on.
type Extractor struct {
	lang parser.Language
}

// NewExtractor creates an extractor for lang, which must be LangJavaScript,
// LangTypeScript or LangTSX.
func NewExtractor(lang parser.Language) *Extractor {
	return &Extractor{lang: lang}
}

func (p *Extractor) Language() parser.Language { return p.lang }

func (p *Extractor) Extensions() []string { return parser.FileExtensions[p.lang] }

func (p *Extractor) CallQuery() string { return callQuery }

func (p *Extractor) Callee(m parser.Match, _ []byte) string {
	c, ok := m.Get("callee")
	if !ok {
		return ""
	}
	return parser.DottedName(c.Text)
}

func (p *Extractor) Extract(fc *parser.FileContext) error {
	e := &extractor{
		fc:       fc,
		topLevel: make(map[string]string),
	}
	root := fc.Tree.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		e.visitTopLevel(root.NamedChild(i))
	}
	e.flushExports()
	return nil
}

// pendingExport is an export whose target is referenced by name and can only
// be bound once every top-level definition is known.
type pendingExport struct {
	exported string
	local    string
}

// extractor walks a tree-sitter JS/TS AST and writes through the file context.
type extractor struct {
	fc *parser.FileContext

	topLevel map[string]string // top-level definition name -> node id
	deferred []pendingExport
}

func (e *extractor) visitTopLevel(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		e.extractImport(node)
	case "export_statement":
		e.extractExportStatement(node)
	case "lexical_declaration", "variable_declaration":
		e.extractVariables(node, nil)
	case "expression_statement":
		e.extractExpressionStatement(node)
	default:
		e.declare(node, "")
	}
}

// declare handles a definition node and returns the defined names mapped to
// their node ids.
func (e *extractor) declare(node *sitter.Node, parentID string) map[string]string {
	defined := make(map[string]string)
	switch node.Type() {
	case "function_declaration", "generator_function_declaration", "function_signature":
		name := e.fc.Text(node.ChildByFieldName("name"))
		if id := e.define(graph.NodeFunction, name, node, parentID); id != "" {
			defined[name] = id
		}
	case "class_declaration", "abstract_class_declaration", "class":
		name := e.fc.Text(node.ChildByFieldName("name"))
		if id := e.extractClass(name, node, parentID); id != "" {
			defined[name] = id
		}
	case "interface_declaration", "enum_declaration":
		name := e.fc.Text(node.ChildByFieldName("name"))
		if id := e.define(graph.NodeClass, name, node, parentID); id != "" {
			defined[name] = id
		}
	case "lexical_declaration", "variable_declaration":
		return e.extractVariables(node, defined)
	}
	return defined
}

// define upserts a top-level definition and remembers it for export binding.
func (e *extractor) define(typ graph.NodeType, name string, node *sitter.Node, parentID string) string {
	if name == "" {
		return ""
	}
	id := e.fc.AddDefinition(typ, name, node, parentID)
	if id != "" && parentID == "" {
		if _, seen := e.topLevel[name]; !seen {
			e.topLevel[name] = id
		}
	}
	return id
}

func (e *extractor) extractClass(name string, node *sitter.Node, parentID string) string {
	classID := e.define(graph.NodeClass, name, node, parentID)
	if classID == "" {
		return ""
	}
	body := node.ChildByFieldName("body")
	if body == nil {
		return classID
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_definition", "method_signature", "abstract_method_signature":
			e.fc.AddDefinition(graph.NodeMethod, e.fc.Text(member.ChildByFieldName("name")), member, classID)
		case "field_definition", "public_field_definition":
			value := member.ChildByFieldName("value")
			if value == nil || !isFunctionValue(value) {
				continue
			}
			nameNode := member.ChildByFieldName("property")
			if nameNode == nil {
				nameNode = member.ChildByFieldName("name")
			}
			e.fc.AddDefinition(graph.NodeMethod, e.fc.Text(nameNode), member, classID)
		}
	}
	return classID
}

// extractVariables handles const/let/var declarations: function-valued
// declarators become function nodes, require() and import() calls become
// import records. defined, when non-nil, collects the defined names.
func (e *extractor) extractVariables(node *sitter.Node, defined map[string]string) map[string]string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		value := unwrapAwait(decl.ChildByFieldName("value"))
		if nameNode == nil || value == nil {
			continue
		}

		if module, kind, ok := e.importCall(value); ok {
			e.bindImport(nameNode, module, kind, decl)
			continue
		}
		if nameNode.Type() != "identifier" {
			continue
		}
		name := e.fc.Text(nameNode)
		var id string
		switch {
		case isFunctionValue(value):
			id = e.define(graph.NodeFunction, name, decl, "")
		case value.Type() == "class":
			id = e.extractClass(name, value, "")
		}
		if id != "" && defined != nil {
			defined[name] = id
		}
	}
	return defined
}

// bindImport records the aliases bound by `x = require(m)` or a destructuring
// pattern over it.
func (e *extractor) bindImport(pattern *sitter.Node, module string, kind graph.ImportKind, site *sitter.Node) {
	switch pattern.Type() {
	case "identifier":
		e.fc.AddImport(e.fc.Text(pattern), graph.ImportRecord{Module: module, Kind: kind}, site)
	case "object_pattern":
		for i := 0; i < int(pattern.NamedChildCount()); i++ {
			prop := pattern.NamedChild(i)
			switch prop.Type() {
			case "shorthand_property_identifier_pattern", "shorthand_property_identifier":
				name := e.fc.Text(prop)
				e.fc.AddImport(name, graph.ImportRecord{Module: module, OriginalName: name, Kind: graph.ImportNamed}, site)
			case "pair_pattern":
				key := e.fc.Text(prop.ChildByFieldName("key"))
				value := prop.ChildByFieldName("value")
				if value != nil && value.Type() == "identifier" {
					e.fc.AddImport(e.fc.Text(value), graph.ImportRecord{Module: module, OriginalName: key, Kind: graph.ImportNamed}, site)
				}
			}
		}
	}
}

// importCall recognizes require("m") and import("m").
func (e *extractor) importCall(node *sitter.Node) (string, graph.ImportKind, bool) {
	if node.Type() != "call_expression" {
		return "", "", false
	}
	fn := node.ChildByFieldName("function")
	args := node.ChildByFieldName("arguments")
	if fn == nil || args == nil || args.NamedChildCount() == 0 {
		return "", "", false
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return "", "", false
	}
	module := stripQuotes(e.fc.Text(first))
	switch {
	case fn.Type() == "import":
		return module, graph.ImportDynamic, true
	case fn.Type() == "identifier" && e.fc.Text(fn) == "require":
		return module, graph.ImportCommonJS, true
	}
	return "", "", false
}

func (e *extractor) extractImport(node *sitter.Node) {
	source := node.ChildByFieldName("source")
	if source == nil {
		return
	}
	module := stripQuotes(e.fc.Text(source))

	var clause *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "import_clause" {
			clause = child
			break
		}
	}
	if clause == nil {
		// import "./polyfill"
		e.fc.AddImport(module, graph.ImportRecord{Module: module, Kind: graph.ImportSideEffect}, node)
		return
	}

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			// import lodash from 'lodash'
			e.fc.AddImport(e.fc.Text(child), graph.ImportRecord{Module: module, OriginalName: graph.DefaultExport, Kind: graph.ImportDefault}, node)
		case "namespace_import":
			// import * as utils from './utils'
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if gc := child.NamedChild(j); gc.Type() == "identifier" {
					e.fc.AddImport(e.fc.Text(gc), graph.ImportRecord{Module: module, Kind: graph.ImportNamespace}, node)
				}
			}
		case "named_imports":
			// import { validate, parse as p } from './validators'
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				name := e.fc.Text(spec.ChildByFieldName("name"))
				alias := name
				if a := spec.ChildByFieldName("alias"); a != nil {
					alias = e.fc.Text(a)
				}
				kind := graph.ImportNamed
				if name == graph.DefaultExport {
					kind = graph.ImportDefault
				}
				e.fc.AddImport(alias, graph.ImportRecord{Module: module, OriginalName: name, Kind: kind}, node)
			}
		}
	}
}

func (e *extractor) extractExportStatement(node *sitter.Node) {
	isDefault := false
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); !c.IsNamed() && c.Type() == "default" {
			isDefault = true
			break
		}
	}

	if decl := node.ChildByFieldName("declaration"); decl != nil {
		for name, id := range e.declare(decl, "") {
			if isDefault {
				e.fc.AddExport(graph.DefaultExport, id)
			} else {
				e.fc.AddExport(name, id)
			}
		}
		return
	}

	if value := node.ChildByFieldName("value"); value != nil && isDefault {
		// export default foo / export default function () {} / export default class {}
		switch {
		case value.Type() == "identifier":
			e.deferred = append(e.deferred, pendingExport{exported: graph.DefaultExport, local: e.fc.Text(value)})
		case isFunctionValue(value):
			name := e.fc.Text(value.ChildByFieldName("name"))
			if name == "" {
				name = graph.DefaultExport
			}
			e.fc.AddExport(graph.DefaultExport, e.define(graph.NodeFunction, name, value, ""))
		case value.Type() == "class":
			name := e.fc.Text(value.ChildByFieldName("name"))
			if name == "" {
				name = graph.DefaultExport
			}
			e.fc.AddExport(graph.DefaultExport, e.extractClass(name, value, ""))
		}
		return
	}

	// A default-exported function or class declaration may appear as a direct child.
	if isDefault {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			for _, id := range e.declare(child, "") {
				e.fc.AddExport(graph.DefaultExport, id)
			}
		}
		return
	}

	source := node.ChildByFieldName("source")
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			spec := child.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			local := e.fc.Text(spec.ChildByFieldName("name"))
			exported := local
			if a := spec.ChildByFieldName("alias"); a != nil {
				exported = e.fc.Text(a)
			}
			if source != nil {
				// Re-exports bind no local definition; record the dependency only.
				module := stripQuotes(e.fc.Text(source))
				e.fc.AddImport(exported, graph.ImportRecord{Module: module, OriginalName: local, Kind: graph.ImportNamed}, node)
				continue
			}
			e.deferred = append(e.deferred, pendingExport{exported: exported, local: local})
		}
	}
}

// extractExpressionStatement handles CommonJS exports and bare require calls.
func (e *extractor) extractExpressionStatement(node *sitter.Node) {
	if node.NamedChildCount() == 0 {
		return
	}
	expr := node.NamedChild(0)
	if module, kind, ok := e.importCall(unwrapAwait(expr)); ok {
		e.fc.AddImport(module, graph.ImportRecord{Module: module, Kind: kind}, node)
		return
	}
	if expr.Type() != "assignment_expression" {
		return
	}
	left := e.fc.Text(expr.ChildByFieldName("left"))
	right := expr.ChildByFieldName("right")
	if right == nil {
		return
	}

	switch {
	case left == "module.exports":
		e.commonJSDefault(right, node)
	case strings.HasPrefix(left, "module.exports."):
		e.commonJSNamed(strings.TrimPrefix(left, "module.exports."), right, node)
	case strings.HasPrefix(left, "exports."):
		e.commonJSNamed(strings.TrimPrefix(left, "exports."), right, node)
	}
}

func (e *extractor) commonJSDefault(right, stmt *sitter.Node) {
	switch {
	case right.Type() == "identifier":
		e.deferred = append(e.deferred, pendingExport{exported: graph.DefaultExport, local: e.fc.Text(right)})
	case isFunctionValue(right):
		name := e.fc.Text(right.ChildByFieldName("name"))
		if name == "" {
			name = graph.DefaultExport
		}
		e.fc.AddExport(graph.DefaultExport, e.define(graph.NodeFunction, name, stmt, ""))
	case right.Type() == "class":
		name := e.fc.Text(right.ChildByFieldName("name"))
		if name == "" {
			name = graph.DefaultExport
		}
		e.fc.AddExport(graph.DefaultExport, e.extractClass(name, right, ""))
	case right.Type() == "object":
		// module.exports = { a, b: c, d() {} }
		for i := 0; i < int(right.NamedChildCount()); i++ {
			prop := right.NamedChild(i)
			switch prop.Type() {
			case "shorthand_property_identifier":
				name := e.fc.Text(prop)
				e.deferred = append(e.deferred, pendingExport{exported: name, local: name})
			case "pair":
				key := e.fc.Text(prop.ChildByFieldName("key"))
				value := prop.ChildByFieldName("value")
				switch {
				case value == nil:
				case value.Type() == "identifier":
					e.deferred = append(e.deferred, pendingExport{exported: key, local: e.fc.Text(value)})
				case isFunctionValue(value):
					e.fc.AddExport(key, e.define(graph.NodeFunction, key, prop, ""))
				}
			case "method_definition":
				name := e.fc.Text(prop.ChildByFieldName("name"))
				e.fc.AddExport(name, e.define(graph.NodeFunction, name, prop, ""))
			}
		}
	}
}

func (e *extractor) commonJSNamed(name string, right, stmt *sitter.Node) {
	if name == "" || strings.Contains(name, ".") {
		return
	}
	switch {
	case right.Type() == "identifier":
		e.deferred = append(e.deferred, pendingExport{exported: name, local: e.fc.Text(right)})
	case isFunctionValue(right):
		e.fc.AddExport(name, e.define(graph.NodeFunction, name, stmt, ""))
	case right.Type() == "class":
		e.fc.AddExport(name, e.extractClass(name, right, ""))
	}
}

// flushExports binds by-name exports once every top-level definition is known.
// Names that do not refer to a definition (plain values, imports) are skipped.
func (e *extractor) flushExports() {
	for _, p := range e.deferred {
		if id, ok := e.topLevel[p.local]; ok {
			e.fc.AddExport(p.exported, id)
		}
	}
}

func isFunctionValue(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func unwrapAwait(n *sitter.Node) *sitter.Node {
	for n != nil && (n.Type() == "await_expression" || n.Type() == "parenthesized_expression") {
		if n.NamedChildCount() == 0 {
			return n
		}
		n = n.NamedChild(0)
	}
	return n
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}

package parser

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// grammars lists the languages the AST provider can parse.
var grammars = map[Language]func() *sitter.Language{
	LangGo:         golang.GetLanguage,
	LangPython:     python.GetLanguage,
	LangJavaScript: javascript.GetLanguage,
	LangTypeScript: typescript.GetLanguage,
	LangTSX:        tsx.GetLanguage,
	LangJava:       java.GetLanguage,
}

// Tree is a parsed syntax tree together with the source it was parsed from.
type Tree struct {
	Lang   Language
	Source []byte
	tree   *sitter.Tree
}

// Root returns the root node of the tree.
func (t *Tree) Root() *sitter.Node { return t.tree.RootNode() }

// HasErrors reports whether the parser had to recover from syntax errors.
func (t *Tree) HasErrors() bool { return t.Root().HasError() }

// Close releases the underlying tree.
func (t *Tree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
	}
}

// Capture is one named node of a query match.
type Capture struct {
	Name      string
	Node      *sitter.Node
	Text      string
	StartByte uint32
	EndByte   uint32
	StartLine int
	EndLine   int
}

// Match is one query match.
type Match struct {
	Captures []Capture
}

// Get returns the first capture named name.
func (m Match) Get(name string) (Capture, bool) {
	for _, c := range m.Captures {
		if c.Name == name {
			return c, true
		}
	}
	return Capture{}, false
}

type queryKey struct {
	lang    Language
	pattern string
}

// Provider parses source text with tree-sitter and runs pattern queries.
// Compiled queries are cached per (language, pattern). A Provider is safe for
// concurrent use; each Parse call uses its own parser.
type Provider struct {
	mu      sync.Mutex
	queries map[queryKey]*sitter.Query
}

// NewProvider creates an AST provider.
func NewProvider() *Provider {
	return &Provider{queries: make(map[queryKey]*sitter.Query)}
}

// Supports reports whether lang has a grammar.
func (p *Provider) Supports(lang Language) bool {
	_, ok := grammars[lang]
	return ok
}

// Parse parses src as lang. The caller must Close the returned tree.
func (p *Provider) Parse(ctx context.Context, lang Language, src []byte) (*Tree, error) {
	grammar, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("no grammar for language %q", lang)
	}
	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(grammar())

	tree, err := sp.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lang, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree produced", lang)
	}
	return &Tree{Lang: lang, Source: src, tree: tree}, nil
}

func (p *Provider) query(lang Language, pattern string) (*sitter.Query, error) {
	key := queryKey{lang: lang, pattern: pattern}
	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok := p.queries[key]; ok {
		return q, nil
	}
	grammar, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("no grammar for language %q", lang)
	}
	q, err := sitter.NewQuery([]byte(pattern), grammar())
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", lang, err)
	}
	p.queries[key] = q
	return q, nil
}

// Query runs pattern against tree, limited to scope when non-nil, and returns
// matches in document order.
func (p *Provider) Query(tree *Tree, scope *sitter.Node, pattern string) ([]Match, error) {
	q, err := p.query(tree.Lang, pattern)
	if err != nil {
		return nil, err
	}
	if scope == nil {
		scope = tree.Root()
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, scope)

	var matches []Match
	for {
		match, found := cursor.NextMatch()
		if !found {
			break
		}
		match = cursor.FilterPredicates(match, tree.Source)
		if len(match.Captures) == 0 {
			continue
		}
		m := Match{Captures: make([]Capture, 0, len(match.Captures))}
		for _, c := range match.Captures {
			m.Captures = append(m.Captures, Capture{
				Name:      q.CaptureNameForId(c.Index),
				Node:      c.Node,
				Text:      c.Node.Content(tree.Source),
				StartByte: c.Node.StartByte(),
				EndByte:   c.Node.EndByte(),
				StartLine: Line(c.Node),
				EndLine:   EndLine(c.Node),
			})
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Close releases cached queries.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, q := range p.queries {
		q.Close()
		delete(p.queries, k)
	}
}

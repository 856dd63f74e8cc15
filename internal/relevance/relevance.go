// Package relevance ranks graph nodes against free-text queries and assembles
// byte-budgeted context for prompt construction.
package relevance

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// Scoring weights.
const (
	weightNameExact    = 15
	weightNameContains = 10
	weightPath         = 5
	maxContentHits     = 3
	bonusExactQuery    = 100
)

// Options bounds ranking and context assembly. Zero fields take the defaults.
type Options struct {
	// MaxBytes is the global ceiling on GenerateContext output, excluding a
	// trailing TruncationMarker.
	MaxBytes int
	// NodeBytes caps each ranked node's content.
	NodeBytes int
	// RelatedBytes caps each related node's content.
	RelatedBytes int
	// RelatedLimit is the number of related nodes shown per ranked node.
	RelatedLimit int
	// TopK is the number of ranked nodes returned.
	TopK int
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{
		MaxBytes:     32000,
		NodeBytes:    2000,
		RelatedBytes: 300,
		RelatedLimit: 5,
		TopK:         10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxBytes <= 0 {
		o.MaxBytes = d.MaxBytes
	}
	if o.NodeBytes <= 0 {
		o.NodeBytes = d.NodeBytes
	}
	if o.RelatedBytes <= 0 {
		o.RelatedBytes = d.RelatedBytes
	}
	if o.RelatedLimit < 0 {
		o.RelatedLimit = 0
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	return o
}

// Scored is a node with its relevance score.
type Scored struct {
	Node  *graph.Node
	Score int
}

// Engine answers relevance, context and usage queries over a graph. It only
// reads; callers must not run it concurrently with Clear.
type Engine struct {
	g    *graph.Graph
	opts Options
	log  *slog.Logger
}

// New creates an Engine over g. log may be nil.
func New(g *graph.Graph, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{g: g, opts: opts.withDefaults(), log: log}
}

// Options returns the effective limits.
func (e *Engine) Options() Options { return e.opts }

// Tokenize splits a query into distinct lowercase words longer than one
// character.
func Tokenize(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := make(map[string]bool, len(words))
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) > 1 && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Score computes the relevance of n for the tokenized query. whole is the
// lowercased, trimmed query text.
func Score(n *graph.Node, tokens []string, whole string) int {
	name := strings.ToLower(n.Name)
	file := strings.ToLower(n.File)
	content := strings.ToLower(n.Content)

	score := 0
	for _, tok := range tokens {
		switch {
		case name == tok:
			score += weightNameExact
		case strings.Contains(name, tok):
			score += weightNameContains
		}
		if strings.Contains(file, tok) {
			score += weightPath
		}
		if hits := strings.Count(content, tok); hits > 0 {
			score += min(hits, maxContentHits)
		}
	}
	if whole != "" && name == whole {
		score += bonusExactQuery
	}
	return score
}

// FindRelevant returns the top-K nodes scoring above zero, by score
// descending then (file, start line, id). Queries without a usable word
// return nothing.
func (e *Engine) FindRelevant(ctx context.Context, query string) ([]Scored, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	whole := strings.ToLower(strings.TrimSpace(query))

	var scored []Scored
	err := e.g.ScanNodes(ctx, func(n *graph.Node) bool {
		if s := Score(n, tokens, whole); s > 0 {
			scored = append(scored, Scored{Node: n, Score: s})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Node.File != b.Node.File {
			return a.Node.File < b.Node.File
		}
		if a.Node.StartLine != b.Node.StartLine {
			return a.Node.StartLine < b.Node.StartLine
		}
		return a.Node.ID < b.Node.ID
	})
	if len(scored) > e.opts.TopK {
		scored = scored[:e.opts.TopK]
	}
	e.log.Debug("relevance.ranked", "query", query, "tokens", len(tokens), "results", len(scored))
	return scored, nil
}

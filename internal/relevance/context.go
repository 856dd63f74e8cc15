package relevance

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser"
)

// TruncationMarker ends content cut at a ceiling and output cut at the
// global budget.
const TruncationMarker = "\n[truncated]"

// Truncate cuts s to at most ceiling bytes, backed off to a UTF-8 boundary,
// and appends TruncationMarker when anything was removed.
func Truncate(s string, ceiling int) string {
	if ceiling < 0 {
		ceiling = 0
	}
	if len(s) <= ceiling {
		return s
	}
	return s[:graph.RuneBoundary(s, ceiling)] + TruncationMarker
}

// GenerateContext renders the nodes relevant to query as markdown blocks,
// each followed by its related nodes. A block that would push the output
// past MaxBytes is dropped and TruncationMarker ends the output instead, so
// the result never exceeds MaxBytes+len(TruncationMarker).
func (e *Engine) GenerateContext(ctx context.Context, query string) (string, error) {
	scored, err := e.FindRelevant(ctx, query)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	header := fmt.Sprintf("# Code context for %q\n\n", strings.TrimSpace(query))
	if len(scored) == 0 {
		header += "No relevant code found.\n"
	}
	if len(header) > e.opts.MaxBytes {
		return header[:graph.RuneBoundary(header, e.opts.MaxBytes)] + TruncationMarker, nil
	}
	b.WriteString(header)

	for _, s := range scored {
		block, err := e.block(ctx, s)
		if err != nil {
			return "", err
		}
		if b.Len()+len(block) > e.opts.MaxBytes {
			e.log.Debug("relevance.budget_exhausted", "query", query, "bytes", b.Len(), "skipped", s.Node.ID)
			b.WriteString(TruncationMarker)
			break
		}
		b.WriteString(block)
	}
	return b.String(), nil
}

func (e *Engine) block(ctx context.Context, s Scored) (string, error) {
	n := s.Node
	var b strings.Builder
	fmt.Fprintf(&b, "## [%s] %s (%s:%d-%d)\n", n.Type, n.Name, n.File, n.StartLine, n.EndLine)
	fmt.Fprintf(&b, "```%s\n", fence(n.File))
	content := Truncate(n.Content, e.opts.NodeBytes)
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("```\n")

	if e.opts.RelatedLimit > 0 {
		related, err := e.g.GetRelated(ctx, n.ID)
		if err != nil {
			return "", err
		}
		if len(related) > e.opts.RelatedLimit {
			related = related[:e.opts.RelatedLimit]
		}
		if len(related) > 0 {
			b.WriteString("Related:\n")
		}
		for _, r := range related {
			fmt.Fprintf(&b, "  - %s [%s] %s (%s:%d-%d)\n", r.Label, r.Node.Type, r.Node.Name, r.Node.File, r.Node.StartLine, r.Node.EndLine)
			if snippet := Truncate(r.Node.Content, e.opts.RelatedBytes); snippet != "" {
				for _, line := range strings.Split(strings.TrimRight(snippet, "\n"), "\n") {
					b.WriteString("      ")
					b.WriteString(line)
					b.WriteByte('\n')
				}
			}
		}
	}
	b.WriteByte('\n')
	return b.String(), nil
}

// fence names the code fence language for a file.
func fence(file string) string {
	return string(parser.LanguageForExtension(filepath.Ext(file)))
}

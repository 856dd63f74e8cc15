package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// fallbackPattern extracts one import-like reference per matching line. The
// first submatch is the module text.
type fallbackPattern struct {
	syntax string
	re     *regexp.Regexp
}

var fallbackImports = []fallbackPattern{
	{"include", regexp.MustCompile(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`)},
	{"import", regexp.MustCompile(`^\s*import\s+(?:static\s+)?["']?([\w./@-]+)["']?\s*;?\s*$`)},
	{"require", regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)},
	{"require", regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)},
	{"use", regexp.MustCompile(`^\s*use\s+([\w:\\]+)`)},
	{"@import", regexp.MustCompile(`^\s*@import\s+(?:url\()?['"]([^'"]+)['"]`)},
	{"source", regexp.MustCompile(`^\s*(?:source|\.)\s+([\w./-]+\.(?:sh|bash|zsh))\b`)},
}

// fallbackDefinition is the generic "keyword name(" heuristic.
var fallbackDefinition = regexp.MustCompile(`^\s*(?:(?:pub|public|private|protected|static|export|async|local)\s+)*(def|fn|func|function|fun|sub|proc)\s+([A-Za-z_][\w.:]*)\s*\(`)

// fallbackMaxLine bounds the lines the patterns run on; longer ones are
// minified or generated text and are skipped.
const fallbackMaxLine = 1 << 20

var fallbackClass = regexp.MustCompile(`^\s*(?:(?:pub|public|private|abstract|final|export)\s+)*(class|struct|module|trait|interface)\s+([A-Za-z_]\w*)`)

// Fallback performs low-precision, line-oriented extraction for files no
// AST extractor serves. It records import references and definition names but
// queues nothing for call analysis and registers no exports. It returns the
// number of entities found.
func Fallback(fc *FileContext, lang Language) int {
	fc.Log.Debug("extract.fallback", "file", fc.Path, "language", lang)

	found := 0
	lineNo := 0
	for rest := fc.Content; len(rest) > 0; {
		lineNo++
		line := rest
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i], rest[i+1:]
		} else {
			rest = nil
		}
		if len(line) > fallbackMaxLine {
			fc.Log.Warn("extract.fallback_long_line", "file", fc.Path, "line", lineNo, "bytes", len(line))
			continue
		}
		if fallbackLine(fc, string(bytes.TrimSuffix(line, []byte("\r"))), lineNo) {
			found++
		}
	}
	return found
}

func fallbackLine(fc *FileContext, line string, lineNo int) bool {
	for _, p := range fallbackImports {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		module := strings.TrimSpace(m[1])
		kind := graph.ImportNamespace
		if p.syntax == "require" {
			kind = graph.ImportCommonJS
		}
		fc.AddImport(module, graph.ImportRecord{Module: module, Kind: kind, Line: lineNo}, nil)
		return true
	}

	typ := graph.NodeFunction
	m := fallbackDefinition.FindStringSubmatch(line)
	if m == nil {
		m = fallbackClass.FindStringSubmatch(line)
		typ = graph.NodeClass
	}
	if m == nil {
		return false
	}
	id := fc.Graph.UpsertNode(fc.Ctx, graph.NodeSpec{
		Type:      typ,
		Name:      m[2],
		File:      fc.Path,
		StartLine: lineNo,
		EndLine:   lineNo,
		Content:   line,
	})
	fc.Graph.UpsertEdge(fc.Ctx, fc.FileID, id, graph.RelContains, map[string]string{"extraction": "fallback"})
	return true
}

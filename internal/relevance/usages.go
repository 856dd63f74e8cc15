package relevance

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// Usage is one file importing a target, with the local name it binds.
type Usage struct {
	File       string `json:"file" yaml:"file"`
	ImportedAs string `json:"imported_as" yaml:"imported_as"`
}

// NormalizePath turns a user-supplied path into the slash-separated,
// root-relative form the graph keys files by.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// FindImportersOf returns the sorted files importing file. An unknown file
// yields an empty, non-nil slice.
func (e *Engine) FindImportersOf(ctx context.Context, file string) ([]string, error) {
	rec, err := e.g.Exports(ctx, NormalizePath(file))
	if err != nil {
		return nil, err
	}
	out := append([]string{}, rec.ImportedBy...)
	sort.Strings(out)
	return out, nil
}

// FindUsages lists the files importing target. A target that names an
// indexed file is looked up in that file's reverse index. Otherwise target
// is treated as a symbol: its defining files come from export records and
// their importers are matched by what they bind. When neither finds
// anything, every import record is scanned for an alias, original name or
// module basename equal to target.
func (e *Engine) FindUsages(ctx context.Context, target string) ([]Usage, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return []Usage{}, nil
	}
	acc := newUsageSet()

	if looksLikeFile(target) {
		if err := e.fileUsages(ctx, NormalizePath(target), acc); err != nil {
			return nil, err
		}
	}
	if acc.empty() {
		if err := e.symbolUsages(ctx, target, acc); err != nil {
			return nil, err
		}
	}
	if acc.empty() {
		if err := e.scanUsages(ctx, target, acc); err != nil {
			return nil, err
		}
	}
	e.log.Debug("relevance.usages", "target", target, "results", len(acc.items))
	return acc.sorted(), nil
}

func (e *Engine) fileUsages(ctx context.Context, file string, acc *usageSet) error {
	rec, err := e.g.Exports(ctx, file)
	if err != nil {
		return err
	}
	for _, importer := range rec.ImportedBy {
		imports, err := e.g.Imports(ctx, importer)
		if err != nil {
			return err
		}
		for alias, ir := range imports {
			if ir.Binds(file) {
				acc.add(importer, alias)
			}
		}
	}
	return nil
}

func (e *Engine) symbolUsages(ctx context.Context, symbol string, acc *usageSet) error {
	files, err := e.g.ExportingFiles(ctx, symbol)
	if err != nil {
		return err
	}
	for _, file := range files {
		rec, err := e.g.Exports(ctx, file)
		if err != nil {
			return err
		}
		for _, importer := range rec.ImportedBy {
			imports, err := e.g.Imports(ctx, importer)
			if err != nil {
				return err
			}
			for alias, ir := range imports {
				if ir.Binds(file) && bindsSymbol(alias, ir, symbol) {
					acc.add(importer, alias)
				}
			}
		}
	}
	return nil
}

// bindsSymbol reports whether an import makes symbol reachable in the
// importing file.
func bindsSymbol(alias string, ir graph.ImportRecord, symbol string) bool {
	switch {
	case ir.OriginalName == symbol, ir.OriginalName == "" && alias == symbol:
		return true
	case alias == graph.WildcardAlias, ir.Kind == graph.ImportNamespace:
		return true
	case symbol == graph.DefaultExport:
		return ir.Kind == graph.ImportDefault || ir.Kind == graph.ImportCommonJS
	}
	// Java class imports reach Class.member exports.
	return ir.OriginalName != "" && strings.HasPrefix(symbol, ir.OriginalName+".")
}

func (e *Engine) scanUsages(ctx context.Context, target string, acc *usageSet) error {
	all, err := e.g.AllImports(ctx)
	if err != nil {
		return err
	}
	for importer, imports := range all {
		for alias, ir := range imports {
			if alias == target || ir.OriginalName == target || moduleBase(ir.Module) == target {
				acc.add(importer, alias)
			}
		}
	}
	return nil
}

// moduleBase is the last segment of a module string in any of the path or
// dotted notations extractors record.
func moduleBase(module string) string {
	module = strings.TrimSuffix(module, "/")
	if i := strings.LastIndexAny(module, "/."); i >= 0 && i < len(module)-1 {
		base := module[i+1:]
		// "./util.js" keeps its stem rather than "js".
		if module[i] == '.' && strings.Contains(module, "/") {
			stem := module[strings.LastIndexByte(module, '/')+1:]
			return strings.TrimSuffix(stem, path.Ext(stem))
		}
		return base
	}
	return module
}

func looksLikeFile(target string) bool {
	return strings.ContainsAny(target, "/\\") || path.Ext(target) != ""
}

type usageSet struct {
	seen  map[Usage]bool
	items []Usage
}

func newUsageSet() *usageSet { return &usageSet{seen: make(map[Usage]bool)} }

func (s *usageSet) add(file, alias string) {
	u := Usage{File: file, ImportedAs: alias}
	if !s.seen[u] {
		s.seen[u] = true
		s.items = append(s.items, u)
	}
}

func (s *usageSet) empty() bool { return len(s.items) == 0 }

func (s *usageSet) sorted() []Usage {
	out := append([]Usage{}, s.items...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].ImportedAs < out[j].ImportedAs
	})
	return out
}

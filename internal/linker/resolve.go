package linker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/imyousuf/CodeContext/internal/graph"
)

// receivers name the current instance or class in method bodies.
var receivers = map[string]bool{"self": true, "this": true, "cls": true}

// fileScope is the name environment of one file: its import records and
// the callable definitions it declares.
type fileScope struct {
	file    string
	imports map[string]graph.ImportRecord
	local   map[string][]*graph.Node // name -> callables ordered by (start line, id)
	exports *exportCache
	ctx     context.Context
	log     *slog.Logger
}

func (l *Linker) newFileScope(ctx context.Context, file string, exports *exportCache) (*fileScope, error) {
	imports, err := l.cfg.Graph.Imports(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("imports of %s: %w", file, err)
	}
	nodes, err := l.cfg.Graph.FindNodes(ctx, graph.NodeFilter{File: file})
	if err != nil {
		return nil, fmt.Errorf("nodes of %s: %w", file, err)
	}
	local := make(map[string][]*graph.Node)
	for _, n := range nodes {
		if n.Type.Callable() {
			local[n.Name] = append(local[n.Name], n)
		}
	}
	return &fileScope{file: file, imports: imports, local: local, exports: exports, ctx: ctx, log: l.log}, nil
}

// resolve maps a called name to a target node id and the file defining it.
// The order is: import alias, same-file definition, dotted access through an
// import alias or receiver, then wildcard imports. "" means unresolved.
func (s *fileScope) resolve(name string) (id, file string) {
	if rec, ok := s.imports[name]; ok {
		if id, file := s.viaImport(rec, ""); id != "" {
			return id, file
		}
	}
	if id := s.sameFile(name); id != "" {
		return id, s.file
	}
	if strings.Contains(name, ".") {
		if id, file := s.dotted(name); id != "" {
			return id, file
		}
	}
	if rec, ok := s.imports[graph.WildcardAlias]; ok && !strings.Contains(name, ".") {
		if id, file := s.lookup(rec, name); id != "" {
			return id, file
		}
	}
	return "", ""
}

// viaImport looks up what an import binds. With member empty the alias
// itself is called; otherwise alias.member is.
func (s *fileScope) viaImport(rec graph.ImportRecord, member string) (string, string) {
	if rec.ResolvedFile == "" {
		return "", ""
	}
	if member == "" {
		switch {
		case rec.Kind == graph.ImportDefault:
			return s.lookup(rec, graph.DefaultExport)
		case rec.OriginalName != "":
			return s.lookup(rec, rec.OriginalName)
		case rec.Kind == graph.ImportCommonJS || rec.Kind == graph.ImportDynamic:
			return s.lookup(rec, graph.DefaultExport)
		}
		return "", ""
	}
	if id, file := s.lookup(rec, member); id != "" {
		return id, file
	}
	// Java imports a class; its members are exported as Class.member.
	if rec.OriginalName != "" {
		return s.lookup(rec, rec.OriginalName+"."+member)
	}
	return "", ""
}

// dotted resolves object.member calls. The longest import alias prefix wins,
// so "pkg.mod.run" binds through an "import pkg.mod" alias.
func (s *fileScope) dotted(name string) (string, string) {
	for i := strings.LastIndexByte(name, '.'); i > 0; i = strings.LastIndexByte(name[:i], '.') {
		object, member := name[:i], name[i+1:]
		if rec, ok := s.imports[object]; ok {
			return s.viaImport(rec, member)
		}
		if receivers[object] {
			return s.sameFile(member), s.file
		}
	}
	return "", ""
}

// sameFile returns the first callable named name by (start line, id).
func (s *fileScope) sameFile(name string) string {
	candidates := s.local[name]
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) > 1 {
		s.log.Debug("link.ambiguous", "file", s.file, "name", name, "candidates", len(candidates), "chosen", candidates[0].ID)
	}
	return candidates[0].ID
}

// lookup finds name in the exports of the files an import resolved to. A Go
// package spans several files; the first in path order that exports name wins.
func (s *fileScope) lookup(rec graph.ImportRecord, name string) (string, string) {
	for _, f := range rec.Files() {
		if id := s.exports.symbols(s.ctx, f)[name]; id != "" {
			return id, f
		}
	}
	return "", ""
}

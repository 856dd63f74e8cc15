// Package resolver maps import strings to the project files they refer to.
package resolver

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultExtensions are appended to extensionless import paths, in order.
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".py", ".java"}

// DefaultSourceRoots are searched after the project root.
var DefaultSourceRoots = []string{"src", "lib", "src/main/java"}

// DefaultDependencyDirs hold vendored packages for bare module names.
var DefaultDependencyDirs = []string{"node_modules"}

// DefaultCacheSize bounds the probe cache when Options.CacheSize is zero.
const DefaultCacheSize = 4096

// Options configures a Resolver. Zero fields take the package defaults.
type Options struct {
	// Extensions are tried in order when an import omits its extension.
	Extensions []string
	// Aliases maps an import prefix (such as "@/") to a root-relative
	// replacement (such as "src/").
	Aliases map[string]string
	// SourceRoots are root-relative directories searched after the root.
	SourceRoots []string
	// DependencyDirs are root-relative directories holding vendored modules.
	DependencyDirs []string
	// CacheSize bounds the file-existence probe cache.
	CacheSize int
}

// Resolver turns (importing file, import string) pairs into file paths.
// It is safe for concurrent use.
type Resolver struct {
	root           string
	extensions     []string
	aliases        []alias
	sourceRoots    []string
	dependencyDirs []string
	goModule       string
	probes         *lru.Cache[string, bool]
	packages       *lru.Cache[string, []string]
}

type alias struct {
	prefix, target string
}

// New creates a resolver for the project rooted at root. Source roots and
// aliases declared in pyproject.toml and tsconfig.json at the root are added
// to those in opts, and the module path in go.mod anchors Go imports.
func New(root string, opts Options) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, bool](size)
	if err != nil {
		return nil, err
	}
	packages, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		root:           abs,
		extensions:     orDefault(opts.Extensions, DefaultExtensions),
		sourceRoots:    orDefault(opts.SourceRoots, DefaultSourceRoots),
		dependencyDirs: orDefault(opts.DependencyDirs, DefaultDependencyDirs),
		probes:         cache,
		packages:       packages,
	}

	m := readManifests(abs)
	r.goModule = m.goModule
	r.sourceRoots = appendUnique(r.sourceRoots, m.sourceRoots...)
	aliases := make(map[string]string, len(opts.Aliases)+len(m.aliases))
	for k, v := range m.aliases {
		aliases[k] = v
	}
	for k, v := range opts.Aliases {
		aliases[k] = v
	}
	for prefix, target := range aliases {
		if prefix != "" {
			r.aliases = append(r.aliases, alias{prefix: prefix, target: target})
		}
	}
	// Longest prefix first so "@app/" wins over "@".
	sort.Slice(r.aliases, func(i, j int) bool {
		if len(r.aliases[i].prefix) != len(r.aliases[j].prefix) {
			return len(r.aliases[i].prefix) > len(r.aliases[j].prefix)
		}
		return r.aliases[i].prefix < r.aliases[j].prefix
	})
	return r, nil
}

// Root returns the absolute project root.
func (r *Resolver) Root() string { return r.root }

// SourceRoots returns the effective source roots.
func (r *Resolver) SourceRoots() []string { return append([]string(nil), r.sourceRoots...) }

// GoModule returns the module path declared in the root go.mod, or "".
func (r *Resolver) GoModule() string { return r.goModule }

// ResolveFile is Resolve returning a slash-separated root-relative path, or
// "" when the import does not resolve to a file inside the root.
func (r *Resolver) ResolveFile(importingFile, importString string) string {
	abs := r.Resolve(importingFile, importString)
	if abs == "" {
		return ""
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	return rel
}

// Resolve returns the absolute path of the file importString refers to when
// written in importingFile (absolute or root-relative), or "" when it cannot
// be resolved. Unresolved imports are expected for external packages.
func (r *Resolver) Resolve(importingFile, importString string) string {
	spec := strings.TrimSpace(importString)
	spec = strings.Trim(spec, "\"'`")
	spec = strings.ReplaceAll(spec, "\\", "/")
	if spec == "" {
		return ""
	}

	importer := filepath.FromSlash(importingFile)
	if !filepath.IsAbs(importer) {
		importer = filepath.Join(r.root, importer)
	}
	dir := filepath.Dir(importer)

	switch strings.ToLower(filepath.Ext(importer)) {
	case ".go":
		if files := r.goPackage(spec); len(files) > 0 {
			return files[0]
		}
		return ""
	case ".py", ".pyi", ".pyw":
		if strings.HasPrefix(spec, ".") {
			return r.probe(pythonRelative(dir, spec))
		}
		spec = strings.ReplaceAll(spec, ".", "/")
	case ".java":
		spec = strings.ReplaceAll(spec, ".", "/")
	}

	if isRelative(spec) {
		return r.probe(filepath.Join(dir, filepath.FromSlash(spec)))
	}

	for _, a := range r.aliases {
		if strings.HasPrefix(spec, a.prefix) {
			spec = path.Join(a.target, strings.TrimPrefix(spec, a.prefix))
			if found := r.probe(filepath.Join(r.root, filepath.FromSlash(spec))); found != "" {
				return found
			}
			break
		}
	}

	if filepath.IsAbs(filepath.FromSlash(spec)) {
		return r.probe(filepath.Clean(filepath.FromSlash(spec)))
	}

	if isBare(spec) {
		for _, d := range r.dependencyDirs {
			if found := r.probeDependency(filepath.Join(r.root, filepath.FromSlash(d), filepath.FromSlash(spec))); found != "" {
				return found
			}
		}
	}

	if found := r.probe(filepath.Join(r.root, filepath.FromSlash(spec))); found != "" {
		return found
	}
	for _, sr := range r.sourceRoots {
		if found := r.probe(filepath.Join(r.root, filepath.FromSlash(sr), filepath.FromSlash(spec))); found != "" {
			return found
		}
	}
	return ""
}

// ResolvePackage returns the root-relative files of the Go package that
// importString names, sorted, or nil when it is not a package inside the
// root. Test files are left out.
func (r *Resolver) ResolvePackage(importingFile, importString string) []string {
	if !strings.EqualFold(filepath.Ext(importingFile), ".go") {
		return nil
	}
	spec := strings.Trim(strings.TrimSpace(importString), "\"`")
	if spec == "" {
		return nil
	}
	var out []string
	for _, f := range r.goPackage(spec) {
		rel, err := filepath.Rel(r.root, f)
		if err != nil || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

// goPackage lists the absolute paths of the non-test .go files in the
// directory an import path maps to: below the root for paths under the
// go.mod module, under vendor/ otherwise.
func (r *Resolver) goPackage(spec string) []string {
	var dir string
	switch {
	case r.goModule != "" && spec == r.goModule:
		dir = r.root
	case r.goModule != "" && strings.HasPrefix(spec, r.goModule+"/"):
		dir = filepath.Join(r.root, filepath.FromSlash(strings.TrimPrefix(spec, r.goModule+"/")))
	default:
		dir = filepath.Join(r.root, "vendor", filepath.FromSlash(spec))
	}
	if files, hit := r.packages.Get(dir); hit {
		return files
	}
	var files []string
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			name := e.Name()
			if !e.Type().IsRegular() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			// The go tool ignores these too.
			if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
				continue
			}
			files = append(files, filepath.Join(dir, name))
		}
	}
	// ReadDir sorts by name.
	r.packages.Add(dir, files)
	return files
}

// pythonRelative converts a relative module such as "..pkg.mod" into a path
// relative to dir: one leading dot is dir itself, each further dot its parent.
func pythonRelative(dir, spec string) string {
	rest := strings.TrimLeft(spec, ".")
	for i := 1; i < len(spec)-len(rest); i++ {
		dir = filepath.Dir(dir)
	}
	if rest == "" {
		return dir
	}
	return filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(rest, ".", "/")))
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// isBare reports whether spec names an external package: "lodash",
// "lodash/fp" or "@scope/pkg".
func isBare(spec string) bool {
	if strings.HasPrefix(spec, "@") {
		return strings.Count(spec, "/") >= 1
	}
	return !strings.HasPrefix(spec, "/") && !strings.HasPrefix(spec, ".")
}

// probe tries base as a file, base with each extension appended, base/index
// with each extension, and base/__init__.py.
func (r *Resolver) probe(base string) string {
	if base == "" {
		return ""
	}
	if r.isFile(base) {
		return base
	}
	for _, ext := range r.extensions {
		if r.isFile(base + ext) {
			return base + ext
		}
	}
	// ESM TypeScript imports name the emitted ".js" file.
	if ext := filepath.Ext(base); ext == ".js" || ext == ".jsx" || ext == ".mjs" {
		stem := strings.TrimSuffix(base, ext)
		for _, ts := range []string{".ts", ".tsx", ".mts"} {
			if r.isFile(stem + ts) {
				return stem + ts
			}
		}
	}
	for _, ext := range r.extensions {
		if p := filepath.Join(base, "index"+ext); r.isFile(p) {
			return p
		}
	}
	if p := filepath.Join(base, "__init__.py"); r.isFile(p) {
		return p
	}
	return ""
}

// probeDependency resolves a vendored package directory through its
// package.json entry point before the generic probe.
func (r *Resolver) probeDependency(base string) string {
	if main := packageEntry(base); main != "" {
		if found := r.probe(filepath.Join(base, filepath.FromSlash(main))); found != "" {
			return found
		}
	}
	return r.probe(base)
}

func (r *Resolver) isFile(p string) bool {
	if ok, hit := r.probes.Get(p); hit {
		return ok
	}
	info, err := os.Stat(p)
	ok := err == nil && info.Mode().IsRegular()
	r.probes.Add(p, ok)
	return ok
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return append([]string(nil), def...)
	}
	return append([]string(nil), v...)
}

func appendUnique(dst []string, more ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range more {
		if s != "" && !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

package indexer

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns skips VCS metadata, dependency trees and build output.
var DefaultIgnorePatterns = []string{
	".git", ".hg", ".svn",
	"node_modules", "__pycache__", ".venv", "venv", ".tox", ".mypy_cache",
	".idea", ".vscode",
	"dist", "build", "target", "vendor",
	"*.min.js", "*.map",
}

// IgnoreMatcher decides which root-relative paths the walk skips.
//
// A pattern with glob metacharacters (* ? [ {) is a gobwas glob matched
// against the whole path and against the base name. A plain pattern with a
// slash matches as a substring of the path; a plain pattern without one
// matches any whole path segment, so "build" skips "build/" but not
// "builder.go". Rules from the root .gitignore apply on top when enabled.
type IgnoreMatcher struct {
	segments   map[string]bool
	substrings []string
	globs      []glob.Glob
	gitignore  *ignore.GitIgnore
}

// NewIgnoreMatcher compiles patterns. When useGitignore is set and root
// holds a .gitignore, its rules are loaded too.
func NewIgnoreMatcher(root string, patterns []string, useGitignore bool) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{segments: make(map[string]bool)}
	for _, p := range patterns {
		p = strings.TrimSpace(filepath.ToSlash(p))
		if p == "" {
			continue
		}
		switch {
		case strings.ContainsAny(p, "*?[{"):
			g, err := glob.Compile(p, '/')
			if err != nil {
				return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
			}
			m.globs = append(m.globs, g)
		case strings.Contains(strings.Trim(p, "/"), "/"):
			m.substrings = append(m.substrings, p)
		default:
			m.segments[strings.Trim(p, "/")] = true
		}
	}

	if useGitignore {
		gi := filepath.Join(root, ".gitignore")
		if _, err := os.Stat(gi); err == nil {
			compiled, err := ignore.CompileIgnoreFile(gi)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", gi, err)
			}
			m.gitignore = compiled
		}
	}
	return m, nil
}

// Match reports whether rel (root-relative) is ignored. Directories are
// matched with isDir set so gitignore's trailing-slash rules apply.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if m.segments[seg] {
			return true
		}
	}
	full := "/" + rel
	if isDir {
		full += "/"
	}
	for _, s := range m.substrings {
		if strings.Contains(full, s) {
			return true
		}
	}
	base := path.Base(rel)
	for _, g := range m.globs {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	if m.gitignore != nil {
		if isDir {
			return m.gitignore.MatchesPath(rel + "/")
		}
		return m.gitignore.MatchesPath(rel)
	}
	return false
}

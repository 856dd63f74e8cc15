package resolver

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// manifestHints are resolution settings declared by project manifests.
type manifestHints struct {
	sourceRoots []string
	aliases     map[string]string
	goModule    string
}

func readManifests(root string) manifestHints {
	h := manifestHints{aliases: make(map[string]string)}
	if content, err := os.ReadFile(filepath.Join(root, "pyproject.toml")); err == nil {
		h.sourceRoots = append(h.sourceRoots, pyprojectSourceRoots(content)...)
	}
	if content, err := os.ReadFile(filepath.Join(root, "tsconfig.json")); err == nil {
		roots, aliases := tsconfigPaths(content)
		h.sourceRoots = append(h.sourceRoots, roots...)
		for k, v := range aliases {
			h.aliases[k] = v
		}
	}
	if content, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		h.goModule = modfile.ModulePath(content)
	}
	return h
}

// --- pyproject.toml ---

type pyprojectFile struct {
	Tool struct {
		Setuptools struct {
			PackageDir map[string]string `toml:"package-dir"`
			Packages   struct {
				Find struct {
					Where []string `toml:"where"`
				} `toml:"find"`
			} `toml:"packages"`
		} `toml:"setuptools"`
		Poetry struct {
			Packages []struct {
				Include string `toml:"include"`
				From    string `toml:"from"`
			} `toml:"packages"`
		} `toml:"poetry"`
		Hatch struct {
			Build struct {
				Targets struct {
					Wheel struct {
						Packages []string `toml:"packages"`
					} `toml:"wheel"`
				} `toml:"targets"`
			} `toml:"build"`
		} `toml:"hatch"`
	} `toml:"tool"`
}

// pyprojectSourceRoots returns the package directories declared by
// setuptools, poetry or hatch. Malformed files declare nothing.
func pyprojectSourceRoots(content []byte) []string {
	var pf pyprojectFile
	if err := toml.Unmarshal(content, &pf); err != nil {
		return nil
	}
	var roots []string
	add := func(dir string) {
		dir = path.Clean(strings.TrimSpace(dir))
		if dir != "." && dir != "" && !strings.HasPrefix(dir, "..") {
			roots = appendUnique(roots, dir)
		}
	}
	st := pf.Tool.Setuptools
	for _, dir := range st.Packages.Find.Where {
		add(dir)
	}
	if dir, ok := st.PackageDir[""]; ok {
		add(dir)
	}
	for _, p := range pf.Tool.Poetry.Packages {
		add(p.From)
	}
	for _, p := range pf.Tool.Hatch.Build.Targets.Wheel.Packages {
		add(path.Dir(p))
	}
	return roots
}

// --- tsconfig.json ---

type tsconfigFile struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// tsconfigPaths maps wildcard "paths" entries to alias prefixes and returns
// baseUrl as a source root. Only the first target of each entry is used.
func tsconfigPaths(content []byte) ([]string, map[string]string) {
	var tc tsconfigFile
	if err := json.Unmarshal(content, &tc); err != nil {
		return nil, nil
	}
	base := path.Clean(strings.TrimSpace(tc.CompilerOptions.BaseURL))
	if base == "" {
		base = "."
	}
	var roots []string
	if base != "." && !strings.HasPrefix(base, "..") {
		roots = append(roots, base)
	}
	aliases := make(map[string]string)
	for pattern, targets := range tc.CompilerOptions.Paths {
		if len(targets) == 0 || !strings.HasSuffix(pattern, "*") || !strings.HasSuffix(targets[0], "*") {
			continue
		}
		prefix := strings.TrimSuffix(pattern, "*")
		target := path.Join(base, strings.TrimSuffix(targets[0], "*"))
		if prefix != "" && !strings.HasPrefix(target, "..") {
			aliases[prefix] = target
		}
	}
	return roots, aliases
}

// --- package.json ---

type packageFile struct {
	Module string `json:"module"`
	Main   string `json:"main"`
}

// packageEntry returns the entry point declared by dir/package.json.
func packageEntry(dir string) string {
	content, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pf packageFile
	if err := json.Unmarshal(content, &pf); err != nil {
		return ""
	}
	if pf.Module != "" {
		return pf.Module
	}
	return pf.Main
}

package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (root-relative, slash separated) under a temp root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newResolver(t *testing.T, root string, opts Options) *Resolver {
	t.Helper()
	r, err := New(root, opts)
	require.NoError(t, err)
	return r
}

func TestResolveRelative(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/app.ts":                "",
		"src/utils.ts":              "",
		"src/lib/index.js":          "",
		"src/data.json":             "",
		"src/esm/helper.ts":         "",
		"src/components/Button.tsx": "",
	})
	r := newResolver(t, root, Options{})

	tests := map[string]string{
		"./utils":             "src/utils.ts",
		"'./utils'":           "src/utils.ts",
		"./lib":               "src/lib/index.js",
		"./data.json":         "src/data.json",
		"./esm/helper.js":     "src/esm/helper.ts",
		"./components/Button": "src/components/Button.tsx",
		"../src/utils":        "src/utils.ts",
		".\\utils":            "src/utils.ts",
		"./missing":           "",
	}
	for spec, want := range tests {
		assert.Equal(t, want, r.ResolveFile("src/app.ts", spec), spec)
	}
}

func TestResolveReturnsAbsolutePath(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "", "b.py": ""})
	r := newResolver(t, root, Options{})

	got := r.Resolve("b.py", "a")
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, filepath.Join(r.Root(), "a.py"), got)

	// Importing file given as an absolute path.
	assert.Equal(t, got, r.Resolve(filepath.Join(r.Root(), "b.py"), "a"))
}

func TestResolvePython(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py":                "",
		"pkg/__init__.py":     "",
		"pkg/mod.py":          "",
		"pkg/sub/deep.py":     "",
		"pkg/sub/__init__.py": "",
		"pkg/sub/leaf.py":     "",
	})
	r := newResolver(t, root, Options{})

	tests := []struct {
		from, spec, want string
	}{
		{"b.py", "a", "a.py"},
		{"b.py", "pkg", "pkg/__init__.py"},
		{"b.py", "pkg.mod", "pkg/mod.py"},
		{"b.py", "pkg.sub.deep", "pkg/sub/deep.py"},
		{"pkg/sub/leaf.py", ".deep", "pkg/sub/deep.py"},
		{"pkg/sub/leaf.py", "..mod", "pkg/mod.py"},
		{"pkg/sub/leaf.py", ".", "pkg/sub/__init__.py"},
		{"pkg/sub/leaf.py", "..", "pkg/__init__.py"},
		{"b.py", "os", ""},
		{"b.py", "os.path", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.ResolveFile(tt.from, tt.spec), "%s in %s", tt.spec, tt.from)
	}
}

func TestResolveJava(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/main/java/com/example/util/Strings.java": "",
		"src/main/java/com/example/App.java":          "",
	})
	r := newResolver(t, root, Options{})

	assert.Equal(t, "src/main/java/com/example/util/Strings.java",
		r.ResolveFile("src/main/java/com/example/App.java", "com.example.util.Strings"))
	assert.Empty(t, r.ResolveFile("src/main/java/com/example/App.java", "java.util.List"))
}

func TestResolveAliases(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/components/Nav.tsx": "",
		"app/page.ts":            "",
	})
	r := newResolver(t, root, Options{Aliases: map[string]string{"@/": "src/", "@": "elsewhere/"}})
	assert.Equal(t, "src/components/Nav.tsx", r.ResolveFile("app/page.ts", "@/components/Nav"))
}

func TestResolveTsconfigPaths(t *testing.T) {
	root := writeTree(t, map[string]string{
		"tsconfig.json":     `{"compilerOptions": {"baseUrl": ".", "paths": {"~lib/*": ["./packages/lib/*"]}}}`,
		"packages/lib/x.ts": "",
		"app.ts":            "",
	})
	r := newResolver(t, root, Options{})
	assert.Equal(t, "packages/lib/x.ts", r.ResolveFile("app.ts", "~lib/x"))
}

func TestResolveDependencyDirs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"node_modules/left-pad/package.json": `{"main": "lib/pad.js"}`,
		"node_modules/left-pad/lib/pad.js":   "",
		"node_modules/@scope/pkg/index.js":   "",
		"node_modules/nomain/index.mjs":      "",
		"app.js":                             "",
	})
	r := newResolver(t, root, Options{})

	assert.Equal(t, "node_modules/left-pad/lib/pad.js", r.ResolveFile("app.js", "left-pad"))
	assert.Equal(t, "node_modules/@scope/pkg/index.js", r.ResolveFile("app.js", "@scope/pkg"))
	assert.Equal(t, "node_modules/nomain/index.mjs", r.ResolveFile("app.js", "nomain"))
	assert.Empty(t, r.ResolveFile("app.js", "react"))
}

func TestResolveSourceRoots(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pyproject.toml":         "[tool.setuptools.packages.find]\nwhere = [\"python\"]\n",
		"python/service/core.py": "",
		"src/shared/config.ts":   "",
		"main.py":                "",
	})
	r := newResolver(t, root, Options{})

	assert.Contains(t, r.SourceRoots(), "python")
	assert.Equal(t, "python/service/core.py", r.ResolveFile("main.py", "service.core"))
	assert.Equal(t, "src/shared/config.ts", r.ResolveFile("main.ts", "shared/config"))
}

func TestResolveAbsolute(t *testing.T) {
	root := writeTree(t, map[string]string{"inside.js": ""})
	outside := writeTree(t, map[string]string{"outside.js": ""})
	r := newResolver(t, root, Options{})

	abs := filepath.ToSlash(filepath.Join(outside, "outside.js"))
	assert.Equal(t, filepath.Join(outside, "outside.js"), r.Resolve("inside.js", abs))
	// Files outside the root have no root-relative path.
	assert.Empty(t, r.ResolveFile("inside.js", abs))
}

func TestResolveEmpty(t *testing.T) {
	r := newResolver(t, t.TempDir(), Options{})
	assert.Empty(t, r.Resolve("a.js", ""))
	assert.Empty(t, r.Resolve("a.js", "  ''  "))
}

func TestExistenceCache(t *testing.T) {
	root := writeTree(t, map[string]string{"main.js": ""})
	r := newResolver(t, root, Options{CacheSize: 64})

	assert.Empty(t, r.ResolveFile("main.js", "./later"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "later.js"), nil, 0o644))

	// Missing files stay cached for the resolver's lifetime; a new
	// resolver sees the file.
	assert.Empty(t, r.ResolveFile("main.js", "./later"))
	assert.Equal(t, "later.js", newResolver(t, root, Options{}).ResolveFile("main.js", "./later"))
}

func TestResolveGoPackages(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":                         "module example.com/m\n\ngo 1.22\n",
		"main.go":                        "package main\n",
		"pkg/util/util.go":               "package util\n",
		"pkg/util/strings.go":            "package util\n",
		"pkg/util/util_test.go":          "package util\n",
		"pkg/util/_scratch.go":           "package util\n",
		"pkg/util/README.md":             "",
		"vendor/github.com/x/dep/dep.go": "package dep\n",
		"pkg/empty/.keep":                "",
	})
	r := newResolver(t, root, Options{})

	assert.Equal(t, "example.com/m", r.GoModule())
	assert.Equal(t, []string{"pkg/util/strings.go", "pkg/util/util.go"}, r.ResolvePackage("main.go", "example.com/m/pkg/util"))
	assert.Equal(t, "pkg/util/strings.go", r.ResolveFile("main.go", `"example.com/m/pkg/util"`))
	assert.Equal(t, []string{"main.go"}, r.ResolvePackage("pkg/util/util.go", "example.com/m"))
	assert.Equal(t, []string{"vendor/github.com/x/dep/dep.go"}, r.ResolvePackage("main.go", "github.com/x/dep"))

	assert.Nil(t, r.ResolvePackage("main.go", "fmt"))
	assert.Nil(t, r.ResolvePackage("main.go", "example.com/m/pkg/empty"))
	assert.Nil(t, r.ResolvePackage("main.go", "example.com/mother/pkg"))
	assert.Empty(t, r.ResolveFile("main.go", "net/http"))
	// Only Go importers name packages.
	assert.Nil(t, r.ResolvePackage("app.py", "example.com/m/pkg/util"))
}

func TestResolveGoWithoutModule(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":          "package main\n",
		"pkg/util/util.go": "package util\n",
	})
	r := newResolver(t, root, Options{})

	assert.Empty(t, r.GoModule())
	assert.Nil(t, r.ResolvePackage("main.go", "pkg/util"))
}

func TestPyprojectSourceRoots(t *testing.T) {
	content := []byte(`
[tool.setuptools.packages.find]
where = ["lib"]

[tool.poetry]
packages = [{ include = "app", from = "src" }]

[tool.hatch.build.targets.wheel]
packages = ["pkgs/core"]
`)
	assert.Equal(t, []string{"lib", "src", "pkgs"}, pyprojectSourceRoots(content))
	assert.Nil(t, pyprojectSourceRoots([]byte("not = [valid")))
}

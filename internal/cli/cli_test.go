package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"a.py": "def foo():\n    return 1\n",
		"b.py": "from a import foo\n\n\ndef bar():\n    return foo()\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	// Keep config discovery away from the repository.
	t.Chdir(t.TempDir())
	return root
}

func TestIndexCommand(t *testing.T) {
	root := sampleRoot(t)

	out, err := run(t, "index", root, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "files_indexed: 2")
	assert.Contains(t, out, "calls_linked: 1")

	out, err = run(t, "index", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Index complete")
	assert.Contains(t, out, "memory")
}

func TestQueryCommands(t *testing.T) {
	root := sampleRoot(t)

	out, err := run(t, "importers", "a.py", "--root", root)
	require.NoError(t, err)
	assert.Equal(t, "b.py\n", out)

	out, err = run(t, "importers", "nothing.py", "--root", root)
	require.NoError(t, err)
	assert.Equal(t, "No importers found.\n", out)

	out, err = run(t, "usages", "foo", "--root", root, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "file: b.py")
	assert.Contains(t, out, "imported_as: foo")

	out, err = run(t, "context", "foo", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "## [function] foo (a.py:1-2)")

	out, err = run(t, "stats", "--root", root, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "files: 2")
	assert.Contains(t, out, "functions: 2")
}

func TestExportCommand(t *testing.T) {
	root := sampleRoot(t)
	dest := filepath.Join(t.TempDir(), "graph.jsonl")

	_, err := run(t, "export", "--root", root, "-o", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"node"`)
	assert.Contains(t, string(data), `"kind":"edge"`)
}

func TestPersistentBackendReusesIndex(t *testing.T) {
	root := sampleRoot(t)
	db := filepath.Join(t.TempDir(), "graph.db")

	_, err := run(t, "index", root, "--backend", "sqlite", "--db-path", db)
	require.NoError(t, err)

	// Without --root the stored index answers, whatever the working directory.
	out, err := run(t, "importers", "a.py", "--backend", "sqlite", "--db-path", db)
	require.NoError(t, err)
	assert.Equal(t, "b.py\n", out)

	out, err = run(t, "importers", "a.py", "--backend", "sqlite", "--db-path", db, "--root", root)
	require.NoError(t, err)
	assert.Equal(t, "b.py\n", out)

	// An absolute path under the stored root resolves after reopening.
	out, err = run(t, "importers", filepath.Join(root, "a.py"), "--backend", "sqlite", "--db-path", db)
	require.NoError(t, err)
	assert.Equal(t, "b.py\n", out)

	// Another root replaces the stored index.
	out, err = run(t, "importers", "a.py", "--backend", "sqlite", "--db-path", db, "--root", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No importers found.\n", out)
}

func TestConfigCommands(t *testing.T) {
	sampleRoot(t)
	path := filepath.Join(t.TempDir(), "cc.yaml")

	out, err := run(t, "config", "init", "--path", path, "--backend", "badger", "--db-path", "/tmp/x")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = run(t, "config", "init", "--path", path)
	assert.Error(t, err)

	out, err = run(t, "config", "show", "--config", path, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: badger")
	assert.Contains(t, out, "path: /tmp/x")

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "CodeContext Configuration")
	assert.Contains(t, out, "Graph Storage")
}

func TestInvalidInput(t *testing.T) {
	root := sampleRoot(t)

	_, err := run(t, "stats", "--root", root, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "stats", "--backend", "neo4j")
	assert.Error(t, err)

	_, err = run(t, "importers")
	assert.Error(t, err)
}

func TestLanguagesCommand(t *testing.T) {
	out, err := run(t, "languages")
	require.NoError(t, err)
	assert.Contains(t, out, "Supported Languages")
	assert.Contains(t, out, ".py .pyi .pyw")
	assert.Contains(t, out, "Fallback only")
	assert.Contains(t, out, "rust")

	out, err = run(t, "languages", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "- language: python\n")
	assert.Contains(t, out, "extractor: true")
	assert.Contains(t, out, "- language: c\n")
	assert.Contains(t, out, "extractor: false")

	_, err = run(t, "languages", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "codecontext version dev")
}

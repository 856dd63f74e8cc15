package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendMemory, cfg.Graph.Backend)
	assert.True(t, cfg.Graph.FallbackToMemory)
	assert.Equal(t, 8000, cfg.Graph.MaxContent)
	assert.Contains(t, cfg.Index.Ignore, "node_modules")
	assert.True(t, cfg.Index.Gitignore)
	assert.Positive(t, cfg.Index.Workers)
	assert.Equal(t, []string{"node_modules"}, cfg.Resolver.DependencyDirs)
	assert.Equal(t, 4096, cfg.Resolver.CacheSize)
	assert.Equal(t, ContextConfig{MaxBytes: 32000, NodeBytes: 2000, RelatedBytes: 300, RelatedLimit: 5, TopK: 10}, cfg.Context)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cc.yaml")
	content := `graph:
  backend: sqlite
  path: /tmp/graph.db
index:
  extensions: [".py"]
  workers: 3
resolver:
  source_roots: ["pkgs"]
  aliases:
    "@app": src/app
context:
  top_k: 4
watch:
  debounce: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Graph.Backend)
	assert.Equal(t, "/tmp/graph.db", cfg.Graph.Path)
	assert.True(t, cfg.Graph.FallbackToMemory)
	assert.Equal(t, []string{".py"}, cfg.Index.Extensions)
	assert.Equal(t, 3, cfg.Index.Workers)
	assert.Equal(t, []string{"pkgs"}, cfg.Resolver.SourceRoots)
	assert.Equal(t, map[string]string{"@app": "src/app"}, cfg.Resolver.Aliases)
	assert.Equal(t, 4, cfg.Context.TopK)
	assert.Equal(t, 32000, cfg.Context.MaxBytes)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Graph.Backend)
}

func TestLoadDiscoversWorkingDirectoryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codecontext.yaml"), []byte("graph:\n  backend: badger\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Graph.Backend)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CODECONTEXT_GRAPH_BACKEND", "badger")
	t.Setenv("CODECONTEXT_CONTEXT_MAX_BYTES", "1234")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Graph.Backend)
	assert.Equal(t, 1234, cfg.Context.MaxBytes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Graph.Backend = "neo4j" }},
		{"persistent without path", func(c *Config) { c.Graph.Backend = BackendBadger; c.Graph.Path = "" }},
		{"negative content", func(c *Config) { c.Graph.MaxContent = -1 }},
		{"negative workers", func(c *Config) { c.Index.Workers = -2 }},
		{"zero max bytes", func(c *Config) { c.Context.MaxBytes = 0 }},
		{"zero top k", func(c *Config) { c.Context.TopK = 0 }},
		{"negative related", func(c *Config) { c.Context.RelatedLimit = -1 }},
		{"negative cache", func(c *Config) { c.Resolver.CacheSize = -1 }},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }},
		{"empty alias target", func(c *Config) { c.Resolver.Aliases = map[string]string{"@x": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	cfg := Default()
	cfg.Graph.Backend = BackendSQLite
	cfg.Graph.Path = "graph.db"
	cfg.Context.TopK = 7

	require.NoError(t, WriteConfig(cfg, path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# CodeContext configuration\n")
	assert.Contains(t, string(data), "backend: sqlite")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Graph, loaded.Graph)
	assert.Equal(t, cfg.Context, loaded.Context)
	assert.Equal(t, cfg.Watch, loaded.Watch)

	assert.Error(t, WriteConfig(cfg, path, false))
	assert.NoError(t, WriteConfig(cfg, path, true))
}

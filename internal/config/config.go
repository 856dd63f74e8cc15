// Package config handles configuration loading and validation for CodeContext.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/indexer"
	"github.com/imyousuf/CodeContext/internal/relevance"
	"github.com/imyousuf/CodeContext/internal/resolver"
	"github.com/imyousuf/CodeContext/internal/watcher"
)

const (
	// DefaultConfigFile is the default configuration file name (without extension).
	DefaultConfigFile = ".codecontext"
	// DefaultConfigType is the default configuration file type.
	DefaultConfigType = "yaml"
	// EnvPrefix prefixes environment overrides, e.g. CODECONTEXT_GRAPH_BACKEND.
	EnvPrefix = "CODECONTEXT"
)

// Graph backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for CodeContext.
type Config struct {
	// Index controls which files an index pass visits.
	Index IndexConfig `mapstructure:"index" yaml:"index"`
	// Graph selects and tunes the storage backend.
	Graph GraphConfig `mapstructure:"graph" yaml:"graph"`
	// Resolver controls import resolution.
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	// Context bounds relevance results and assembled context.
	Context ContextConfig `mapstructure:"context" yaml:"context"`
	// Watch tunes watch mode.
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`
}

// IndexConfig holds file selection settings.
type IndexConfig struct {
	// Ignore lists path segments, path substrings and globs to skip.
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
	// Extensions limits indexing to these file extensions; empty means all known.
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	// Extensionless indexes files without an extension, detected by content.
	Extensionless bool `mapstructure:"extensionless" yaml:"extensionless"`
	// Gitignore applies the root .gitignore.
	Gitignore bool `mapstructure:"gitignore" yaml:"gitignore"`
	// Workers is the extraction pool size; 0 means one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// GraphConfig holds knowledge graph storage configuration.
type GraphConfig struct {
	// Backend is memory, badger or sqlite.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the badger directory or sqlite file for persistent backends.
	Path string `mapstructure:"path" yaml:"path"`
	// FallbackToMemory opens a memory store when the persistent one cannot be opened.
	FallbackToMemory bool `mapstructure:"fallback_to_memory" yaml:"fallback_to_memory"`
	// MaxContent is the per-node content storage ceiling in bytes.
	MaxContent int `mapstructure:"max_content" yaml:"max_content"`
}

// ResolverConfig holds import resolution settings.
type ResolverConfig struct {
	// Extensions are probed, in order, for extensionless import targets.
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	// Aliases map import prefixes to root-relative directories.
	Aliases map[string]string `mapstructure:"aliases" yaml:"aliases"`
	// SourceRoots are additional root-relative directories bare imports resolve against.
	SourceRoots []string `mapstructure:"source_roots" yaml:"source_roots"`
	// DependencyDirs hold installed packages, e.g. node_modules.
	DependencyDirs []string `mapstructure:"dependency_dirs" yaml:"dependency_dirs"`
	// CacheSize bounds the file probe cache.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// ContextConfig holds relevance and context assembly limits.
type ContextConfig struct {
	MaxBytes     int `mapstructure:"max_bytes" yaml:"max_bytes"`
	NodeBytes    int `mapstructure:"node_bytes" yaml:"node_bytes"`
	RelatedBytes int `mapstructure:"related_bytes" yaml:"related_bytes"`
	RelatedLimit int `mapstructure:"related_limit" yaml:"related_limit"`
	TopK         int `mapstructure:"top_k" yaml:"top_k"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// Debounce is the quiet period after the last change before re-indexing.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load loads configuration from file, environment variables, and defaults.
// path selects an explicit file; empty means .codecontext.yaml in the working
// directory, which may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigFile)
		v.SetConfigType(DefaultConfigType)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case BackendMemory:
	case BackendBadger, BackendSQLite:
		if c.Graph.Path == "" {
			return fmt.Errorf("%w: graph.path is required for the %s backend", ErrInvalid, c.Graph.Backend)
		}
	default:
		return fmt.Errorf("%w: graph.backend must be one of memory, badger, sqlite; got %q", ErrInvalid, c.Graph.Backend)
	}
	if c.Graph.MaxContent < 0 {
		return fmt.Errorf("%w: graph.max_content must not be negative", ErrInvalid)
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("%w: index.workers must not be negative", ErrInvalid)
	}
	if c.Resolver.CacheSize < 0 {
		return fmt.Errorf("%w: resolver.cache_size must not be negative", ErrInvalid)
	}

	limits := []struct {
		key string
		val int
	}{
		{"context.max_bytes", c.Context.MaxBytes},
		{"context.node_bytes", c.Context.NodeBytes},
		{"context.related_bytes", c.Context.RelatedBytes},
		{"context.top_k", c.Context.TopK},
	}
	for _, l := range limits {
		if l.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, l.key, l.val)
		}
	}
	if c.Context.RelatedLimit < 0 {
		return fmt.Errorf("%w: context.related_limit must not be negative", ErrInvalid)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: watch.debounce must not be negative", ErrInvalid)
	}
	for prefix, target := range c.Resolver.Aliases {
		if prefix == "" || target == "" {
			return fmt.Errorf("%w: resolver alias %q -> %q must have both sides", ErrInvalid, prefix, target)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("index.ignore", indexer.DefaultIgnorePatterns)
	v.SetDefault("index.extensions", []string{})
	v.SetDefault("index.extensionless", false)
	v.SetDefault("index.gitignore", true)
	v.SetDefault("index.workers", runtime.NumCPU())

	v.SetDefault("graph.backend", BackendMemory)
	v.SetDefault("graph.path", ".codecontext/graph")
	v.SetDefault("graph.fallback_to_memory", true)
	v.SetDefault("graph.max_content", graph.DefaultMaxContent)

	v.SetDefault("resolver.extensions", resolver.DefaultExtensions)
	v.SetDefault("resolver.aliases", map[string]string{})
	v.SetDefault("resolver.source_roots", resolver.DefaultSourceRoots)
	v.SetDefault("resolver.dependency_dirs", resolver.DefaultDependencyDirs)
	v.SetDefault("resolver.cache_size", resolver.DefaultCacheSize)

	ctx := relevance.DefaultOptions()
	v.SetDefault("context.max_bytes", ctx.MaxBytes)
	v.SetDefault("context.node_bytes", ctx.NodeBytes)
	v.SetDefault("context.related_bytes", ctx.RelatedBytes)
	v.SetDefault("context.related_limit", ctx.RelatedLimit)
	v.SetDefault("context.top_k", ctx.TopK)

	v.SetDefault("watch.debounce", watcher.DefaultDebounce)
}

// Package cli implements the command-line interface for CodeContext.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/imyousuf/CodeContext/internal/config"
	"github.com/imyousuf/CodeContext/internal/engine"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	cfgFile string
	verbose bool
	backend string
	dbPath  string
	stderr  io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{stderr: os.Stderr}

	cmd := &cobra.Command{
		Use:   "codecontext",
		Short: "CodeContext - code knowledge graph and LLM context builder",
		Long: `CodeContext indexes a source tree into a knowledge graph of files,
definitions, imports and calls, and assembles byte-budgeted context for
language model prompts.

Commands:
  index      Index a directory into the graph
  stats      Show graph counts
  context    Build prompt context for a query
  importers  List files importing a file
  usages     List files importing a symbol or file
  export     Write the graph as JSON lines
  watch      Re-index on file changes
  languages  List recognized languages
  config     Show or initialize configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default: .codecontext.yaml)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&g.backend, "backend", "", "graph backend: memory, badger or sqlite")
	cmd.PersistentFlags().StringVar(&g.dbPath, "db-path", "", "path for a persistent graph backend")

	cmd.AddCommand(newIndexCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newContextCmd(g))
	cmd.AddCommand(newImportersCmd(g))
	cmd.AddCommand(newUsagesCmd(g))
	cmd.AddCommand(newExportCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newLanguagesCmd())
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the configuration and applies flag overrides.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.backend != "" {
		cfg.Graph.Backend = g.backend
	}
	if g.dbPath != "" {
		cfg.Graph.Path = g.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *globalFlags) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(g.stderr, &slog.HandlerOptions{Level: level}))
}

func (g *globalFlags) openEngine() (*engine.Engine, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	e, err := engine.Open(cfg, engine.WithLogger(g.logger()))
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return e, nil
}

// ensureIndexed indexes q.root unless the graph already holds an index, which
// is only the case for a persistent backend reopened after an earlier run.
// An explicit --root naming another directory than the stored index
// replaces it.
func (q *queryFlags) ensureIndexed(cmd *cobra.Command, e *engine.Engine) error {
	if e.IsIndexed() && !q.reindex && !q.rootMoved(cmd, e) {
		return nil
	}
	_, _, err := e.Index(cmd.Context(), q.root)
	return err
}

func (q *queryFlags) rootMoved(cmd *cobra.Command, e *engine.Engine) bool {
	if !cmd.Flags().Changed("root") {
		return false
	}
	abs, err := filepath.Abs(q.root)
	if err != nil {
		return true
	}
	return abs != e.Root()
}

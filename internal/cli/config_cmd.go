package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imyousuf/CodeContext/internal/config"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize configuration",
	}

	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigInitCmd(g))
	return cmd
}

func newConfigShowCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == formatYAML {
				return writeYAML(out, cfg)
			}
			renderConfig(out, cfg)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatText, "output format: text or yaml")
	return cmd
}

func renderConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out)
	printTitle(out, "CodeContext Configuration")
	printTitle(out, strings.Repeat("=", 25))
	fmt.Fprintln(out)

	printSection(out, "Index")
	printKV(out, "Workers", cfg.Index.Workers)
	printKV(out, "Gitignore", boolYesNo(cfg.Index.Gitignore))
	printKV(out, "Extensionless", boolYesNo(cfg.Index.Extensionless))
	printKV(out, "Extensions", listOrAll(cfg.Index.Extensions))
	printKV(out, "Ignore", strings.Join(cfg.Index.Ignore, ", "))
	fmt.Fprintln(out)

	printSection(out, "Graph Storage")
	printKV(out, "Backend", cfg.Graph.Backend)
	if cfg.Graph.Backend != config.BackendMemory {
		printKV(out, "Path", cfg.Graph.Path)
	}
	printKV(out, "Memory fallback", boolYesNo(cfg.Graph.FallbackToMemory))
	printKV(out, "Max content", cfg.Graph.MaxContent)
	fmt.Fprintln(out)

	printSection(out, "Resolver")
	printKV(out, "Extensions", strings.Join(cfg.Resolver.Extensions, ", "))
	printKV(out, "Source roots", strings.Join(cfg.Resolver.SourceRoots, ", "))
	printKV(out, "Dependency dirs", strings.Join(cfg.Resolver.DependencyDirs, ", "))
	printKV(out, "Cache size", cfg.Resolver.CacheSize)
	prefixes := make([]string, 0, len(cfg.Resolver.Aliases))
	for p := range cfg.Resolver.Aliases {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		printKV(out, "Alias "+p, cfg.Resolver.Aliases[p])
	}
	fmt.Fprintln(out)

	printSection(out, "Context")
	printKV(out, "Max bytes", cfg.Context.MaxBytes)
	printKV(out, "Node bytes", cfg.Context.NodeBytes)
	printKV(out, "Related bytes", cfg.Context.RelatedBytes)
	printKV(out, "Related limit", cfg.Context.RelatedLimit)
	printKV(out, "Top K", cfg.Context.TopK)
	fmt.Fprintln(out)

	printSection(out, "Watch")
	printKV(out, "Debounce", cfg.Watch.Debounce)
	fmt.Fprintln(out)
}

func listOrAll(items []string) string {
	if len(items) == 0 {
		return "(all known)"
	}
	return strings.Join(items, ", ")
}

func newConfigInitCmd(g *globalFlags) *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if g.backend != "" {
				cfg.Graph.Backend = g.backend
			}
			if g.dbPath != "" {
				cfg.Graph.Path = g.dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.WriteConfig(cfg, path, force); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", config.DefaultConfigFile+"."+config.DefaultConfigType, "file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/CodeContext/internal/indexer"
)

// queryFlags are shared by the commands that read the graph.
type queryFlags struct {
	root    string
	reindex bool
	format  string
}

func (q *queryFlags) register(cmd *cobra.Command, withFormat bool) {
	cmd.Flags().StringVar(&q.root, "root", ".", "directory to index; a stored index of another directory is replaced")
	cmd.Flags().BoolVar(&q.reindex, "reindex", false, "re-index root even if the graph already holds an index")
	if withFormat {
		cmd.Flags().StringVar(&q.format, "format", formatText, "output format: text or yaml")
	}
}

type indexReport struct {
	Root  string             `yaml:"root"`
	Nodes int                `yaml:"nodes"`
	Stats indexer.IndexStats `yaml:"stats"`
}

func newIndexCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "index [root]",
		Short: "Index a directory into the knowledge graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			e, err := g.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			nodes, stats, err := e.Index(cmd.Context(), root)
			if err != nil {
				return fmt.Errorf("index %s: %w", root, err)
			}

			out := cmd.OutOrStdout()
			if format == formatYAML {
				return writeYAML(out, indexReport{Root: e.Root(), Nodes: nodes, Stats: stats})
			}
			printTitle(out, "Index complete")
			printKV(out, "Root", e.Root())
			printKV(out, "Backend", e.Backend())
			printKV(out, "Nodes", nodes)
			printKV(out, "Files seen", stats.FilesSeen)
			printKV(out, "Files indexed", stats.FilesIndexed)
			printKV(out, "Fallback files", stats.FallbackFiles)
			printKV(out, "Empty files", stats.EmptyFiles)
			printKV(out, "Unsupported", stats.Unsupported)
			printKV(out, "Parse failures", stats.ParseFailures)
			printKV(out, "Write failures", stats.WriteFailures)
			printKV(out, "Calls linked", stats.CallsLinked)
			printKV(out, "Calls unresolved", stats.CallsUnresolved)
			printKV(out, "Duration", stats.Duration.Round(time.Millisecond))
			if len(stats.Errors) > 0 {
				printSection(out, "Errors")
				for _, msg := range stats.Errors {
					fmt.Fprintf(out, "    %s\n", msg)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatText, "output format: text or yaml")
	return cmd
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	q := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge graph counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(q.format); err != nil {
				return err
			}
			e, err := g.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := q.ensureIndexed(cmd, e); err != nil {
				return err
			}

			st, err := e.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			out := cmd.OutOrStdout()
			if q.format == formatYAML {
				return writeYAML(out, st)
			}
			printTitle(out, "Knowledge Graph Status")
			printKV(out, "Nodes", st.Nodes)
			printKV(out, "Edges", st.Edges)
			printKV(out, "Files", st.Files)
			printKV(out, "Functions", st.Functions)
			printKV(out, "Classes", st.Classes)
			printKV(out, "Imports", st.Imports)
			printKV(out, "Exports", st.Exports)
			return nil
		},
	}

	q.register(cmd, true)
	return cmd
}

func newContextCmd(g *globalFlags) *cobra.Command {
	q := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Assemble prompt context for a free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := q.ensureIndexed(cmd, e); err != nil {
				return err
			}

			text, err := e.GetContext(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("build context: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			if !strings.HasSuffix(text, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	q.register(cmd, false)
	return cmd
}

func newImportersCmd(g *globalFlags) *cobra.Command {
	q := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "importers <file>",
		Short: "List the files that import a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(q.format); err != nil {
				return err
			}
			e, err := g.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := q.ensureIndexed(cmd, e); err != nil {
				return err
			}

			files, err := e.FindImportersOf(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("find importers: %w", err)
			}
			out := cmd.OutOrStdout()
			if q.format == formatYAML {
				return writeYAML(out, files)
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "No importers found.")
				return nil
			}
			for _, f := range files {
				fmt.Fprintln(out, f)
			}
			return nil
		},
	}

	q.register(cmd, true)
	return cmd
}

func newUsagesCmd(g *globalFlags) *cobra.Command {
	q := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "usages <symbol|file>",
		Short: "List the files that import a symbol or file and the name they bind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(q.format); err != nil {
				return err
			}
			e, err := g.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := q.ensureIndexed(cmd, e); err != nil {
				return err
			}

			usages, err := e.FindUsages(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("find usages: %w", err)
			}
			out := cmd.OutOrStdout()
			if q.format == formatYAML {
				return writeYAML(out, usages)
			}
			if len(usages) == 0 {
				fmt.Fprintln(out, "No usages found.")
				return nil
			}
			fmt.Fprintf(out, "%-40s  %s\n", "File", "Imported as")
			fmt.Fprintf(out, "%-40s  %s\n", strings.Repeat("-", 40), strings.Repeat("-", 11))
			for _, u := range usages {
				fmt.Fprintf(out, "%-40s  %s\n", u.File, u.ImportedAs)
			}
			return nil
		},
	}

	q.register(cmd, true)
	return cmd
}

func newExportCmd(g *globalFlags) *cobra.Command {
	q := &queryFlags{}
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every node and edge as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := q.ensureIndexed(cmd, e); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return e.Export(cmd.Context(), w)
		},
	}

	q.register(cmd, false)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

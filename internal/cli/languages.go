package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/imyousuf/CodeContext/internal/engine"
)

func newLanguagesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List recognized languages and their file extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			langs := engine.Languages()
			out := cmd.OutOrStdout()
			if format == formatYAML {
				return writeYAML(out, langs)
			}

			printTitle(out, "Supported Languages")
			printSection(out, "Extractors")
			for _, l := range langs {
				if l.Extractor {
					printKV(out, l.Language, strings.Join(l.Extensions, " "))
				}
			}
			printSection(out, "Fallback only")
			for _, l := range langs {
				if !l.Extractor {
					printKV(out, l.Language, strings.Join(l.Extensions, " "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatText, "output format: text or yaml")
	return cmd
}

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"go.yaml.in/yaml/v3"
)

// Style definitions for text output.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	labelStyle = lipgloss.NewStyle().
			Faint(true).
			Width(20)
	valueStyle = lipgloss.NewStyle()
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatYAML = "yaml"
)

func checkFormat(f string) error {
	if f != formatText && f != formatYAML {
		return fmt.Errorf("unknown format %q (want text or yaml)", f)
	}
	return nil
}

func printTitle(out io.Writer, title string) {
	fmt.Fprintln(out, headerStyle.Render(title))
}

func printSection(out io.Writer, title string) {
	fmt.Fprintf(out, "  %s\n", headerStyle.Render(title))
}

func printKV(out io.Writer, label string, value any) {
	fmt.Fprintf(out, "    %s%s\n", labelStyle.Render(label+":"), valueStyle.Render(fmt.Sprint(value)))
}

func boolYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/config"
	"github.com/veildata/veil/internal/detect"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and validate detection pattern files",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the compiled pattern library",
	RunE:  patternsList,
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Schema-validate and compile a custom patterns file",
	Args:  cobra.ExactArgs(1),
	RunE:  patternsValidate,
}

func init() {
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsValidateCmd)
	rootCmd.AddCommand(patternsCmd)
}

func patternsList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	library, err := buildLibrary(cfg)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}
	renderPatternList(cmd.OutOrStdout(), library, cfg.PatternsFile)
	return nil
}

// renderPatternList writes the library index to w (testable).
func renderPatternList(w io.Writer, library *detect.Library, userFile string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tPATTERNS\tDENY\n")
	fmt.Fprintf(tw, "----\t--------\t----\n")
	for _, ct := range library.Types() {
		names := make([]string, 0, len(ct.Patterns))
		for _, p := range ct.Patterns {
			names = append(names, p.Name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", ct.Type, strings.Join(names, ", "), len(ct.Deny))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d types, %d patterns", len(library.Types()), library.PatternCount())
	if userFile != "" {
		fmt.Fprintf(w, " (built-ins + %s)", userFile)
	}
	fmt.Fprintln(w)
}

func patternsValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	pf, err := detect.ParsePatternFile(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	compiled, err := detect.CompileTypes(pf.Types)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	patternCount := 0
	for _, ct := range compiled {
		patternCount += len(ct.Patterns)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d types, %d patterns, schema valid\n",
		path, len(compiled), patternCount)
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/config"
	"github.com/veildata/veil/internal/detect"
)

var (
	scanFormat string
	scanLocal  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Detect PII in text without redacting",
	Long: `Scan runs detection only and prints every entity found, with its
position, confidence, and which detector reported it.

Text comes from the argument or, when omitted, from stdin:

  veil scan "Call John back at 555-123-4567"
  cat transcript.txt | veil scan --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFormat, "format", "table", "Output format: table or json")
	scanCmd.Flags().BoolVar(&scanLocal, "local", false, "Pattern library only, skip external detectors")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	ctx, span := tracer.Start(ctx, "scan")
	defer span.End()

	text, err := scanInput(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	library, err := buildLibrary(cfg)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}

	entities := detect.NewPatternDetector(library).Detect(ctx, text)
	if !scanLocal {
		entities = append(entities, detect.RunExternal(ctx, text, buildDetectors(ctx, cfg)...)...)
	}
	entities = detect.Reconcile(entities)

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		return renderScanJSON(out, entities)
	}
	renderScanTable(out, entities)
	return nil
}

// scanInput returns the argument text, or stdin when no argument is given.
func scanInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return "", fmt.Errorf("no input: pass text as an argument or pipe it on stdin")
	}
	return text, nil
}

func renderScanJSON(w io.Writer, entities []detect.Entity) error {
	if entities == nil {
		entities = []detect.Entity{}
	}
	result := struct {
		Entities []detect.Entity `json:"entities"`
		Count    int             `json:"count"`
	}{entities, len(entities)}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func renderScanTable(w io.Writer, entities []detect.Entity) {
	if len(entities) == 0 {
		fmt.Fprintln(w, "No PII detected.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tTEXT\tSPAN\tCONFIDENCE\tSOURCE\n")
	fmt.Fprintf(tw, "----\t----\t----\t----------\t------\n")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%.2f\t%s\n",
			e.Type, e.Text, e.Start, e.End, e.Confidence, e.Source)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d entities found\n", len(entities))
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/config"
	"github.com/veildata/veil/internal/record"
)

var (
	redactInput         string
	redactOutput        string
	redactStrategy      string
	redactFields        []string
	redactInPlace       bool
	redactDryRun        bool
	redactUseComprehend bool
	redactCEREndpoint   string
	redactUseLLM        bool
	redactStrict        bool
)

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Redact PII from JSON/JSONL record files",
	Long: `Redact scans the configured fields of every record in the input and
rewrites detected PII using the selected strategy. The input may be a
single file or a directory of .json/.jsonl files.

Every job is recorded in the signed audit trail. Examples:

  veil redact -i calls.json
  veil redact -i calls.json -o clean/calls.json --strategy mask
  veil redact -i inbox/ -o clean/ --use-comprehend
  veil redact -i calls.json --dry-run`,
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVarP(&redactInput, "input", "i", "", "Input file or directory (required)")
	redactCmd.Flags().StringVarP(&redactOutput, "output", "o", "", "Output file, or directory for batch runs (default: alongside input)")
	redactCmd.Flags().StringVar(&redactStrategy, "strategy", "", "Redaction strategy: placeholder, mask, remove, hash, partial")
	redactCmd.Flags().StringSliceVar(&redactFields, "fields", nil, "Record fields to scan (default from config)")
	redactCmd.Flags().BoolVar(&redactInPlace, "in-place", false, "Rewrite the input file itself, keeping a .backup copy")
	redactCmd.Flags().BoolVar(&redactDryRun, "dry-run", false, "Detect and report without writing output")
	redactCmd.Flags().BoolVar(&redactUseComprehend, "use-comprehend", false, "Add AWS Comprehend detection")
	redactCmd.Flags().StringVar(&redactCEREndpoint, "cer-endpoint", "", "Custom entity recognizer endpoint ARN (implies --use-comprehend)")
	redactCmd.Flags().BoolVar(&redactUseLLM, "use-llm", false, "Add LLM detection (reads OPENAI_API_KEY)")
	redactCmd.Flags().BoolVar(&redactStrict, "strict", false, "Exit non-zero on partial results, not just failures")
	_ = redactCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(redactCmd)
}

// applyDetectorFlags layers per-run detector flags over operator config.
func applyDetectorFlags(cfg *config.Config) {
	if redactUseComprehend {
		cfg.ComprehendEnabled = true
	}
	if redactCEREndpoint != "" {
		cfg.ComprehendEnabled = true
		cfg.CEREndpointARN = redactCEREndpoint
	}
	if redactUseLLM {
		cfg.LLMEnabled = true
	}
}

func runRedact(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()
	ctx, span := tracer.Start(ctx, "redact")
	defer span.End()

	if redactInPlace && (redactDryRun || redactOutput != "") {
		return fmt.Errorf("--in-place cannot be combined with --output or --dry-run")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyDetectorFlags(cfg)
	cfg.WarnIfDefaultKeys()

	store, err := openAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	orch, err := buildOrchestrator(ctx, cfg, redactStrategy, redactFields, store)
	if err != nil {
		return err
	}

	info, err := os.Stat(redactInput)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}

	out := cmd.OutOrStdout()
	var results []*record.JobResult
	if info.IsDir() {
		results, err = redactDir(ctx, orch)
	} else {
		results, err = redactFile(ctx, orch)
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		renderJobResult(out, r)
	}
	if len(results) > 1 {
		renderBatchFooter(out, results)
	}
	return batchStatus(results)
}

func redactFile(ctx context.Context, orch *record.Orchestrator) ([]*record.JobResult, error) {
	if redactInPlace {
		if err := orch.ValidateSetup(ctx, ""); err != nil {
			return nil, fmt.Errorf("setup validation: %w", err)
		}
		return []*record.JobResult{orch.ProcessFileInPlace(ctx, redactInput)}, nil
	}

	outPath := ""
	if !redactDryRun {
		outPath = redactOutput
		if outPath == "" {
			outPath = filepath.Join(filepath.Dir(redactInput), record.RedactedName(filepath.Base(redactInput)))
		}
	}
	outDir := ""
	if outPath != "" {
		outDir = filepath.Dir(outPath)
	}
	if err := orch.ValidateSetup(ctx, outDir); err != nil {
		return nil, fmt.Errorf("setup validation: %w", err)
	}
	return []*record.JobResult{orch.ProcessFile(ctx, redactInput, outPath)}, nil
}

func redactDir(ctx context.Context, orch *record.Orchestrator) ([]*record.JobResult, error) {
	inputs, err := collectRecordFiles(redactInput)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no .json or .jsonl files in %s", redactInput)
	}

	outDir := ""
	if !redactDryRun {
		outDir = redactOutput
		if outDir == "" {
			outDir = redactInput
		}
	}
	if err := orch.ValidateSetup(ctx, outDir); err != nil {
		return nil, fmt.Errorf("setup validation: %w", err)
	}
	return orch.ProcessFiles(ctx, inputs, outDir), nil
}

// collectRecordFiles lists record files directly in dir, sorted by name.
// Prior outputs (*_redacted.json) are skipped so a rerun over the same
// directory does not redact its own output.
func collectRecordFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}
	var inputs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".json" && ext != ".jsonl" {
			continue
		}
		if strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), "_redacted") {
			continue
		}
		inputs = append(inputs, filepath.Join(dir, name))
	}
	sort.Strings(inputs)
	return inputs, nil
}

// renderJobResult writes one job summary block to w (testable).
func renderJobResult(w io.Writer, r *record.JobResult) {
	mark := "✓"
	switch r.Status {
	case record.StatusPartial:
		mark = "⚠"
	case record.StatusFailed:
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s  %s\n", mark, r.Status, r.InputPath)
	if r.OutputPath != "" {
		fmt.Fprintf(w, "  output:     %s\n", r.OutputPath)
	} else {
		fmt.Fprintf(w, "  output:     (dry run, nothing written)\n")
	}
	fmt.Fprintf(w, "  records:    %d (%d changed, %d failed)\n", r.Records, r.RecordsChanged, r.RecordsFailed)
	fmt.Fprintf(w, "  redactions: %d\n", r.Redactions)
	if r.FieldsFailed > 0 {
		fmt.Fprintf(w, "  failed fields: %d\n", r.FieldsFailed)
	}
	fmt.Fprintf(w, "  strategy:   %s via %s\n", r.Strategy, strings.Join(r.Detectors, ", "))
	fmt.Fprintf(w, "  job:        %s (%dms)\n", r.JobID, r.DurationMS)
	renderNotes(w, "warning", r.Warnings)
	renderNotes(w, "error", r.Errors)
}

// renderNotes prints warnings or errors, capped unless --verbose.
func renderNotes(w io.Writer, kind string, notes []string) {
	const limit = 5
	shown := notes
	if !verbose && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, n := range shown {
		fmt.Fprintf(w, "  %s: %s\n", kind, n)
	}
	if hidden := len(notes) - len(shown); hidden > 0 {
		fmt.Fprintf(w, "  ... %d more %ss (use -v to show all)\n", hidden, kind)
	}
}

func renderBatchFooter(w io.Writer, results []*record.JobResult) {
	var ok, partial, failed, redactions int
	for _, r := range results {
		redactions += r.Redactions
		switch r.Status {
		case record.StatusSuccess:
			ok++
		case record.StatusPartial:
			partial++
		default:
			failed++
		}
	}
	fmt.Fprintf(w, "\n%d files: %d success, %d partial, %d failed (%d redactions)\n",
		len(results), ok, partial, failed, redactions)
}

// batchStatus maps job statuses to the process exit decision. Failures
// always fail the run; partials only under --strict.
func batchStatus(results []*record.JobResult) error {
	var partial, failed int
	for _, r := range results {
		switch r.Status {
		case record.StatusPartial:
			partial++
		case record.StatusFailed:
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	if redactStrict && partial > 0 {
		return fmt.Errorf("%d of %d files partial (strict mode)", partial, len(results))
	}
	return nil
}

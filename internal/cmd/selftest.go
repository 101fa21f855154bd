package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/detect"
	"github.com/veildata/veil/internal/record"
	"github.com/veildata/veil/internal/redact"
)

// selftestRecords are the sample records exercised by veil test.
func selftestRecords() []map[string]any {
	return []map[string]any{
		{"verbatim_id": 1, "sentence": "Customer John Smith called from john.smith@email.com", "type": "client", "call_id": 12345},
		{"verbatim_id": 2, "sentence": "Please call me back at 555-123-4567 or (555) 987-6543", "type": "agent", "call_id": 12345},
		{"verbatim_id": 3, "sentence": "My address is 123 Main Street, Springfield, IL 62701", "type": "client", "call_id": 12345},
		{"verbatim_id": 4, "sentence": "Thank you for your help today", "type": "client", "call_id": 12345},
	}
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the built-in self-check through the full pipeline",
	Long: `Test writes a handful of sample records to a temporary file, runs them
through detection and placeholder redaction, and prints the before/after
sentences. It needs no configuration, network access, or audit store.`,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runSelftest(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	ctx, span := tracer.Start(ctx, "selftest")
	defer span.End()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running self-check with sample records...")

	dir, err := os.MkdirTemp("", "veil-selftest-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	samples := selftestRecords()
	inPath := filepath.Join(dir, "sample.json")
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding samples: %w", err)
	}
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return fmt.Errorf("writing sample file: %w", err)
	}

	orch, err := record.NewOrchestrator(detect.MustNewLibrary(), record.OrchestratorConfig{
		Strategy: redact.StrategyPlaceholder,
	})
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	outPath := filepath.Join(dir, record.RedactedName("sample.json"))
	result := orch.ProcessFile(ctx, inPath, outPath)
	renderJobResult(out, result)

	if result.Status == record.StatusFailed {
		return fmt.Errorf("self-check failed")
	}

	redacted, err := readSelftestOutput(outPath)
	if err != nil {
		return fmt.Errorf("reading redacted output: %w", err)
	}
	fmt.Fprintln(out, "\nSample output:")
	for i, rec := range redacted {
		if i >= 2 {
			break
		}
		fmt.Fprintf(out, "  original: %v\n", samples[i]["sentence"])
		fmt.Fprintf(out, "  redacted: %v\n\n", rec["sentence"])
	}
	fmt.Fprintln(out, "Self-check passed.")
	return nil
}

func readSelftestOutput(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []map[string]any
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

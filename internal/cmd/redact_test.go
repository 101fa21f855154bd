package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veildata/veil/internal/config"
	"github.com/veildata/veil/internal/record"
	"github.com/veildata/veil/internal/testutil"
)

// resetRedactFlags clears the package-level flag state so executions in
// different tests do not leak values into each other.
func resetRedactFlags() {
	redactInput = ""
	redactOutput = ""
	redactStrategy = ""
	redactFields = nil
	redactInPlace = false
	redactDryRun = false
	redactUseComprehend = false
	redactCEREndpoint = ""
	redactUseLLM = false
	redactStrict = false
}

func TestRedactCmd_Flags(t *testing.T) {
	flags := []string{
		"input", "output", "strategy", "fields", "in-place", "dry-run",
		"use-comprehend", "cer-endpoint", "use-llm", "strict",
	}
	for _, name := range flags {
		flag := redactCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "redact flag %q should be registered", name)
	}
}

func TestCollectRecordFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.jsonl", "notes.txt", "b_redacted.json", "upload.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "done"), 0o750))

	inputs, err := collectRecordFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jsonl"),
		filepath.Join(dir, "b.json"),
	}, inputs)
}

func TestRenderJobResult_Success(t *testing.T) {
	var buf bytes.Buffer
	renderJobResult(&buf, &record.JobResult{
		JobID:          "job-1",
		InputPath:      "in.json",
		OutputPath:     "out.json",
		Status:         record.StatusSuccess,
		Records:        3,
		RecordsChanged: 2,
		Redactions:     5,
		Strategy:       "placeholder",
		Detectors:      []string{"regex", "comprehend"},
		DurationMS:     12,
	})
	out := buf.String()
	assert.Contains(t, out, "✓ success  in.json")
	assert.Contains(t, out, "output:     out.json")
	assert.Contains(t, out, "records:    3 (2 changed, 0 failed)")
	assert.Contains(t, out, "redactions: 5")
	assert.Contains(t, out, "placeholder via regex, comprehend")
	assert.Contains(t, out, "job-1")
}

func TestRenderJobResult_DryRun(t *testing.T) {
	var buf bytes.Buffer
	renderJobResult(&buf, &record.JobResult{
		JobID:     "job-2",
		InputPath: "in.json",
		Status:    record.StatusSuccess,
		Strategy:  "mask",
		Detectors: []string{"regex"},
	})
	assert.Contains(t, buf.String(), "(dry run, nothing written)")
}

func TestRenderJobResult_FailedShowsErrors(t *testing.T) {
	var buf bytes.Buffer
	renderJobResult(&buf, &record.JobResult{
		JobID:     "job-3",
		InputPath: "broken.json",
		Status:    record.StatusFailed,
		Strategy:  "placeholder",
		Detectors: []string{"regex"},
		Errors:    []string{"invalid JSON: unexpected end of input"},
	})
	out := buf.String()
	assert.Contains(t, out, "✗ failed")
	assert.Contains(t, out, "error: invalid JSON")
}

func TestRenderNotes_CapsWithoutVerbose(t *testing.T) {
	old := verbose
	verbose = false
	t.Cleanup(func() { verbose = old })

	notes := []string{"w1", "w2", "w3", "w4", "w5", "w6", "w7"}
	var buf bytes.Buffer
	renderNotes(&buf, "warning", notes)
	out := buf.String()
	assert.Contains(t, out, "warning: w5")
	assert.NotContains(t, out, "warning: w6")
	assert.Contains(t, out, "... 2 more warnings")

	buf.Reset()
	verbose = true
	renderNotes(&buf, "warning", notes)
	assert.Contains(t, buf.String(), "warning: w7")
	assert.NotContains(t, buf.String(), "more warnings")
}

func TestBatchStatus(t *testing.T) {
	success := &record.JobResult{Status: record.StatusSuccess}
	partial := &record.JobResult{Status: record.StatusPartial}
	failed := &record.JobResult{Status: record.StatusFailed}

	old := redactStrict
	t.Cleanup(func() { redactStrict = old })

	redactStrict = false
	assert.NoError(t, batchStatus([]*record.JobResult{success, success}))
	assert.NoError(t, batchStatus([]*record.JobResult{success, partial}))
	err := batchStatus([]*record.JobResult{success, failed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")

	redactStrict = true
	err = batchStatus([]*record.JobResult{success, partial})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict")
}

func TestApplyDetectorFlags(t *testing.T) {
	t.Cleanup(resetRedactFlags)

	resetRedactFlags()
	redactCEREndpoint = "arn:aws:comprehend:eu-west-1:123:entity-recognizer-endpoint/x"
	cfg := &config.Config{}
	applyDetectorFlags(cfg)
	assert.True(t, cfg.ComprehendEnabled, "cer endpoint should imply comprehend")
	assert.Equal(t, redactCEREndpoint, cfg.CEREndpointARN)

	resetRedactFlags()
	redactUseLLM = true
	cfg = &config.Config{}
	applyDetectorFlags(cfg)
	assert.True(t, cfg.LLMEnabled)
	assert.False(t, cfg.ComprehendEnabled)
}

func TestRedactCmd_EndToEnd(t *testing.T) {
	resetRedactFlags()
	t.Cleanup(resetRedactFlags)

	dir := t.TempDir()
	t.Setenv("VEIL_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("VEIL_SIGNING_KEY", testutil.TestSigningKey)
	t.Setenv("VEIL_QUICKSTART", "1")

	in := filepath.Join(dir, "records.json")
	records := []map[string]any{
		{"verbatim_id": 1, "sentence": "Reach me at jane.doe@example.com please"},
		{"verbatim_id": 2, "sentence": "Nothing sensitive here"},
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, data, 0o600))

	out := filepath.Join(dir, "clean", "records.json")
	buf := new(bytes.Buffer)
	redactCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"redact", "-i", in, "-o", out, "--strategy", "placeholder"})
	require.NoError(t, rootCmd.Execute())

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(written), "[REDACTED_EMAIL]")
	assert.NotContains(t, string(written), "jane.doe@example.com")
	assert.Contains(t, buf.String(), "success")

	// The job landed in the audit trail.
	dbPath := filepath.Join(dir, "data", "audit.db")
	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "audit database should exist after a redact run")
}

func TestRedactCmd_DryRunWritesNothing(t *testing.T) {
	resetRedactFlags()
	t.Cleanup(resetRedactFlags)

	dir := t.TempDir()
	t.Setenv("VEIL_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("VEIL_SIGNING_KEY", testutil.TestSigningKey)
	t.Setenv("VEIL_QUICKSTART", "1")

	in := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(in, []byte(`[{"sentence": "mail bob@example.com"}]`), 0o600))

	buf := new(bytes.Buffer)
	redactCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"redact", "-i", in, "--dry-run"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, buf.String(), "(dry run, nothing written)")
	_, err := os.Stat(filepath.Join(dir, "records_redacted.json"))
	assert.True(t, os.IsNotExist(err), "dry run must not write an output file")
}

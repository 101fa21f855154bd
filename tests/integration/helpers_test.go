//go:build integration

package integration

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veildata/veil/internal/audit"
	"github.com/veildata/veil/internal/detect"
	"github.com/veildata/veil/internal/record"
	"github.com/veildata/veil/internal/testutil"
)

// SetupOrchestrator creates an orchestrator over library with a real audit
// store behind it, for integration tests. Pass detect.MustNewLibrary() for
// the built-in patterns.
func SetupOrchestrator(t *testing.T, library *detect.Library, cfg record.OrchestratorConfig) (*record.Orchestrator, *audit.Store) {
	t.Helper()

	store := testutil.NewTestAuditStore(t)
	cfg.Recorder = store

	orch, err := record.NewOrchestrator(library, cfg)
	require.NoError(t, err)
	return orch, store
}

// WriteRecords writes records as a JSON array file in dir and returns its path.
func WriteRecords(t *testing.T, dir, name string, records []map[string]any) string {
	return testutil.WriteRecordsFile(t, dir, name, records)
}

// ReadRecords loads a redacted output file back into memory.
func ReadRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

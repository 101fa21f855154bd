package testutil

import (
	"path/filepath"
	"testing"

	"github.com/veildata/veil/internal/audit"
)

// NewTestAuditStore creates an audit store in a temp dir, signed and sealed
// with the test keys, and registers t.Cleanup to close it.
func NewTestAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := audit.NewStore(filepath.Join(dir, "audit.db"), TestSigningKey, TestSealKey)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

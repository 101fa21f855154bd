//go:build e2e

package e2e

import (
	"regexp"
	"strings"
	"testing"
)

var jobIDRe = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func TestE2E_AuditListAndVerify(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, "records.json")

	_, stderr, code := RunVeil(t, dir, nil, "redact", "-i", "records.json", "--dry-run")
	if code != 0 {
		t.Fatalf("veil redact failed: %d\nstderr: %s", code, stderr)
	}

	stdout, stderr, code := RunVeil(t, dir, nil, "audit", "list", "--limit", "5")
	if code != 0 {
		t.Fatalf("veil audit list exited %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Jobs (showing 1)") {
		t.Errorf("expected one listed job, got: %s", stdout)
	}

	ids := jobIDRe.FindAllString(stdout, -1)
	if len(ids) == 0 {
		t.Fatalf("no job IDs in list output: %s", stdout)
	}
	verifyOut, stderr, code := RunVeil(t, dir, nil, "audit", "verify", ids[0])
	if code != 0 {
		t.Fatalf("veil audit verify exited %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(verifyOut, "signature VALID (HMAC-SHA256 intact)") {
		t.Errorf("expected VALID signature in verify output, got: %s", verifyOut)
	}
}

func TestE2E_AuditShowDetail(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, "records.json")

	stdout, _, code := RunVeil(t, dir, nil, "redact", "-i", "records.json", "--dry-run")
	if code != 0 {
		t.Fatalf("veil redact failed: %d", code)
	}
	ids := jobIDRe.FindAllString(stdout, -1)
	if len(ids) == 0 {
		t.Fatalf("no job ID in redact output: %s", stdout)
	}

	showOut, stderr, code := RunVeil(t, dir, nil, "audit", "show", ids[0])
	if code != 0 {
		t.Fatalf("veil audit show exited %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(showOut, `"input_path"`) {
		t.Errorf("expected input_path in show output, got: %s", showOut)
	}
	// The seal key is set, so the detail payload comes back too
	if !strings.Contains(showOut, `"detail"`) {
		t.Errorf("expected sealed detail in show output, got: %s", showOut)
	}
}

func TestE2E_AuditExport(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, "records.json")

	_, _, code := RunVeil(t, dir, nil, "redact", "-i", "records.json", "--dry-run")
	if code != 0 {
		t.Fatalf("veil redact failed: %d", code)
	}

	csvOut, stderr, code := RunVeil(t, dir, nil, "audit", "export", "--format", "csv")
	if code != 0 {
		t.Fatalf("veil audit export exited %d\nstderr: %s", code, stderr)
	}
	if !strings.HasPrefix(csvOut, "id,created_at,input_path") {
		t.Errorf("expected CSV header first, got: %s", csvOut)
	}

	jsonOut, stderr, code := RunVeil(t, dir, nil, "audit", "export", "--format", "json")
	if code != 0 {
		t.Fatalf("veil audit export --format json exited %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(jsonOut, `"strategy"`) {
		t.Errorf("expected summary fields in JSON export, got: %s", jsonOut)
	}
}

func TestE2E_AuditVerifyAll(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, "records.json")

	for i := 0; i < 2; i++ {
		if _, _, code := RunVeil(t, dir, nil, "redact", "-i", "records.json", "--dry-run"); code != 0 {
			t.Fatalf("veil redact run %d failed", i)
		}
	}

	stdout, stderr, code := RunVeil(t, dir, nil, "audit", "verify", "--all")
	if code != 0 {
		t.Fatalf("veil audit verify --all exited %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "2 jobs checked, 0 invalid") {
		t.Errorf("expected all signatures valid, got: %s", stdout)
	}
}

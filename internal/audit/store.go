// Package audit persists an HMAC-signed trail of redaction jobs.
//
// Every job run, clean or not, produces one signed row in SQLite.
// Summary columns stay queryable in the clear; the detail payload
// (the full result plus per-record redaction metadata, which quotes the
// original PII) is sealed with NaCl secretbox before it is stored.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	veilotel "github.com/veildata/veil/internal/otel"
	"github.com/veildata/veil/internal/record"
)

var tracer = veilotel.Tracer("github.com/veildata/veil/internal/audit")

// DBFileName is the audit database file under the data directory.
const DBFileName = "audit.db"

// ErrNotFound is returned by Get and Verify for unknown job ids.
var ErrNotFound = errors.New("audit job not found")

// sqliteTimeFormat keeps a fixed-width fraction so TEXT comparison in
// SQLite orders chronologically. RFC3339Nano would trim trailing zeros
// and break lexicographic ordering.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists signed job rows in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
	sealer *Sealer
}

// Summary is the signed, queryable projection of one job row. Its
// canonical JSON encoding is the signature input.
type Summary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path,omitempty"`
	Strategy   string    `json:"strategy"`
	Detectors  []string  `json:"detectors,omitempty"`
	Status     string    `json:"status"`
	Records    int       `json:"record_count"`
	Redactions int       `json:"redaction_count"`
	DurationMS int64     `json:"duration_ms"`
}

// Detail is the sealed payload behind a summary row.
type Detail struct {
	Result  *record.JobResult  `json:"result"`
	Records []*record.Metadata `json:"records,omitempty"`
}

// Job couples a summary with its unsealed detail, when a seal key is
// configured and the row carries one.
type Job struct {
	Summary
	Detail *Detail `json:"detail,omitempty"`
}

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	Status string
	From   time.Time
	To     time.Time
	Limit  int
}

// VerifyResult is one row's signature check.
type VerifyResult struct {
	ID    string `json:"id"`
	Valid bool   `json:"valid"`
}

// NewStore opens (creating as needed) the audit database. signingKey is
// required. sealKey is optional; without it detail payloads are not
// persisted and rows keep summary columns only.
func NewStore(dbPath, signingKey, sealKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, err
	}

	var sealer *Sealer
	if sealKey != "" {
		if sealer, err = NewSealer(sealKey); err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		input_path TEXT NOT NULL,
		output_path TEXT,
		strategy TEXT NOT NULL,
		detectors TEXT NOT NULL,
		status TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		redaction_count INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		detail TEXT,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Store{db: db, signer: signer, sealer: sealer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sealed reports whether detail payloads are persisted.
func (s *Store) Sealed() bool { return s.sealer != nil }

// RecordJob implements record.Recorder: it signs and inserts one row for
// a finished job.
func (s *Store) RecordJob(ctx context.Context, result *record.JobResult, detail []*record.Metadata) error {
	ctx, span := tracer.Start(ctx, "audit.record",
		trace.WithAttributes(
			attribute.String("veil.job_id", result.JobID),
			attribute.String("veil.status", result.Status),
		))
	defer span.End()

	sum := summaryFromResult(result)
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshaling audit summary: %w", err)
	}
	signature := s.signer.Sign(payload)

	detailCol := sql.NullString{}
	if s.sealer != nil {
		detailJSON, err := json.Marshal(Detail{Result: result, Records: compactMetadata(detail)})
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		sealed, err := s.sealer.Seal(detailJSON)
		if err != nil {
			return fmt.Errorf("sealing audit detail: %w", err)
		}
		detailCol = sql.NullString{String: sealed, Valid: true}
	}

	query := `INSERT INTO jobs (id, created_at, input_path, output_path, strategy, detectors, status,
	                            record_count, redaction_count, duration_ms, detail, signature)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		sum.ID, sum.CreatedAt.Format(sqliteTimeFormat), sum.InputPath, sum.OutputPath,
		sum.Strategy, strings.Join(sum.Detectors, ","), sum.Status,
		sum.Records, sum.Redactions, sum.DurationMS, detailCol, signature,
	)
	if err != nil {
		return fmt.Errorf("storing audit row: %w", err)
	}
	return nil
}

// Get retrieves one job. Detail is unsealed when the store has the key
// and the row carries a payload.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	ctx, span := tracer.Start(ctx, "audit.get",
		trace.WithAttributes(attribute.String("veil.job_id", id)))
	defer span.End()

	query := `SELECT id, created_at, input_path, output_path, strategy, detectors, status,
	                 record_count, redaction_count, duration_ms, detail
	          FROM jobs WHERE id = ?`

	var (
		sum       Summary
		createdAt string
		output    sql.NullString
		detectors string
		detailCol sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sum.ID, &createdAt, &sum.InputPath, &output, &sum.Strategy, &detectors,
		&sum.Status, &sum.Records, &sum.Redactions, &sum.DurationMS, &detailCol,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit job: %w", err)
	}

	if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing audit timestamp: %w", err)
	}
	sum.OutputPath = output.String
	sum.Detectors = splitDetectors(detectors)

	job := &Job{Summary: sum}
	if !detailCol.Valid {
		return job, nil
	}
	if s.sealer == nil {
		log.Warn().Str("job_id", id).Msg("audit detail present but no seal key configured, returning summary only")
		return job, nil
	}

	plaintext, err := s.sealer.Open(detailCol.String)
	if err != nil {
		return nil, fmt.Errorf("unsealing audit detail: %w", err)
	}
	var detail Detail
	if err := json.Unmarshal(plaintext, &detail); err != nil {
		return nil, fmt.Errorf("unmarshaling audit detail: %w", err)
	}
	job.Detail = &detail
	return job, nil
}

// List returns summary rows matching the filter, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Summary, error) {
	ctx, span := tracer.Start(ctx, "audit.list",
		trace.WithAttributes(attribute.String("veil.status_filter", f.Status)))
	defer span.End()

	query := `SELECT id, created_at, input_path, output_path, strategy, detectors, status,
	                 record_count, redaction_count, duration_ms
	          FROM jobs WHERE 1=1`
	args := []interface{}{}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.From.UTC().Format(sqliteTimeFormat))
	}
	if !f.To.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, f.To.UTC().Format(sqliteTimeFormat))
	}

	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit jobs: %w", err)
	}
	defer rows.Close()

	var results []Summary
	for rows.Next() {
		var (
			sum       Summary
			createdAt string
			output    sql.NullString
			detectors string
		)
		if err := rows.Scan(&sum.ID, &createdAt, &sum.InputPath, &output, &sum.Strategy,
			&detectors, &sum.Status, &sum.Records, &sum.Redactions, &sum.DurationMS); err != nil {
			continue
		}
		if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			continue
		}
		sum.OutputPath = output.String
		sum.Detectors = splitDetectors(detectors)
		results = append(results, sum)
	}

	span.SetAttributes(attribute.Int("veil.job_count", len(results)))
	return results, rows.Err()
}

// Count returns the number of stored jobs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting audit jobs: %w", err)
	}
	return n, nil
}

// Verify recomputes one row's signature from its stored columns.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "audit.verify",
		trace.WithAttributes(attribute.String("veil.job_id", id)))
	defer span.End()

	job, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	var signature string
	if err := s.db.QueryRowContext(ctx, `SELECT signature FROM jobs WHERE id = ?`, id).Scan(&signature); err != nil {
		return false, fmt.Errorf("querying audit signature: %w", err)
	}

	payload, err := json.Marshal(job.Summary)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}
	return s.signer.Verify(payload, signature), nil
}

// VerifyAll checks every row and returns one result per job, newest
// first.
func (s *Store) VerifyAll(ctx context.Context) ([]VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "audit.verify_all")
	defer span.End()

	summaries, err := s.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	results := make([]VerifyResult, 0, len(summaries))
	for _, sum := range summaries {
		ok, err := s.Verify(ctx, sum.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, VerifyResult{ID: sum.ID, Valid: ok})
	}

	span.SetAttributes(attribute.Int("veil.job_count", len(results)))
	return results, nil
}

// summaryFromResult projects a job result onto the signed row shape.
func summaryFromResult(r *record.JobResult) Summary {
	sum := Summary{
		ID:         r.JobID,
		CreatedAt:  r.StartedAt.UTC(),
		InputPath:  r.InputPath,
		OutputPath: r.OutputPath,
		Strategy:   r.Strategy,
		Status:     r.Status,
		Records:    r.Records,
		Redactions: r.Redactions,
		DurationMS: r.DurationMS,
	}
	// nil and empty must canonicalize the same way: column round-trips
	// turn an empty slice into nil.
	if len(r.Detectors) > 0 {
		sum.Detectors = append([]string(nil), r.Detectors...)
	}
	return sum
}

func splitDetectors(col string) []string {
	if col == "" {
		return nil
	}
	return strings.Split(col, ",")
}

// compactMetadata drops nil per-record entries so the sealed payload
// only carries records that were actually redacted.
func compactMetadata(detail []*record.Metadata) []*record.Metadata {
	var out []*record.Metadata
	for _, m := range detail {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

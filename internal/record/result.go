package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses. A job is partial when every record was reachable but some
// field, record, or verification check reported a problem; failed means
// the file itself could not be read, parsed, or written.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// JobResult is the outcome of one file run.
type JobResult struct {
	JobID          string    `json:"job_id"`
	InputPath      string    `json:"input_path"`
	OutputPath     string    `json:"output_path,omitempty"`
	Status         string    `json:"status"`
	Records        int       `json:"records"`
	RecordsChanged int       `json:"records_changed"`
	RecordsFailed  int       `json:"records_failed"`
	Redactions     int       `json:"redactions"`
	FieldsFailed   int       `json:"fields_failed"`
	Strategy       string    `json:"strategy"`
	Detectors      []string  `json:"detectors"`
	Warnings       []string  `json:"warnings,omitempty"`
	Errors         []string  `json:"errors,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	DurationMS     int64     `json:"duration_ms"`
}

// NewJobResult starts a result for one input file with a fresh job id.
func NewJobResult(inputPath string) *JobResult {
	return &JobResult{
		JobID:     uuid.NewString(),
		InputPath: inputPath,
		Status:    StatusSuccess,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the wall-clock duration.
func (r *JobResult) Finish() *JobResult {
	r.DurationMS = time.Since(r.StartedAt).Milliseconds()
	return r
}

// Fail marks the job failed with the given error and stamps the duration.
func (r *JobResult) Fail(err error) *JobResult {
	r.Status = StatusFailed
	r.Errors = append(r.Errors, err.Error())
	return r.Finish()
}

// FromStats folds file statistics into the result and settles the status:
// any failed record, failed field, or verification warning downgrades
// success to partial.
func (r *JobResult) FromStats(stats *FileStats) *JobResult {
	r.Records = stats.Records
	r.RecordsChanged = stats.RecordsChanged
	r.RecordsFailed = stats.RecordsFailed
	r.Redactions = stats.Redactions
	r.FieldsFailed = stats.FieldsFailed
	r.Warnings = append(r.Warnings, stats.Warnings...)
	r.Errors = append(r.Errors, stats.Errors...)
	if r.Status == StatusSuccess &&
		(stats.RecordsFailed > 0 || stats.FieldsFailed > 0 || len(stats.Warnings) > 0) {
		r.Status = StatusPartial
	}
	return r
}

// Summary is the one-line log form of the result.
func (r *JobResult) Summary() string {
	return fmt.Sprintf("%s: %d records, %d redacted, %d redactions, %d failed fields in %dms",
		r.Status, r.Records, r.RecordsChanged, r.Redactions, r.FieldsFailed, r.DurationMS)
}

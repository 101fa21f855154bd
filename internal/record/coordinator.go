// Package record applies the detection and redaction pipeline to whole
// records, files, and batch jobs.
//
// A record is a JSON object whose configured text fields (sentence,
// description, ...) get scanned and rewritten. Redacted records carry one
// aggregated _redaction_metadata block describing every change; untouched
// records pass through byte-identical.
package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veildata/veil/internal/detect"
	veilotel "github.com/veildata/veil/internal/otel"
	"github.com/veildata/veil/internal/redact"
)

var tracer = veilotel.Tracer("github.com/veildata/veil/internal/record")

// MetadataKey is the record key carrying the aggregated redaction metadata.
const MetadataKey = "_redaction_metadata"

// DefaultFields is the field list scanned when none is configured.
func DefaultFields() []string {
	return []string{"sentence", "description", "notes", "comments", "transcript"}
}

// Metadata is the aggregated redaction block attached to a changed record.
type Metadata struct {
	RedactedAt     string           `json:"redacted_at"`
	RedactionCount int              `json:"redaction_count"`
	StrategyUsed   string           `json:"strategy_used"`
	Redactions     []FieldRedaction `json:"redactions"`
}

// FieldRedaction is one audit entry tagged with the field it came from.
type FieldRedaction struct {
	FieldName string `json:"field_name"`
	redact.Entry
}

// FieldFailure names a field whose processing failed and why. The field
// keeps its original value.
type FieldFailure struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Outcome summarizes what Process did to one record.
type Outcome struct {
	Changed    bool
	Redactions int
	Failures   []FieldFailure
	Warnings   []string
	Metadata   *Metadata
}

// Failed reports whether any field failed to process.
func (o Outcome) Failed() bool { return len(o.Failures) > 0 }

// Coordinator runs detect, reconcile, and rewrite over the configured
// fields of a record. Not safe for concurrent use when the strategy keeps
// state (hash); give each worker its own Coordinator.
type Coordinator struct {
	detector  *detect.PatternDetector
	externals []detect.ExternalDetector
	rewriter  *redact.Rewriter
	fields    []string
	stripHTML bool
	verify    bool
	sanitizer *bluemonday.Policy
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFields replaces the default scanned field list. Empty leaves the
// default in place.
func WithFields(fields []string) Option {
	return func(c *Coordinator) {
		if len(fields) > 0 {
			c.fields = fields
		}
	}
}

// WithExternalDetectors adds external detectors whose entities merge with
// the pattern results.
func WithExternalDetectors(detectors ...detect.ExternalDetector) Option {
	return func(c *Coordinator) {
		c.externals = append(c.externals, detectors...)
	}
}

// WithStripHTML sanitizes field HTML (bluemonday strict policy) before
// detection; the sanitized text is what gets redacted and stored.
func WithStripHTML(enabled bool) Option {
	return func(c *Coordinator) {
		c.stripHTML = enabled
	}
}

// WithVerification re-checks each rewrite for residual PII and suspicious
// growth, surfacing findings as outcome warnings.
func WithVerification(enabled bool) Option {
	return func(c *Coordinator) {
		c.verify = enabled
	}
}

// NewCoordinator builds a coordinator around one detector and one strategy.
func NewCoordinator(detector *detect.PatternDetector, strategy redact.Strategy, opts ...Option) *Coordinator {
	c := &Coordinator{
		detector: detector,
		rewriter: redact.NewRewriter(strategy),
		fields:   DefaultFields(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stripHTML {
		c.sanitizer = bluemonday.StrictPolicy()
	}
	return c
}

// Fields returns the configured field list.
func (c *Coordinator) Fields() []string { return c.fields }

// Process scans and rewrites the configured fields of rec. The input map
// is never mutated; the returned map is a shallow copy with redacted field
// values and, when anything changed, the aggregated metadata block. A
// field that panics or fails keeps its original value and is reported in
// the outcome; remaining fields still process.
func (c *Coordinator) Process(ctx context.Context, rec map[string]any) (map[string]any, Outcome) {
	ctx, span := tracer.Start(ctx, "record.process")
	defer span.End()

	out := make(map[string]any, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}

	var outcome Outcome
	var redactions []FieldRedaction

	for _, field := range c.fields {
		raw, present := rec[field]
		if !present {
			continue
		}
		text, isString := raw.(string)
		if !isString || strings.TrimSpace(text) == "" {
			continue
		}

		res := c.processField(ctx, field, text)
		if res.err != nil {
			log.Error().Err(res.err).Str("field", field).Msg("field processing failed, keeping original value")
			outcome.Failures = append(outcome.Failures, FieldFailure{Field: field, Reason: res.err.Error()})
			continue
		}
		outcome.Warnings = append(outcome.Warnings, res.warnings...)
		if len(res.entries) == 0 {
			continue
		}
		out[field] = res.text
		for _, entry := range res.entries {
			redactions = append(redactions, FieldRedaction{FieldName: field, Entry: entry})
		}
	}

	if len(redactions) > 0 {
		meta := &Metadata{
			RedactedAt:     time.Now().UTC().Format(time.RFC3339),
			RedactionCount: len(redactions),
			StrategyUsed:   c.rewriter.Strategy().Name(),
			Redactions:     redactions,
		}
		out[MetadataKey] = meta
		outcome.Changed = true
		outcome.Redactions = len(redactions)
		outcome.Metadata = meta
	}

	span.SetAttributes(
		attribute.Int("veil.redaction_count", outcome.Redactions),
		attribute.Int("veil.fields_failed", len(outcome.Failures)),
	)
	return out, outcome
}

type fieldResult struct {
	text     string
	entries  []redact.Entry
	warnings []string
	err      error
}

func (c *Coordinator) processField(ctx context.Context, field, text string) (res fieldResult) {
	ctx, span := tracer.Start(ctx, "record.field")
	defer span.End()
	span.SetAttributes(attribute.String("veil.field", field))

	defer func() {
		if r := recover(); r != nil {
			res = fieldResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()

	work := text
	if c.stripHTML {
		work = c.sanitizer.Sanitize(work)
	}

	entities := c.detector.Detect(ctx, work)
	if len(c.externals) > 0 {
		entities = append(entities, detect.RunExternal(ctx, work, c.externals...)...)
	}
	entities = detect.Reconcile(entities)

	rw := c.rewriter.Rewrite(ctx, work, entities)

	var warnings []string
	if c.verify {
		v := redact.Validate(work, rw)
		for _, msg := range v.Errors {
			warnings = append(warnings, fmt.Sprintf("field %s: %s", field, msg))
		}
		for _, msg := range v.Warnings {
			warnings = append(warnings, fmt.Sprintf("field %s: %s", field, msg))
		}
	}

	return fieldResult{text: rw.Text, entries: rw.Entries, warnings: warnings}
}

package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veildata/veil/internal/detect"
	"github.com/veildata/veil/internal/redact"
)

// Recorder receives finished jobs, e.g. the audit store. Detail carries
// the per-record metadata blocks of every changed record.
type Recorder interface {
	RecordJob(ctx context.Context, result *JobResult, detail []*Metadata) error
}

// OrchestratorConfig holds the per-installation knobs for batch runs.
type OrchestratorConfig struct {
	Strategy  string
	Fields    []string
	Externals []detect.ExternalDetector
	StripHTML bool
	Verify    bool
	Recorder  Recorder
}

// Orchestrator runs whole files and batches. It builds a fresh coordinator
// (and so a fresh strategy instance) per job, which keeps hash token
// caches job-scoped and makes concurrent ProcessFile calls safe.
type Orchestrator struct {
	library *detect.Library
	cfg     OrchestratorConfig
}

// NewOrchestrator validates the setup enough to fail fast: the library
// must have patterns and the strategy name must resolve.
func NewOrchestrator(library *detect.Library, cfg OrchestratorConfig) (*Orchestrator, error) {
	if library == nil || library.PatternCount() == 0 {
		return nil, fmt.Errorf("pattern library is empty")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = redact.StrategyPlaceholder
	}
	if _, err := redact.ForName(cfg.Strategy); err != nil {
		return nil, err
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFields()
	}
	return &Orchestrator{library: library, cfg: cfg}, nil
}

// Strategy returns the configured strategy name.
func (o *Orchestrator) Strategy() string { return o.cfg.Strategy }

// DetectorNames lists the active detectors, pattern engine first.
func (o *Orchestrator) DetectorNames() []string {
	names := []string{"regex"}
	for _, d := range o.cfg.Externals {
		if d != nil {
			names = append(names, d.Name())
		}
	}
	return names
}

// ValidateSetup checks a run can start: patterns compiled, strategy
// resolves, externals report availability (warn only), and the output
// directory is writable when given.
func (o *Orchestrator) ValidateSetup(ctx context.Context, outDir string) error {
	if _, err := redact.ForName(o.cfg.Strategy); err != nil {
		return err
	}
	for _, d := range o.cfg.Externals {
		if d == nil {
			continue
		}
		if !d.Available() {
			log.Warn().Str("detector", d.Name()).Msg("external detector not available, pattern detection only")
		}
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("output directory: %w", err)
		}
		probe, err := os.CreateTemp(outDir, ".veil-probe-*")
		if err != nil {
			return fmt.Errorf("output directory not writable: %w", err)
		}
		probe.Close()
		os.Remove(probe.Name())
	}
	return nil
}

// ProcessFile redacts one file. An empty outPath is a dry run. The result
// is never nil; file-level failures come back as status failed.
func (o *Orchestrator) ProcessFile(ctx context.Context, inPath, outPath string) *JobResult {
	return o.run(ctx, inPath, outPath, false)
}

// ProcessFileInPlace redacts a file over itself, keeping a .backup copy.
func (o *Orchestrator) ProcessFileInPlace(ctx context.Context, path string) *JobResult {
	return o.run(ctx, path, path, true)
}

func (o *Orchestrator) run(ctx context.Context, inPath, outPath string, inPlace bool) *JobResult {
	ctx, span := tracer.Start(ctx, "record.job")
	defer span.End()

	result := NewJobResult(inPath)
	result.OutputPath = outPath
	result.Strategy = o.cfg.Strategy
	result.Detectors = o.DetectorNames()

	span.SetAttributes(
		attribute.String("veil.job_id", result.JobID),
		attribute.String("veil.strategy", result.Strategy),
	)
	logger := log.With().Str("job_id", result.JobID).Str("input", inPath).Logger()

	coord, err := o.newCoordinator()
	if err != nil {
		logger.Error().Err(err).Msg("job setup failed")
		return o.record(ctx, result.Fail(err), nil)
	}

	logger.Info().Str("strategy", result.Strategy).Msg("processing file")

	fp := NewFileProcessor(coord)
	var stats *FileStats
	if inPlace {
		stats, err = fp.ProcessInPlace(ctx, inPath)
	} else {
		stats, err = fp.ProcessFile(ctx, inPath, outPath)
	}
	if err != nil {
		logger.Error().Err(err).Msg("file processing failed")
		return o.record(ctx, result.Fail(err), nil)
	}

	result.FromStats(stats).Finish()
	logger.Info().
		Str("status", result.Status).
		Int("records", result.Records).
		Int("redactions", result.Redactions).
		Int64("duration_ms", result.DurationMS).
		Msg("file processed")
	return o.record(ctx, result, stats.Metadata)
}

// ProcessFiles redacts many inputs, continuing past per-file failures.
// Outputs land in outDir under the input's RedactedName; an empty outDir
// makes every file a dry run.
func (o *Orchestrator) ProcessFiles(ctx context.Context, inputs []string, outDir string) []*JobResult {
	results := make([]*JobResult, 0, len(inputs))
	for _, in := range inputs {
		out := ""
		if outDir != "" {
			out = filepath.Join(outDir, RedactedName(filepath.Base(in)))
		}
		results = append(results, o.ProcessFile(ctx, in, out))
	}

	var ok, partial, failed int
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			ok++
		case StatusPartial:
			partial++
		default:
			failed++
		}
	}
	log.Info().
		Int("files", len(results)).
		Int("success", ok).
		Int("partial", partial).
		Int("failed", failed).
		Msg("batch complete")
	return results
}

func (o *Orchestrator) newCoordinator() (*Coordinator, error) {
	strategy, err := redact.ForName(o.cfg.Strategy)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithFields(o.cfg.Fields),
		WithStripHTML(o.cfg.StripHTML),
		WithVerification(o.cfg.Verify),
	}
	if len(o.cfg.Externals) > 0 {
		opts = append(opts, WithExternalDetectors(o.cfg.Externals...))
	}
	return NewCoordinator(detect.NewPatternDetector(o.library), strategy, opts...), nil
}

func (o *Orchestrator) record(ctx context.Context, result *JobResult, detail []*Metadata) *JobResult {
	if o.cfg.Recorder == nil {
		return result
	}
	if err := o.cfg.Recorder.RecordJob(ctx, result, detail); err != nil {
		log.Warn().Err(err).Str("job_id", result.JobID).Msg("audit recording failed")
	}
	return result
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/veildata/veil/internal/audit"
	"github.com/veildata/veil/internal/comprehend"
	"github.com/veildata/veil/internal/config"
	"github.com/veildata/veil/internal/detect"
	"github.com/veildata/veil/internal/llm"
	"github.com/veildata/veil/internal/record"
)

// buildLibrary compiles the pattern library, layering the configured user
// pattern file over the built-ins when one is set.
func buildLibrary(cfg *config.Config) (*detect.Library, error) {
	if cfg.PatternsFile != "" {
		return detect.NewLibrary(detect.WithPatternFile(cfg.PatternsFile))
	}
	return detect.NewLibrary()
}

// buildDetectors assembles the configured external detectors. A detector
// whose client fails to initialize is still returned and reports
// unavailable; setup validation and the health endpoint surface that.
func buildDetectors(ctx context.Context, cfg *config.Config) []detect.ExternalDetector {
	var detectors []detect.ExternalDetector
	if cfg.ComprehendEnabled {
		detectors = append(detectors, comprehend.NewDetector(ctx, cfg.AWSRegion))
		if cfg.CEREndpointARN != "" {
			detectors = append(detectors, comprehend.NewCERDetector(ctx, cfg.AWSRegion, cfg.CEREndpointARN))
		}
	}
	if cfg.LLMEnabled {
		detectors = append(detectors, llm.NewDetector(llm.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   cfg.LLMModel,
			BaseURL: cfg.LLMBaseURL,
		}))
	}
	return detectors
}

// openAuditStore opens the audit database under the data directory,
// creating both as needed.
func openAuditStore(cfg *config.Config) (*audit.Store, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey, cfg.AuditKey)
}

// buildOrchestrator wires a batch orchestrator from operator config plus
// per-run overrides. Empty strategy or fields fall back to the config.
func buildOrchestrator(ctx context.Context, cfg *config.Config, strategy string, fields []string, recorder record.Recorder) (*record.Orchestrator, error) {
	library, err := buildLibrary(cfg)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}
	if strategy == "" {
		strategy = cfg.Strategy
	}
	if len(fields) == 0 {
		fields = cfg.Fields
	}
	return record.NewOrchestrator(library, record.OrchestratorConfig{
		Strategy:  strategy,
		Fields:    fields,
		Externals: buildDetectors(ctx, cfg),
		StripHTML: cfg.StripHTML,
		Verify:    cfg.VerifyOutput,
		Recorder:  recorder,
	})
}

package detect

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ExternalDetector is a detector backed by a remote service.
//
// Implementations never surface transport errors to callers: any SDK,
// network, or parse failure is logged at warn level and yields an empty
// slice, so a flaky service degrades detection instead of failing a job.
type ExternalDetector interface {
	// Name identifies the detector in logs and job results.
	Name() string

	// Available reports whether the detector is configured and usable.
	// Callers skip unavailable detectors.
	Available() bool

	// Detect returns the entities found in text. It never panics and
	// never returns an error.
	Detect(ctx context.Context, text string) []Entity
}

// RunExternal runs every available detector in order and concatenates the
// results. Nil and unavailable detectors are skipped.
func RunExternal(ctx context.Context, text string, detectors ...ExternalDetector) []Entity {
	var entities []Entity
	for _, d := range detectors {
		if d == nil {
			continue
		}
		if !d.Available() {
			log.Debug().Str("detector", d.Name()).Msg("external detector unavailable, skipping")
			continue
		}
		entities = append(entities, d.Detect(ctx, text)...)
	}
	return entities
}

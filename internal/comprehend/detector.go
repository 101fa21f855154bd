// Package comprehend backs detection with AWS Comprehend: the managed
// PII model and, optionally, a custom entity recognizer endpoint. Both
// detectors follow the external detector contract, so SDK failures warn
// and contribute nothing instead of failing the caller.
package comprehend

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	sdk "github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veildata/veil/internal/detect"
	veilotel "github.com/veildata/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/veildata/veil/internal/comprehend")

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// maxChunkBytes stays under the service's 5000-byte document limit.
const maxChunkBytes = 4800

// api is the slice of the Comprehend client the detectors use.
type api interface {
	DetectPiiEntities(ctx context.Context, params *sdk.DetectPiiEntitiesInput, optFns ...func(*sdk.Options)) (*sdk.DetectPiiEntitiesOutput, error)
	DetectEntities(ctx context.Context, params *sdk.DetectEntitiesInput, optFns ...func(*sdk.Options)) (*sdk.DetectEntitiesOutput, error)
}

func newClient(ctx context.Context, region string) api {
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Warn().Err(err).Msg("comprehend client unavailable")
		return nil
	}
	return sdk.NewFromConfig(cfg)
}

// Detector queries the managed PII model. Entity types come back in
// Comprehend's vocabulary (EMAIL, PHONE, SSN, NAME, ADDRESS, ...).
type Detector struct {
	client api
}

// NewDetector loads AWS configuration and builds the managed-model
// detector. When credentials or config cannot be loaded the detector is
// still returned; it just reports unavailable and detects nothing.
func NewDetector(ctx context.Context, region string) *Detector {
	return &Detector{client: newClient(ctx, region)}
}

func newDetectorWithClient(client api) *Detector {
	return &Detector{client: client}
}

// Name implements detect.ExternalDetector.
func (d *Detector) Name() string { return "comprehend" }

// Available implements detect.ExternalDetector.
func (d *Detector) Available() bool { return d.client != nil }

// Detect implements detect.ExternalDetector. Text beyond the service's
// document limit is split on rune boundaries and offsets are rebased, so
// returned spans always index the full input.
func (d *Detector) Detect(ctx context.Context, text string) []detect.Entity {
	if d.client == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "comprehend.detect")
	defer span.End()

	var entities []detect.Entity
	for _, c := range splitChunks(text) {
		out, err := d.client.DetectPiiEntities(ctx, &sdk.DetectPiiEntitiesInput{
			Text:         aws.String(c.text),
			LanguageCode: types.LanguageCodeEn,
		})
		if err != nil {
			log.Warn().Err(err).Msg("comprehend pii detection failed")
			continue
		}
		for _, ent := range out.Entities {
			if e, ok := c.entity(ent.BeginOffset, ent.EndOffset, string(ent.Type), ent.Score, detect.SourceComprehend); ok {
				entities = append(entities, e)
			}
		}
	}

	span.SetAttributes(attribute.Int("veil.entity_count", len(entities)))
	return entities
}

// Ping sends a minimal request to verify credentials and connectivity.
func (d *Detector) Ping(ctx context.Context) error {
	if d.client == nil {
		return fmt.Errorf("comprehend client not initialized")
	}
	_, err := d.client.DetectPiiEntities(ctx, &sdk.DetectPiiEntitiesInput{
		Text:         aws.String("test"),
		LanguageCode: types.LanguageCodeEn,
	})
	return err
}

// CERDetector queries a custom entity recognizer endpoint. Entity types
// are whatever labels the recognizer was trained with.
type CERDetector struct {
	client      api
	endpointARN string
}

// NewCERDetector builds a detector for one recognizer endpoint.
func NewCERDetector(ctx context.Context, region, endpointARN string) *CERDetector {
	return &CERDetector{client: newClient(ctx, region), endpointARN: endpointARN}
}

func newCERDetectorWithClient(client api, endpointARN string) *CERDetector {
	return &CERDetector{client: client, endpointARN: endpointARN}
}

// Name implements detect.ExternalDetector.
func (d *CERDetector) Name() string { return "cer" }

// Available implements detect.ExternalDetector.
func (d *CERDetector) Available() bool { return d.client != nil && d.endpointARN != "" }

// Detect implements detect.ExternalDetector.
func (d *CERDetector) Detect(ctx context.Context, text string) []detect.Entity {
	if !d.Available() || strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "comprehend.detect_cer")
	defer span.End()

	var entities []detect.Entity
	for _, c := range splitChunks(text) {
		out, err := d.client.DetectEntities(ctx, &sdk.DetectEntitiesInput{
			Text:         aws.String(c.text),
			LanguageCode: types.LanguageCodeEn,
			EndpointArn:  aws.String(d.endpointARN),
		})
		if err != nil {
			log.Warn().Err(err).Msg("cer detection failed")
			continue
		}
		for _, ent := range out.Entities {
			if e, ok := c.entity(ent.BeginOffset, ent.EndOffset, string(ent.Type), ent.Score, detect.SourceCER); ok {
				entities = append(entities, e)
			}
		}
	}

	span.SetAttributes(attribute.Int("veil.entity_count", len(entities)))
	return entities
}

// chunk is one API-sized slice of the input plus the lookup tables to
// turn the service's rune offsets back into byte offsets of the full text.
type chunk struct {
	base    int
	text    string
	runes   []rune
	bytePos []int
}

func newChunk(base int, text string) chunk {
	runes := []rune(text)
	pos := make([]int, len(runes)+1)
	b := 0
	for i, r := range runes {
		pos[i] = b
		b += utf8.RuneLen(r)
	}
	pos[len(runes)] = len(text)
	return chunk{base: base, text: text, runes: runes, bytePos: pos}
}

// entity converts one service entity into a detect.Entity, or reports
// false when the offsets do not address this chunk.
func (c chunk) entity(begin, end *int32, entityType string, score *float32, source string) (detect.Entity, bool) {
	if begin == nil || end == nil {
		return detect.Entity{}, false
	}
	b, e := int(*begin), int(*end)
	if b < 0 || e > len(c.runes) || b >= e {
		log.Warn().Int("begin", b).Int("end", e).Str("type", entityType).Msg("dropping entity with invalid offsets")
		return detect.Entity{}, false
	}
	var confidence float64
	if score != nil {
		confidence = float64(*score)
	}
	start, stop := c.bytePos[b], c.bytePos[e]
	return detect.Entity{
		Type:       entityType,
		Text:       c.text[start:stop],
		Start:      c.base + start,
		End:        c.base + stop,
		Confidence: confidence,
		Source:     source,
	}, true
}

func splitChunks(text string) []chunk {
	if len(text) <= maxChunkBytes {
		return []chunk{newChunk(0, text)}
	}
	var out []chunk
	base := 0
	for base < len(text) {
		end := base + maxChunkBytes
		if end >= len(text) {
			end = len(text)
		} else {
			for end > base && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		out = append(out, newChunk(base, text[base:end]))
		base = end
	}
	return out
}

// Package llm backs detection with an OpenAI-compatible chat model, for
// free-text PII that patterns miss. The model names snippets, not
// offsets; spans are recovered by literal search in the scanned text.
package llm

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veildata/veil/internal/detect"
	veilotel "github.com/veildata/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/veildata/veil/internal/llm")

// DefaultModel balances detection quality against per-field cost.
const DefaultModel = "gpt-4o-mini"

const callTimeout = 30 * time.Second

const systemPrompt = `You are a PII detection engine. Find every piece of personally identifiable information in the user's text. Respond with strict JSON only, no prose, in the shape {"entities":[{"type":"EMAIL","text":"<exact snippet>","confidence":0.95}]}. Use uppercase types such as EMAIL, PHONE, SSN, NAME, ADDRESS, DATE_OF_BIRTH, CREDIT_CARD, IP_ADDRESS. The text field must quote the snippet exactly as it appears in the input. Return {"entities":[]} when nothing is found.`

// Config holds the chat-completion settings for the detector.
type Config struct {
	APIKey  string
	Model   string // DefaultModel when empty
	BaseURL string // optional OpenAI-compatible gateway, scheme+host
}

// Detector implements detect.ExternalDetector on a chat model.
type Detector struct {
	client *openai.Client
	model  string
}

// NewDetector builds the detector. Without an API key it is returned
// anyway and reports unavailable.
func NewDetector(cfg Config) *Detector {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if cfg.APIKey == "" {
		return &Detector{model: model}
	}
	if cfg.BaseURL != "" {
		c := openai.DefaultConfig(cfg.APIKey)
		c.BaseURL = normalizeBaseURL(cfg.BaseURL)
		return &Detector{client: openai.NewClientWithConfig(c), model: model}
	}
	return &Detector{client: openai.NewClient(cfg.APIKey), model: model}
}

func newDetectorWithClient(client *openai.Client, model string) *Detector {
	return &Detector{client: client, model: model}
}

// normalizeBaseURL appends the /v1 path the client expects, leaving URLs
// that already carry it untouched.
func normalizeBaseURL(u string) string {
	u = strings.TrimRight(u, "/")
	if strings.HasSuffix(u, "/v1") {
		return u
	}
	return u + "/v1"
}

// Name implements detect.ExternalDetector.
func (d *Detector) Name() string { return "llm" }

// Available implements detect.ExternalDetector.
func (d *Detector) Available() bool { return d.client != nil }

type modelEntity struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type modelReply struct {
	Entities []modelEntity `json:"entities"`
}

// Detect implements detect.ExternalDetector. Model refusals, transport
// errors and malformed replies all warn and detect nothing.
func (d *Detector) Detect(ctx context.Context, text string) []detect.Entity {
	if d.client == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "llm.detect",
		trace.WithAttributes(
			veilotel.GenAISystem.String("openai"),
			veilotel.GenAIRequestModel.String(d.model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		// omitempty drops a literal 0; the smallest nonzero float is
		// indistinguishable from 0 on the wire.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("model", d.model).Msg("llm detection failed")
		return nil
	}
	if len(resp.Choices) == 0 {
		log.Warn().Str("model", d.model).Msg("llm returned no choices")
		return nil
	}

	span.SetAttributes(
		veilotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		veilotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
	)

	entities := resolveEntities(text, resp.Choices[0].Message.Content)
	span.SetAttributes(attribute.Int("veil.entity_count", len(entities)))
	return entities
}

// resolveEntities decodes the model reply and maps each snippet to every
// occurrence in text. Snippets the model invented are skipped.
func resolveEntities(text, content string) []detect.Entity {
	var reply modelReply
	if err := json.Unmarshal([]byte(stripFences(content)), &reply); err != nil {
		log.Warn().Err(err).Msg("llm returned malformed entity json")
		return nil
	}

	var entities []detect.Entity
	for _, me := range reply.Entities {
		if me.Text == "" {
			continue
		}
		confidence := me.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		entityType := normalizeType(me.Type)

		found := false
		for from := 0; ; {
			idx := strings.Index(text[from:], me.Text)
			if idx < 0 {
				break
			}
			start := from + idx
			entities = append(entities, detect.Entity{
				Type:       entityType,
				Text:       me.Text,
				Start:      start,
				End:        start + len(me.Text),
				Confidence: confidence,
				Source:     detect.SourceLLM,
			})
			from = start + len(me.Text)
			found = true
		}
		if !found {
			// Snippet stays out of the log: it may itself be PII.
			log.Debug().Str("type", entityType).Msg("llm snippet not present in text, skipping")
		}
	}
	return entities
}

func normalizeType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
}

// stripFences tolerates models that wrap the JSON in a markdown block
// despite the response format asking for bare JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/logger"
	"google.golang.org/genai"
)

// Model attempt outcomes reported to the Recorder.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
	OutcomeInvalidJSON = "invalid_json"
)

// contentGenerator is the slice of the genai client the parser needs.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ParserConfig configures a GeminiAIParser.
type ParserConfig struct {
	APIKey    string
	Models    []string      // tried in order
	Retries   int           // attempts per model when rate limited
	RetryWait time.Duration // pause between rate-limited attempts
	Metrics   Recorder
}

// GeminiAIParser is the AIParser backed by the Gemini API. It rotates through
// the configured models: a rate-limited model is retried after a pause, any
// other failure moves on to the next model.
type GeminiAIParser struct {
	generator contentGenerator
	models    []string
	retries   int
	retryWait time.Duration
	metrics   Recorder
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewGeminiAIParser creates a parser with its own genai client.
// It returns ErrMissingAPIKey when no key is configured.
func NewGeminiAIParser(ctx context.Context, cfg ParserConfig) (*GeminiAIParser, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("NewGeminiAIParser: at least one model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiAIParser: create genai client: %w", err)
	}

	return newGeminiAIParser(client.Models, cfg), nil
}

func newGeminiAIParser(gen contentGenerator, cfg ParserConfig) *GeminiAIParser {
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &GeminiAIParser{
		generator: gen,
		models:    append([]string(nil), cfg.Models...),
		retries:   retries,
		retryWait: cfg.RetryWait,
		metrics:   metrics,
		sleep:     sleepContext,
	}
}

// Models returns the model rotation.
func (p *GeminiAIParser) Models() []string {
	return append([]string(nil), p.models...)
}

// ParseStatement sends scrubbed statement text to the models in turn and
// returns the first response that decodes as a JSON array of objects.
func (p *GeminiAIParser) ParseStatement(ctx context.Context, text string) (*ModelOutput, error) {
	log := logger.FromContext(ctx)

	contents := genai.Text(userPrompt(text))
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	}

	var lastErr error
	for _, model := range p.models {
		log.Info().Str("model", model).Msg("Attempting analysis")

		out, err := p.tryModel(ctx, model, contents, config)
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("model", model).
			Msg("Model failed, trying next")
	}

	return nil, fmt.Errorf("%w: last error: %v", ErrAllModelsFailed, lastErr)
}

func (p *GeminiAIParser) tryModel(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*ModelOutput, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		resp, err := p.generator.GenerateContent(ctx, model, contents, config)
		if err != nil {
			if !isRateLimited(err) {
				p.metrics.ObserveModelAttempt(model, OutcomeError)
				return nil, fmt.Errorf("%s: generate content: %w", model, err)
			}

			p.metrics.ObserveModelAttempt(model, OutcomeRateLimited)
			lastErr = fmt.Errorf("%s: rate limited: %w", model, err)
			log := logger.FromContext(ctx)
			log.Warn().
				Str("model", model).
				Int("attempt", attempt).
				Dur("wait", p.retryWait).
				Msg("Rate limited")

			if attempt < p.retries {
				if err := p.sleep(ctx, p.retryWait); err != nil {
					return nil, err
				}
			}
			continue
		}

		out, err := decodeModelResponse(model, resp.Text())
		if err != nil {
			p.metrics.ObserveModelAttempt(model, OutcomeInvalidJSON)
			return nil, err
		}
		p.metrics.ObserveModelAttempt(model, OutcomeSuccess)
		return out, nil
	}
	return nil, lastErr
}

// decodeModelResponse cleans up and decodes a model response into records.
func decodeModelResponse(model, raw string) (*ModelOutput, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s: empty response from model", model)
	}

	var parsed []interface{}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("%s: unmarshal JSON: %w", model, err)
	}

	records := make([]map[string]interface{}, 0, len(parsed))
	for i, item := range parsed {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: element %d is %T, want object", model, i, item)
		}
		records = append(records, obj)
	}

	return &ModelOutput{ModelName: model, Records: records}, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON array
// in case the model ignored the output instructions.
func cleanModelJSON(raw string) string {
	s := raw

	if idx := strings.Index(s, "```json"); idx != -1 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+len("```"):]
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	s = strings.TrimSpace(s)

	// Keep only from the first '[' to the last ']'.
	if start := strings.Index(s, "["); start != -1 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "]"); end != -1 {
		s = s[:end+1]
	}

	return s
}

func isRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// contentGenerator is the slice of the genai Models service the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements schemas.LLMClient on top of the Gemini API.
type GeminiClient struct {
	models  contentGenerator
	limiter *rate.Limiter
	logger  *zap.Logger
	config  config.LLMModelConfig
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("Gemini model name is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiClient(client.Models, cfg, logger), nil
}

func newGeminiClient(models contentGenerator, cfg config.LLMModelConfig, logger *zap.Logger) *GeminiClient {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}
	return &GeminiClient{
		models:  models,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
		config:  cfg,
	}
}

// Generate sends the prompts and any attached screenshots to Gemini and
// returns the generated text, retrying transient failures.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := c.buildContents(req)
	genConfig := c.buildGenerationConfig(req)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.config.MaxRetryElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 2 * time.Minute
	}
	b.MaxInterval = 30 * time.Second

	var responseContent string
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait aborted: %w", err))
		}

		callCtx := ctx
		if c.config.APITimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
			defer cancel()
		}

		startTime := time.Now()
		resp, err := c.models.GenerateContent(callCtx, c.config.Model, contents, genConfig)
		duration := time.Since(startTime)
		if err != nil {
			return c.classifyError(ctx, err)
		}

		text, err := c.extractText(resp)
		if err != nil {
			return err
		}

		fields := []zap.Field{zap.Duration("duration", duration)}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount),
			)
		}
		c.logger.Info("LLM generation complete (Gemini)", fields...)

		responseContent = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close satisfies schemas.LLMClient. The genai client holds no resources
// that need releasing.
func (c *GeminiClient) Close() error { return nil }

func (c *GeminiClient) buildContents(req schemas.GenerationRequest) []*genai.Content {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}
	parts = append(parts, genai.NewPartFromText(req.UserPrompt))
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func (c *GeminiClient) buildGenerationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temperature := c.config.Temperature
	if req.Options.Temperature > 0 {
		temperature = float32(req.Options.Temperature)
	}
	genConfig := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(temperature),
		SafetySettings: c.getSafetySettings(),
	}
	if c.config.TopP > 0 {
		genConfig.TopP = genai.Ptr(c.config.TopP)
	}
	if c.config.TopK > 0 {
		genConfig.TopK = genai.Ptr(float32(c.config.TopK))
	}
	maxTokens := c.config.MaxTokens
	if req.Options.MaxOutputTokens > 0 {
		maxTokens = req.Options.MaxOutputTokens
	}
	if maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(maxTokens)
	}
	if req.Options.ForceJSONFormat {
		genConfig.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return genConfig
}

func (c *GeminiClient) extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
	}
	candidate := resp.Candidates[0]
	text := resp.Text()
	if text == "" {
		switch candidate.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
			return "", backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
		}
		return "", fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}
	return text, nil
}

// classifyError decides whether a failed call is worth retrying.
func (c *GeminiClient) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	code, ok := apiErrorCode(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("LLM request timed out, retrying...", zap.Error(err))
			return err
		}
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return err
	}

	c.logger.Error("Gemini API returned error status", zap.Int("status", code), zap.Error(err))
	wrapped := fmt.Errorf("gemini API error: status %d: %w", code, err)
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return wrapped
	default:
		return backoff.Permanent(wrapped)
	}
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func (c *GeminiClient) getSafetySettings() []*genai.SafetySetting {
	categories := make([]string, 0, len(c.config.SafetyFilters))
	for category := range c.config.SafetyFilters {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  genai.HarmCategory(category),
			Threshold: genai.HarmBlockThreshold(c.config.SafetyFilters[category]),
		})
	}
	return settings
}

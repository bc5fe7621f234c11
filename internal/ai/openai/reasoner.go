// Package openai implements the medical reasoning service on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"claimguard/internal/orchestrator"
)

// Config configures the reasoner. Prices are USD per 1k tokens.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32

	PromptPricePer1K     float64
	CompletionPricePer1K float64
}

// DefaultConfig returns gpt-4o-mini pricing.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:               apiKey,
		Model:                openai.GPT4oMini,
		MaxTokens:            800,
		Temperature:          0.2,
		PromptPricePer1K:     0.00015,
		CompletionPricePer1K: 0.0006,
	}
}

// Reasoner implements orchestrator.ReasoningService.
type Reasoner struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
}

type Option func(*Reasoner)

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Reasoner) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

func New(cfg Config, opts ...Option) (*Reasoner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	r := &Reasoner{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reason asks the model for a medical necessity assessment and extracts the
// confidence score from its answer.
func (r *Reasoner) Reason(ctx context.Context, req orchestrator.ReasoningRequest) (*orchestrator.ReasoningResponse, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return nil, mapError(err)
	}
	cost := r.cost(resp.Usage)

	if len(resp.Choices) == 0 {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorBadData, orchestrator.ServiceReasoning,
			"no choices in completion", nil).WithCost(cost)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorRejected, orchestrator.ServiceReasoning,
			"completion blocked by content filter", nil).WithCost(cost)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorBadData, orchestrator.ServiceReasoning,
			"empty completion", nil).WithCost(cost)
	}

	return &orchestrator.ReasoningResponse{
		Confidence: ExtractConfidence(text),
		Reasoning:  text,
		Model:      resp.Model,
		CostUSD:    cost,
		Latency:    time.Since(start),
	}, nil
}

func (r *Reasoner) cost(u openai.Usage) float64 {
	return float64(u.PromptTokens)/1000*r.cfg.PromptPricePer1K +
		float64(u.CompletionTokens)/1000*r.cfg.CompletionPricePer1K
}

var confidencePattern = regexp.MustCompile(`confidence[^0-9]{0,20}(\d+(?:\.\d+)?)`)

var (
	strongIndicators = []string{"clearly", "definitely", "strongly indicated", "appropriate"}
	weakIndicators   = []string{"possibly", "might", "unclear", "insufficient"}
)

// ExtractConfidence reads an explicit "confidence: NN" from text. Without
// one it scores the wording: strong indicators raise it from 75, weak ones
// lower it from 60. The result is clamped to 0..100.
func ExtractConfidence(text string) float64 {
	lower := strings.ToLower(text)
	if m := confidencePattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp(v)
		}
	}

	var strong, weak int
	for _, s := range strongIndicators {
		if strings.Contains(lower, s) {
			strong++
		}
	}
	for _, w := range weakIndicators {
		if strings.Contains(lower, w) {
			weak++
		}
	}
	if strong > weak {
		return clamp(75 + float64(strong)*5)
	}
	return clamp(60 - float64(weak)*5)
}

func clamp(v float64) float64 {
	return min(100, max(0, v))
}

// mapError turns client errors into orchestrator categories by HTTP status.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	category := orchestrator.ErrorOutage
	switch {
	case status == http.StatusTooManyRequests:
		category = orchestrator.ErrorRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = orchestrator.ErrorAuthentication
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		category = orchestrator.ErrorTimeout
	case status >= 400 && status < 500:
		category = orchestrator.ErrorRejected
	}
	return orchestrator.NewServiceError(category, orchestrator.ServiceReasoning, "openai request failed", err)
}

const systemPrompt = `You are a healthcare claims reviewer with deep knowledge of CPT procedure
codes, ICD-10 diagnosis codes, medical necessity criteria and cost-effective care.
Give evidence-based reasoning that both clinicians and executives can follow.
End your answer with a line of the form "Confidence: NN" where NN is 0-100.`

func buildPrompt(req orchestrator.ReasoningRequest) string {
	ctxText := req.MedicalContext
	if ctxText == "" {
		ctxText = "Not provided"
	}
	return fmt.Sprintf(`Assess this healthcare claim for medical necessity and appropriateness.

Claim: %s
Procedure (CPT): %s
Diagnosis (ICD-10): %s
Requested amount: $%.2f
Priority: %s
Clinical context: %s

Cover: necessity given the diagnosis, fit of the procedure, cost-effectiveness,
and adherence to standard care guidelines. Recommend APPROVED, DENIED or
REQUIRES_REVIEW.`, req.ClaimID, req.ProcedureCode, req.DiagnosisCode, req.RequestedAmount, req.Priority, ctxText)
}

// Ping checks that the API key can see the configured model.
func (r *Reasoner) Ping(ctx context.Context) error {
	if _, err := r.client.GetModel(ctx, r.cfg.Model); err != nil {
		return fmt.Errorf("openai model %s: %w", r.cfg.Model, err)
	}
	return nil
}

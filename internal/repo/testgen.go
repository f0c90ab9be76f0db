package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

const (
	defaultGeneratorRate  = 2
	defaultGeneratorBurst = 4
	defaultOpenAIModel    = "gpt-4o-mini"
)

func newGeneratorLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = defaultGeneratorRate
	}
	if burst <= 0 {
		burst = defaultGeneratorBurst
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// HTTPTestGenerator calls the test generator service.
type HTTPTestGenerator struct {
	baseURL    string
	path       string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewHTTPTestGenerator constructs a generator client. Calls are rate limited to
// perSecond with the given burst.
func NewHTTPTestGenerator(baseURL, path string, timeout time.Duration, perSecond float64, burst int) *HTTPTestGenerator {
	return &HTTPTestGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       path,
		timeout:    timeout,
		limiter:    newGeneratorLimiter(perSecond, burst),
		httpClient: &http.Client{},
	}
}

// GenerateTest requests regression test code for the cluster context.
func (g *HTTPTestGenerator) GenerateTest(ctx context.Context, req models.TestGenerationRequest) (string, error) {
	if g == nil || g.baseURL == "" {
		return "", fmt.Errorf("test generator base URL not configured")
	}
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	payload := map[string]any{
		"tenantId": req.TenantID,
		"context": map[string]any{
			"errorType":         req.ErrorType,
			"errorMessage":      req.ErrorMessage,
			"affectedServices":  req.AffectedServices,
			"affectedEndpoints": req.AffectedEndpoints,
		},
		"framework": req.Framework,
		"type":      "regression",
	}
	var response struct {
		TestCode string `json:"testCode"`
	}
	if err := postJSON(ctx, g.httpClient, "test generator", resolveURL(g.baseURL, g.path), payload, &response); err != nil {
		return "", fmt.Errorf("test generation request failed: %w", err)
	}
	return response.TestCode, nil
}

// OpenAIConfig configures the chat completion backed generator.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	PerSecond float64
	Burst     int
}

// OpenAITestGenerator asks an OpenAI compatible chat completion endpoint for test code.
type OpenAITestGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewOpenAITestGenerator constructs the generator.
func NewOpenAITestGenerator(cfg OpenAIConfig) (*OpenAITestGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAITestGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: cfg.Timeout,
		limiter: newGeneratorLimiter(cfg.PerSecond, cfg.Burst),
	}, nil
}

const generatorSystemPrompt = "You write a single self-contained regression test that fails if the described production error recurs. Reply with code only."

// GenerateTest requests regression test code for the cluster context.
func (g *OpenAITestGenerator) GenerateTest(ctx context.Context, req models.TestGenerationRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: generatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: generationPrompt(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return stripCodeFence(resp.Choices[0].Message.Content), nil
}

func generationPrompt(req models.TestGenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Framework: %s\n", req.Framework)
	fmt.Fprintf(&b, "Error type: %s\n", req.ErrorType)
	fmt.Fprintf(&b, "Error message: %s\n", req.ErrorMessage)
	if len(req.AffectedServices) > 0 {
		fmt.Fprintf(&b, "Affected services: %s\n", strings.Join(req.AffectedServices, ", "))
	}
	if len(req.AffectedEndpoints) > 0 {
		fmt.Fprintf(&b, "Affected endpoints: %s\n", strings.Join(req.AffectedEndpoints, ", "))
	}
	return b.String()
}

// stripCodeFence removes a surrounding markdown code fence.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return ""
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

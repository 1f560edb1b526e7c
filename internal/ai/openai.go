package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
// DeepSeek, Gemini and Claude all expose one, so a single client serves them.
type OpenAIProvider struct {
	name    string
	client  *openai.Client
	limiter *rate.Limiter
}

// NewOpenAIProvider creates a provider for the endpoint described by spec
func NewOpenAIProvider(name, apiKey string, spec ProviderSpec) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if spec.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(spec.BaseURL, "/")
	}
	return &OpenAIProvider{
		name:    normalizeName(name),
		client:  openai.NewClientWithConfig(cfg),
		limiter: newLimiter(spec.RatePerMinute),
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
}

// Name returns the provider's registry key
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Generate runs one chat completion
func (p *OpenAIProvider) Generate(ctx context.Context, prompt Prompt, opts Options) (Generation, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return Generation{}, fmt.Errorf("waiting for rate limiter: %w", ctx.Err())
		}
		return Generation{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	req := openai.ChatCompletionRequest{
		Model: opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Generation{}, err
	}
	if len(resp.Choices) == 0 {
		return Generation{}, errors.New("no choices in completion response")
	}

	model := resp.Model
	if model == "" {
		model = opts.Model
	}
	return Generation{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

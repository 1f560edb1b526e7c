// Package ai generates email replies with a chain of interchangeable AI providers.
package ai

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"mailpilot/internal/models"
)

// ErrRateLimited can be returned by providers that detect throttling themselves
var ErrRateLimited = errors.New("rate limited")

// Prompt is a system instruction plus the user turn
type Prompt struct {
	System string
	User   string
}

// Options bound a single generation call
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generation is a provider's answer
type Generation struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Cost             float64 // optional, estimated from the catalog when zero
}

// Provider is one AI backend
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt, opts Options) (Generation, error)
}

// Registry holds providers by name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	catalog   *Catalog
}

// NewRegistry creates an empty registry priced by catalog
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		catalog:   catalog,
	}
}

// NewRegistryFromKeys registers an OpenAI-compatible provider for every catalog
// entry that has an API key
func NewRegistryFromKeys(catalog *Catalog, keys map[string]string, logger zerolog.Logger) *Registry {
	r := NewRegistry(catalog)
	for _, name := range catalog.Names() {
		key := keys[name]
		if key == "" {
			logger.Debug().Str("provider", name).Msg("No API key, provider disabled")
			continue
		}
		spec, _ := catalog.Spec(name)
		r.Register(NewOpenAIProvider(name, key, spec))
		logger.Info().Str("provider", name).Str("base_url", spec.BaseURL).Msg("AI provider registered")
	}
	return r
}

// Register adds or replaces a provider
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[normalizeName(p.Name())] = p
}

// Get looks a provider up by name
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[normalizeName(name)]
	return p, ok
}

// Names lists registered providers, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns the pricing catalog
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Classify maps a provider error to an attempt outcome
func Classify(err error) models.Outcome {
	if err == nil {
		return models.OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeTimeout
	}
	if errors.Is(err, ErrRateLimited) {
		return models.OutcomeRateLimited
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return models.OutcomeRateLimited
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == 429 {
		return models.OutcomeRateLimited
	}
	return models.OutcomeError
}

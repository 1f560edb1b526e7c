package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailpilot/internal/apperr"
	"mailpilot/internal/models"
	"mailpilot/internal/utils"
)

// ErrAutoReplyDisabled means the tenant turned automatic replies off
var ErrAutoReplyDisabled = errors.New("auto reply disabled")

const (
	simpleMaxChars   = 600
	maxErrorDetail   = 500
	defaultMaxChain  = 4
	defaultAITimeout = 60 * time.Second
)

var escalationKeywords = utils.KeywordSet(
	"urgent", "invoice", "refund", "contract", "legal",
	"complaint", "cancel", "lawyer", "payment", "asap",
)

// Step is one planned provider call
type Step struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ChainError is returned when every provider in the chain failed
type ChainError struct {
	Attempts []models.ReplyAttempt
	Errs     []error
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Outcome))
	}
	return fmt.Sprintf("all %d provider(s) failed (%s)", len(e.Attempts), strings.Join(parts, ", "))
}

func (e *ChainError) Unwrap() []error { return e.Errs }

// Config tunes an Orchestrator
type Config struct {
	Timeout  time.Duration
	MaxChain int
}

// Orchestrator turns an incoming message into a reply draft
type Orchestrator struct {
	registry *Registry
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator over the registry's providers
func NewOrchestrator(registry *Registry, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAITimeout
	}
	if cfg.MaxChain <= 0 {
		cfg.MaxChain = defaultMaxChain
	}
	return &Orchestrator{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ai").Logger(),
		now:      time.Now,
	}
}

// Registry returns the provider registry
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Validate checks settings without calling any provider
func (o *Orchestrator) Validate(s models.AISettings) error {
	if strings.TrimSpace(s.PrimaryProvider) == "" {
		return apperr.NewConfigError("aiPrimary", "no primary provider configured")
	}
	if _, ok := o.registry.Get(s.PrimaryProvider); !ok {
		return apperr.NewConfigError("aiPrimary", "provider %q is not available (registered: %s)", s.PrimaryProvider, strings.Join(o.registry.Names(), ", "))
	}
	if s.EnableFallback {
		for _, name := range s.FallbackProviders {
			if strings.TrimSpace(name) == "" {
				continue
			}
			if _, ok := o.registry.Get(name); !ok {
				return apperr.NewConfigError("aiFallback", "provider %q is not available", name)
			}
		}
	}
	if s.MaxTokens <= 0 {
		return apperr.NewConfigError("maxTokens", "must be positive, got %d", s.MaxTokens)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return apperr.NewConfigError("temperature", "must be between 0 and 2, got %g", s.Temperature)
	}
	if s.Mode != "" && !s.Mode.Valid() {
		return apperr.NewConfigError("aiMode", "unknown mode %q", s.Mode)
	}
	return nil
}

// Plan resolves the ordered provider calls for msg under settings s
func (o *Orchestrator) Plan(msg *models.IncomingMessage, s models.AISettings) ([]Step, error) {
	if err := o.Validate(s); err != nil {
		return nil, err
	}
	mode := s.Mode
	if mode == "" {
		mode = models.ModeBalanced
	}

	names := []string{s.PrimaryProvider}
	if s.EnableFallback {
		names = append(names, s.FallbackProviders...)
	}

	seen := make(map[string]bool, len(names))
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		name = normalizeName(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		model := o.registry.Catalog().DefaultModel(name, mode)
		if name == normalizeName(s.PrimaryProvider) && strings.TrimSpace(s.Model) != "" {
			model = strings.TrimSpace(s.Model)
		}
		if model == "" {
			return nil, apperr.NewConfigError("aiModel", "no model configured for provider %q in %s mode", name, mode)
		}
		steps = append(steps, Step{Provider: name, Model: model})
	}

	if mode == models.ModeCheap || (s.CostOptimization && IsSimple(msg)) {
		steps = o.cheapestFirst(steps)
	}
	if len(steps) > o.cfg.MaxChain {
		steps = steps[:o.cfg.MaxChain]
	}
	return steps, nil
}

// cheapestFirst moves the cheapest step to the front, keeping the rest in order
func (o *Orchestrator) cheapestFirst(steps []Step) []Step {
	best := 0
	for i := 1; i < len(steps); i++ {
		if o.registry.Catalog().UnitPrice(steps[i].Provider, steps[i].Model) <
			o.registry.Catalog().UnitPrice(steps[best].Provider, steps[best].Model) {
			best = i
		}
	}
	if best == 0 {
		return steps
	}
	ordered := make([]Step, 0, len(steps))
	ordered = append(ordered, steps[best])
	ordered = append(ordered, steps[:best]...)
	return append(ordered, steps[best+1:]...)
}

// IsSimple reports whether a message is short, has no attachments and
// mentions none of the escalation keywords
func IsSimple(msg *models.IncomingMessage) bool {
	if msg == nil || msg.HasAttachments {
		return false
	}
	body := strings.TrimSpace(msg.BodyText)
	if len([]rune(body)) > simpleMaxChars {
		return false
	}
	_, found := utils.FirstKeyword(msg.Subject+" "+body, escalationKeywords)
	return !found
}

// GenerateReply walks the provider chain until one produces a reply.
// Every call is returned as a ReplyAttempt, failed ones included.
func (o *Orchestrator) GenerateReply(ctx context.Context, msg *models.IncomingMessage, settings models.AISettings) (models.OutgoingDraft, []models.ReplyAttempt, error) {
	s := settings.Snapshot()
	if !s.AutoReply {
		return models.OutgoingDraft{}, nil, ErrAutoReplyDisabled
	}

	steps, err := o.Plan(msg, s)
	if err != nil {
		return models.OutgoingDraft{}, nil, err
	}

	log := o.logger.With().Str("message_id", msg.ID).Str("tenant_id", s.TenantID).Logger()
	user := UserPrompt(msg)
	attempts := make([]models.ReplyAttempt, 0, len(steps))
	errs := make([]error, 0, len(steps))

	for _, step := range steps {
		prompt := Prompt{System: SystemInstruction(s.Tone, step.Model, s.Mode), User: user}
		attempt, gen, err := o.call(ctx, msg.ID, step, prompt, s)
		attempts = append(attempts, attempt)

		if err != nil {
			errs = append(errs, err)
			log.Warn().Err(err).
				Str("provider", step.Provider).
				Str("model", step.Model).
				Str("outcome", string(attempt.Outcome)).
				Msg("Provider attempt failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		log.Info().
			Str("provider", step.Provider).
			Str("model", attempt.Model).
			Int("attempt", len(attempts)).
			Float64("cost", attempt.CostEstimate).
			Msg("Reply generated")
		return buildDraft(msg, attempt, gen.Text), attempts, nil
	}

	return models.OutgoingDraft{}, attempts, &ChainError{Attempts: attempts, Errs: errs}
}

// Test runs one generation against provider without touching the ledger
func (o *Orchestrator) Test(ctx context.Context, provider, model string, settings models.AISettings) (Generation, error) {
	s := settings.Snapshot()
	s.PrimaryProvider = provider
	s.EnableFallback = false
	s.Model = model
	s.AutoReply = true

	probe := &models.IncomingMessage{
		FromAddress: "customer@example.com",
		Subject:     "Opening hours",
		BodyText:    "Hello, what are your opening hours this week?",
	}
	steps, err := o.Plan(probe, s)
	if err != nil {
		return Generation{}, err
	}

	step := steps[0]
	prompt := Prompt{System: SystemInstruction(s.Tone, step.Model, s.Mode), User: UserPrompt(probe)}
	_, gen, err := o.call(ctx, "", step, prompt, s)
	return gen, err
}

func (o *Orchestrator) call(ctx context.Context, messageID string, step Step, prompt Prompt, s models.AISettings) (models.ReplyAttempt, Generation, error) {
	attempt := models.ReplyAttempt{
		ID:                uuid.NewString(),
		IncomingMessageID: messageID,
		Provider:          step.Provider,
		Model:             step.Model,
		StartedAt:         o.now().UTC(),
	}

	provider, ok := o.registry.Get(step.Provider)
	if !ok {
		// Validate already checked; the registry changed underneath us
		err := &apperr.ProviderError{Provider: step.Provider, Model: step.Model, Outcome: string(models.OutcomeError), Err: errors.New("provider not registered")}
		return o.fail(attempt, err), Generation{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	gen, err := provider.Generate(callCtx, prompt, Options{
		Model:       step.Model,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	})
	cancel()

	if err == nil && strings.TrimSpace(gen.Text) == "" {
		err = errors.New("provider returned an empty reply")
	}
	if err != nil {
		perr := &apperr.ProviderError{Provider: step.Provider, Model: step.Model, Outcome: string(Classify(err)), Err: err}
		return o.fail(attempt, perr), gen, perr
	}

	if gen.Model != "" {
		attempt.Model = gen.Model
	}
	attempt.FinishedAt = o.now().UTC()
	attempt.Outcome = models.OutcomeSuccess
	attempt.PromptTokens = gen.PromptTokens
	attempt.CompletionTokens = gen.CompletionTokens
	attempt.CostEstimate = gen.Cost
	if attempt.CostEstimate == 0 {
		attempt.CostEstimate = o.registry.Catalog().Cost(step.Provider, attempt.Model, gen.PromptTokens, gen.CompletionTokens)
	}
	return attempt, gen, nil
}

func (o *Orchestrator) fail(attempt models.ReplyAttempt, err *apperr.ProviderError) models.ReplyAttempt {
	attempt.FinishedAt = o.now().UTC()
	attempt.Outcome = models.Outcome(err.Outcome)
	attempt.ErrorDetail = truncateDetail(err.Err.Error(), maxErrorDetail)
	return attempt
}

// truncateDetail cuts s to at most n bytes without splitting a rune
func truncateDetail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func buildDraft(msg *models.IncomingMessage, attempt models.ReplyAttempt, text string) models.OutgoingDraft {
	text = strings.TrimSpace(text)
	incomingID := msg.ID

	references := strings.TrimSpace(msg.References)
	if msg.ProviderMessageID != "" {
		references = strings.TrimSpace(references + " " + msg.ProviderMessageID)
	}

	return models.OutgoingDraft{
		IncomingMessageID: &incomingID,
		To:                msg.FromAddress,
		Subject:           utils.ReplySubject(msg.Subject),
		BodyText:          text,
		BodyHTML:          utils.SanitizeHTML(utils.TextToHTML(text)),
		InReplyTo:         msg.ProviderMessageID,
		References:        references,
		Provider:          attempt.Provider,
		Model:             attempt.Model,
	}
}

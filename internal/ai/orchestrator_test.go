package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpilot/internal/apperr"
	"mailpilot/internal/models"
)

const testCatalogYAML = `
providers:
  alpha:
    models: {cheap: alpha-small, balanced: alpha-large, premium: alpha-large}
    pricing:
      alpha-large: {input: 5, output: 15}
      alpha-small: {input: 1, output: 2}
  beta:
    models: {balanced: beta-1}
    pricing:
      beta-1: {input: 2, output: 6}
  gamma:
    models: {balanced: gamma-1}
    pricing:
      gamma-1: {input: 0.1, output: 0.4}
`

type scriptedProvider struct {
	name  string
	text  string
	err   error
	block bool

	mu      sync.Mutex
	prompts []Prompt
	opts    []Options
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, prompt Prompt, opts Options) (Generation, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.opts = append(p.opts, opts)
	p.mu.Unlock()

	if p.block {
		<-ctx.Done()
		return Generation{}, ctx.Err()
	}
	if p.err != nil {
		return Generation{}, p.err
	}
	return Generation{Text: p.text, PromptTokens: 100, CompletionTokens: 50}, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func newTestOrchestrator(t *testing.T, cfg Config, providers ...*scriptedProvider) *Orchestrator {
	t.Helper()
	catalog, err := ParseCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	registry := NewRegistry(catalog)
	for _, p := range providers {
		registry.Register(p)
	}
	return NewOrchestrator(registry, cfg, zerolog.Nop())
}

func testSettings() models.AISettings {
	s := models.DefaultAISettings("t1")
	s.PrimaryProvider = "alpha"
	s.FallbackProviders = []string{"beta", "gamma"}
	s.EnableFallback = true
	s.AutoReply = true
	return s
}

func testMessage() *models.IncomingMessage {
	return &models.IncomingMessage{
		ID:                "m1",
		MailAccountID:     "a1",
		FromAddress:       "customer@example.com",
		Subject:           "Opening hours",
		BodyText:          "Hi, are you open on Sunday?",
		ProviderMessageID: "q1@example.com",
		References:        "q0@example.com",
	}
}

func attemptSummary(attempts []models.ReplyAttempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Provider+":"+string(a.Outcome))
	}
	return out
}

func TestGenerateReply_FallbackOrder(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", err: errors.New("internal server error")}
	beta := &scriptedProvider{name: "beta", err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}}
	gamma := &scriptedProvider{name: "gamma", text: "We are open on Sunday from 10 to 4."}
	o := newTestOrchestrator(t, Config{}, alpha, beta, gamma)

	draft, attempts, err := o.GenerateReply(context.Background(), testMessage(), testSettings())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha:error", "beta:rate_limited", "gamma:success"}, attemptSummary(attempts))
	for _, a := range attempts {
		assert.Equal(t, "m1", a.IncomingMessageID)
		assert.NotEmpty(t, a.ID)
		assert.False(t, a.FinishedAt.Before(a.StartedAt))
	}
	assert.Equal(t, "internal server error", attempts[0].ErrorDetail)
	assert.InDelta(t, (100*0.1+50*0.4)/1e6, attempts[2].CostEstimate, 1e-12)
	assert.Equal(t, 100, attempts[2].PromptTokens)

	assert.Equal(t, "gamma", draft.Provider)
	assert.Equal(t, "gamma-1", draft.Model)
	assert.Equal(t, "customer@example.com", draft.To)
	assert.Equal(t, "Re: Opening hours", draft.Subject)
	assert.Equal(t, "q1@example.com", draft.InReplyTo)
	assert.Equal(t, "q0@example.com q1@example.com", draft.References)
	assert.Equal(t, "<p>We are open on Sunday from 10 to 4.</p>", draft.BodyHTML)
	require.NotNil(t, draft.IncomingMessageID)
	assert.Equal(t, "m1", *draft.IncomingMessageID)
}

func TestGenerateReply_AllFail(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", err: errors.New("boom")}
	beta := &scriptedProvider{name: "beta", err: errors.New("bad gateway")}
	gamma := &scriptedProvider{name: "gamma", err: errors.New("model not found")}
	o := newTestOrchestrator(t, Config{}, alpha, beta, gamma)

	_, attempts, err := o.GenerateReply(context.Background(), testMessage(), testSettings())
	require.Error(t, err)

	var chainErr *ChainError
	require.True(t, errors.As(err, &chainErr))
	assert.Len(t, chainErr.Attempts, 3)
	assert.Len(t, attempts, 3)
	assert.Contains(t, err.Error(), "all 3 provider(s) failed")

	var provErr *apperr.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "alpha", provErr.Provider)
}

func TestGenerateReply_CostOptimization(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *models.AISettings, m *models.IncomingMessage)
		wantFirst string
	}{
		{
			name:      "simple message goes to the cheapest provider",
			mutate:    func(s *models.AISettings, m *models.IncomingMessage) { s.CostOptimization = true },
			wantFirst: "gamma",
		},
		{
			name: "escalation keyword keeps the primary",
			mutate: func(s *models.AISettings, m *models.IncomingMessage) {
				s.CostOptimization = true
				m.BodyText = "I want a refund for my order"
			},
			wantFirst: "alpha",
		},
		{
			name: "attachments keep the primary",
			mutate: func(s *models.AISettings, m *models.IncomingMessage) {
				s.CostOptimization = true
				m.HasAttachments = true
			},
			wantFirst: "alpha",
		},
		{
			name:      "optimization off keeps the primary",
			mutate:    func(s *models.AISettings, m *models.IncomingMessage) {},
			wantFirst: "alpha",
		},
		{
			name: "cheap mode always reorders",
			mutate: func(s *models.AISettings, m *models.IncomingMessage) {
				s.Mode = models.ModeCheap
				m.BodyText = "urgent: contract question"
			},
			wantFirst: "gamma",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alpha := &scriptedProvider{name: "alpha", text: "from alpha"}
			beta := &scriptedProvider{name: "beta", text: "from beta"}
			gamma := &scriptedProvider{name: "gamma", text: "from gamma"}
			o := newTestOrchestrator(t, Config{}, alpha, beta, gamma)

			s, m := testSettings(), testMessage()
			tt.mutate(&s, m)

			draft, attempts, err := o.GenerateReply(context.Background(), m, s)
			require.NoError(t, err)
			require.Len(t, attempts, 1)
			assert.Equal(t, tt.wantFirst, attempts[0].Provider)
			assert.Equal(t, tt.wantFirst, draft.Provider)
		})
	}
}

func TestGenerateReply_AutoReplyDisabled(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", text: "hi"}
	o := newTestOrchestrator(t, Config{}, alpha)

	s := testSettings()
	s.AutoReply = false
	_, attempts, err := o.GenerateReply(context.Background(), testMessage(), s)
	assert.ErrorIs(t, err, ErrAutoReplyDisabled)
	assert.Empty(t, attempts)
	assert.Equal(t, 0, alpha.calls())
}

func TestGenerateReply_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *models.AISettings)
		field  string
	}{
		{name: "no primary", mutate: func(s *models.AISettings) { s.PrimaryProvider = "" }, field: "aiPrimary"},
		{name: "unknown primary", mutate: func(s *models.AISettings) { s.PrimaryProvider = "delta" }, field: "aiPrimary"},
		{name: "unknown fallback", mutate: func(s *models.AISettings) { s.FallbackProviders = []string{"delta"} }, field: "aiFallback"},
		{name: "zero max tokens", mutate: func(s *models.AISettings) { s.MaxTokens = 0 }, field: "maxTokens"},
		{name: "temperature too high", mutate: func(s *models.AISettings) { s.Temperature = 2.5 }, field: "temperature"},
		{name: "negative temperature", mutate: func(s *models.AISettings) { s.Temperature = -0.1 }, field: "temperature"},
		{name: "unknown mode", mutate: func(s *models.AISettings) { s.Mode = "turbo" }, field: "aiMode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alpha := &scriptedProvider{name: "alpha", text: "hi"}
			beta := &scriptedProvider{name: "beta", text: "hi"}
			gamma := &scriptedProvider{name: "gamma", text: "hi"}
			o := newTestOrchestrator(t, Config{}, alpha, beta, gamma)

			s := testSettings()
			tt.mutate(&s)
			_, attempts, err := o.GenerateReply(context.Background(), testMessage(), s)
			require.Error(t, err)

			var cfgErr *apperr.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Empty(t, attempts)
			assert.Equal(t, 0, alpha.calls()+beta.calls()+gamma.calls())
		})
	}
}

func TestGenerateReply_Timeout(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", block: true}
	beta := &scriptedProvider{name: "beta", text: "answer"}
	o := newTestOrchestrator(t, Config{Timeout: 20 * time.Millisecond}, alpha, beta)

	s := testSettings()
	s.FallbackProviders = []string{"beta"}
	_, attempts, err := o.GenerateReply(context.Background(), testMessage(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha:timeout", "beta:success"}, attemptSummary(attempts))
}

func TestGenerateReply_CancelledContextStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	alpha := &scriptedProvider{name: "alpha", block: true}
	beta := &scriptedProvider{name: "beta", text: "answer"}
	o := newTestOrchestrator(t, Config{Timeout: time.Minute}, alpha, beta)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, attempts, err := o.GenerateReply(ctx, testMessage(), testSettings())
	require.Error(t, err)
	assert.Len(t, attempts, 1)
	assert.Equal(t, 0, beta.calls())
}

func TestGenerateReply_ErrorDetailKeepsRunes(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", err: errors.New(strings.Repeat("é", maxErrorDetail))}
	o := newTestOrchestrator(t, Config{}, alpha)

	s := testSettings()
	s.EnableFallback = false
	_, attempts, err := o.GenerateReply(context.Background(), testMessage(), s)
	require.Error(t, err)
	require.Len(t, attempts, 1)

	detail := attempts[0].ErrorDetail
	assert.True(t, utf8.ValidString(detail))
	assert.LessOrEqual(t, len(detail), maxErrorDetail)
	assert.Equal(t, strings.Repeat("é", maxErrorDetail/2), detail)
}

func TestTruncateDetail(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "abcdef", n: 3, want: "abc"},
		{in: "aé", n: 2, want: "a"},
		{in: "日本語", n: 7, want: "日本"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateDetail(tt.in, tt.n), tt.in)
	}
}

func TestPlan(t *testing.T) {
	o := newTestOrchestrator(t, Config{MaxChain: 2},
		&scriptedProvider{name: "alpha"}, &scriptedProvider{name: "beta"}, &scriptedProvider{name: "gamma"})

	t.Run("deduplicated and truncated", func(t *testing.T) {
		s := testSettings()
		s.FallbackProviders = []string{"Alpha", " beta ", "beta", "gamma"}
		steps, err := o.Plan(testMessage(), s)
		require.NoError(t, err)
		assert.Equal(t, []Step{{Provider: "alpha", Model: "alpha-large"}, {Provider: "beta", Model: "beta-1"}}, steps)
	})

	t.Run("cheapest provider is chosen before truncating", func(t *testing.T) {
		s := testSettings()
		s.CostOptimization = true
		steps, err := o.Plan(testMessage(), s)
		require.NoError(t, err)
		assert.Equal(t, []Step{{Provider: "gamma", Model: "gamma-1"}, {Provider: "alpha", Model: "alpha-large"}}, steps)
	})

	t.Run("fallback disabled", func(t *testing.T) {
		s := testSettings()
		s.EnableFallback = false
		steps, err := o.Plan(testMessage(), s)
		require.NoError(t, err)
		assert.Equal(t, []Step{{Provider: "alpha", Model: "alpha-large"}}, steps)
	})

	t.Run("model override applies to the primary only", func(t *testing.T) {
		s := testSettings()
		s.Model = "alpha-custom"
		steps, err := o.Plan(testMessage(), s)
		require.NoError(t, err)
		assert.Equal(t, "alpha-custom", steps[0].Model)
		assert.Equal(t, "beta-1", steps[1].Model)
	})

	t.Run("mode picks the catalog model", func(t *testing.T) {
		s := testSettings()
		s.Mode = models.ModeCheap
		s.EnableFallback = false
		steps, err := o.Plan(testMessage(), s)
		require.NoError(t, err)
		assert.Equal(t, "alpha-small", steps[0].Model)
	})
}

func TestGenerateReply_PromptCarriesPolicy(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", text: "hello"}
	o := newTestOrchestrator(t, Config{}, alpha)

	s := testSettings()
	s.Tone = "friendly"
	s.MaxTokens = 321
	s.Temperature = 0.2
	_, _, err := o.GenerateReply(context.Background(), testMessage(), s)
	require.NoError(t, err)

	require.Equal(t, 1, alpha.calls())
	assert.Equal(t, SystemInstruction("friendly", "alpha-large", models.ModeBalanced), alpha.prompts[0].System)
	assert.Contains(t, alpha.prompts[0].System, "Tone: Friendly.")
	assert.Contains(t, alpha.prompts[0].User, "are you open on Sunday?")
	assert.Equal(t, Options{Model: "alpha-large", MaxTokens: 321, Temperature: 0.2}, alpha.opts[0])
}

func TestGenerateReply_EmptyTextIsAFailure(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", text: "   "}
	beta := &scriptedProvider{name: "beta", text: "real answer"}
	o := newTestOrchestrator(t, Config{}, alpha, beta)

	s := testSettings()
	s.FallbackProviders = []string{"beta"}
	draft, attempts, err := o.GenerateReply(context.Background(), testMessage(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha:error", "beta:success"}, attemptSummary(attempts))
	assert.Equal(t, "real answer", draft.BodyText)
}

func TestSystemInstruction(t *testing.T) {
	a := SystemInstruction("Friendly", "alpha-large", models.ModePremium)
	b := SystemInstruction("friendly ", "alpha-large", models.ModePremium)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "anticipate the obvious follow-up questions")

	assert.Contains(t, SystemInstruction("", "m", models.ModeBalanced), "Tone: Professional.")
	assert.Contains(t, SystemInstruction("warm and casual", "m", models.ModeCheap), "Tone: Warm And Casual.")
	assert.Contains(t, SystemInstruction("", "deepseek-reasoner", models.ModeBalanced), "without your reasoning")
	assert.NotContains(t, SystemInstruction("", "gpt-4o", models.ModeBalanced), "without your reasoning")
}

func TestUserPrompt(t *testing.T) {
	msg := testMessage()
	msg.BodyText = ""
	msg.BodyHTML = "<p>Wo ist meine <b>Bestellung</b>?</p>"
	prompt := UserPrompt(msg)
	assert.Contains(t, prompt, "From: customer@example.com")
	assert.Contains(t, prompt, "**Bestellung**")

	msg.BodyText = strings.Repeat("x", maxPromptBody+100)
	assert.Contains(t, UserPrompt(msg), "[...]")

	msg.BodyText = "שלום, מתי ההזמנה תגיע?"
	assert.Contains(t, UserPrompt(msg), "Reply in Hebrew")
}

func TestIsSimple(t *testing.T) {
	tests := []struct {
		name string
		msg  *models.IncomingMessage
		want bool
	}{
		{name: "short question", msg: &models.IncomingMessage{Subject: "Hours", BodyText: "When do you open?"}, want: true},
		{name: "too long", msg: &models.IncomingMessage{BodyText: strings.Repeat("a ", 301)}, want: false},
		{name: "attachment", msg: &models.IncomingMessage{BodyText: "see file", HasAttachments: true}, want: false},
		{name: "keyword in subject", msg: &models.IncomingMessage{Subject: "Invoice 42", BodyText: "hello"}, want: false},
		{name: "keyword in body", msg: &models.IncomingMessage{BodyText: "Please cancel my plan ASAP"}, want: false},
		{name: "nil", msg: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSimple(tt.msg))
		})
	}
}

func TestOrchestrator_Test(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", text: "We open at 9."}
	beta := &scriptedProvider{name: "beta", err: errors.New("model beta-x does not exist")}
	o := newTestOrchestrator(t, Config{}, alpha, beta)

	s := models.DefaultAISettings("t1")

	gen, err := o.Test(context.Background(), "alpha", "", s)
	require.NoError(t, err)
	assert.Equal(t, "We open at 9.", gen.Text)

	_, err = o.Test(context.Background(), "beta", "beta-x", s)
	require.Error(t, err)
	assert.Equal(t, `Model "beta-x" not available on beta: model beta-x does not exist`, apperr.Describe(err))

	_, err = o.Test(context.Background(), "delta", "", s)
	assert.True(t, apperr.IsConfig(err))
}

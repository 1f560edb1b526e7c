package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsAs(t *testing.T) {
	base := errors.New("boom")
	wrapped := fmt.Errorf("sync account: %w", &ConnectionError{Protocol: "imap", Host: "imap.example.com", Err: base})

	assert.True(t, IsConnection(wrapped))
	assert.False(t, IsConfig(wrapped))
	assert.ErrorIs(t, wrapped, base)

	cfg := fmt.Errorf("generate: %w", NewConfigError("aiPrimary", "no provider configured"))
	assert.True(t, IsConfig(cfg))
	assert.Contains(t, cfg.Error(), "aiPrimary")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "nil is OK",
			err:      nil,
			contains: "OK",
		},
		{
			name:     "auth rejected",
			err:      &ConnectionError{Protocol: "imap", Host: "imap.example.com", Auth: true, Err: errors.New("NO LOGIN failed")},
			contains: "Authentication rejected by imap.example.com",
		},
		{
			name:     "timeout names the host",
			err:      &ConnectionError{Protocol: "smtp", Host: "smtp.example.com", Err: context.DeadlineExceeded},
			contains: "Timed out connecting to smtp.example.com",
		},
		{
			name:     "model not found",
			err:      &ProviderError{Provider: "openai", Model: "gpt-9", Outcome: "error", Err: errors.New("The model `gpt-9` does not exist")},
			contains: `Model "gpt-9" not available on openai`,
		},
		{
			name:     "rate limited",
			err:      &ProviderError{Provider: "gemini", Model: "flash", Outcome: "rate_limited", Err: errors.New("429")},
			contains: "rate limit",
		},
		{
			name:     "config error passes through",
			err:      NewConfigError("maxTokens", "must be positive"),
			contains: "maxTokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, Describe(tt.err), tt.contains)
		})
	}
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAISettings_Snapshot(t *testing.T) {
	settings := DefaultAISettings("t1")
	settings.FallbackProviders = []string{"deepseek", "gemini"}

	snap := settings.Snapshot()
	settings.FallbackProviders[0] = "claude"
	settings.Tone = "casual"

	assert.Equal(t, []string{"deepseek", "gemini"}, snap.FallbackProviders)
	assert.Equal(t, "professional", snap.Tone)
}

func TestMode_Valid(t *testing.T) {
	assert.True(t, ModeCheap.Valid())
	assert.True(t, ModePremium.Valid())
	assert.False(t, Mode("turbo").Valid())
	assert.False(t, Mode("").Valid())
}

func TestMessageState_Terminal(t *testing.T) {
	tests := []struct {
		state    MessageState
		terminal bool
	}{
		{StateNew, false},
		{StateProcessing, false},
		{StateReplied, true},
		{StateFailed, true},
		{StateSkipped, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

func TestDraftFromOutgoing(t *testing.T) {
	incoming := "in-1"
	draft := DraftFromOutgoing(OutgoingMessage{
		IncomingMessageID: &incoming,
		ToAddress:         "a@example.com",
		Subject:           "Re: hi",
		BodyText:          "hello",
		InReplyTo:         "<m1@example.com>",
		Provider:          "openai",
	})

	assert.Equal(t, "a@example.com", draft.To)
	assert.Equal(t, "<m1@example.com>", draft.InReplyTo)
	assert.Equal(t, "in-1", *draft.IncomingMessageID)
	assert.Equal(t, "openai", draft.Provider)
}

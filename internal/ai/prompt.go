package ai

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mailpilot/internal/models"
	"mailpilot/internal/utils"
)

const (
	defaultTone = "professional"
	// maxPromptBody caps how much of a long thread is sent to the model
	maxPromptBody = 8000
)

var titleCase = cases.Title(language.English)

var modeGuidance = map[models.Mode]string{
	models.ModeCheap:    "Keep the reply short: three sentences at most.",
	models.ModeBalanced: "Answer every question in the message clearly and concisely.",
	models.ModePremium:  "Answer thoroughly and anticipate the obvious follow-up questions.",
}

// SystemInstruction builds the system prompt. The output depends only on its
// arguments so a given configuration always produces the same bytes.
func SystemInstruction(tone, model string, mode models.Mode) string {
	tone = strings.ToLower(strings.TrimSpace(tone))
	if tone == "" {
		tone = defaultTone
	}
	guidance, ok := modeGuidance[mode]
	if !ok {
		guidance = modeGuidance[models.ModeBalanced]
	}

	var b strings.Builder
	b.WriteString("You are the email assistant of a business and reply to customers on its behalf.\n")
	fmt.Fprintf(&b, "Tone: %s.\n", titleCase.String(tone))
	b.WriteString(guidance + "\n")
	b.WriteString("Never invent order numbers, prices, dates or policies that are not in the message. ")
	b.WriteString("If information is missing, say that a colleague will follow up.\n")
	b.WriteString("Write only the reply body: no subject line and no placeholder signature.")
	if reasoningModel(model) {
		b.WriteString("\nReturn only the final reply, without your reasoning.")
	}
	return b.String()
}

// UserPrompt renders the customer's message for the model
func UserPrompt(msg *models.IncomingMessage) string {
	body := strings.TrimSpace(msg.BodyText)
	if body == "" {
		body = utils.HTMLToText(msg.BodyHTML)
	}
	if runes := []rune(body); len(runes) > maxPromptBody {
		body = string(runes[:maxPromptBody]) + "\n[...]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.FromAddress)
	fmt.Fprintf(&b, "Subject: %s\n\n", msg.Subject)
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString(utils.LanguageInstruction(utils.DetectLanguage(msg.Subject + "\n" + body)))
	return b.String()
}

func reasoningModel(model string) bool {
	model = strings.ToLower(model)
	return strings.Contains(model, "reasoner") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}

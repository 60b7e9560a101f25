package persist

import (
	"regexp"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

const redacted = "[REDACTED]"

var (
	emailPattern = regexp.MustCompile(`[\w._%+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	// 10 or 11 digits, optionally grouped by single spaces, dots or dashes.
	// Longer digit runs and VND prices are left alone.
	phonePattern = regexp.MustCompile(`(?:\+|\b)\d(?:[ .-]?\d){9,10}\b`)
)

// Redact masks email addresses and phone numbers in text.
func Redact(text string) string {
	if text == "" {
		return text
	}
	text = emailPattern.ReplaceAllString(text, redacted)
	return phonePattern.ReplaceAllString(text, redacted)
}

// redactPayload masks free text typed by the user or echoed by the agent.
func redactPayload(p domain.JobPayload) domain.JobPayload {
	switch v := p.(type) {
	case domain.DialogSummary:
		v.UserQuestion = Redact(v.UserQuestion)
		v.AgentAnswer = Redact(v.AgentAnswer)
		return v
	case domain.SearchRecord:
		v.UserQuestion = Redact(v.UserQuestion)
		return v
	default:
		return p
	}
}

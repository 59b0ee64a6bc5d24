package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTitleLen caps stored session titles.
const maxTitleLen = 80

// BuildSystemPrompt creates the assistant persona message for a chat turn.
// The prompt is injected at call time only and never persisted.
func BuildSystemPrompt(courseTitle string) string {
	base := `You are Study Better's AI study assistant. You help students understand their course materials: explain concepts clearly, work through examples step by step, and suggest how to revise effectively. Keep answers concise and focused on the student's question.`

	if courseTitle == "" {
		return base
	}
	return fmt.Sprintf("%s\n\nThe student is currently studying the course %q. Prefer examples and terminology from that course where relevant.", base, courseTitle)
}

// BuildTitlePrompt creates the prompt for deriving a short session title
// from the first exchange.
func BuildTitlePrompt(question, answer string) string {
	const answerPreview = 200
	answer = truncateRunes(answer, answerPreview)

	return fmt.Sprintf(`Generate a short title (3-5 words) for a study chat that starts like this.

Student: %s
Assistant: %s

Respond with ONLY the title, no quotes, no punctuation at the end.`, question, answer)
}

// CleanTitle normalizes a model-generated title: strips wrapping quotes,
// trailing periods and surrounding whitespace, and caps the length.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	// Models frequently quote titles despite instructions.
	title = strings.Trim(title, "\"'“”")
	title = strings.TrimRight(title, ".")
	title = strings.TrimSpace(title)

	if len(title) > maxTitleLen {
		title = strings.TrimSpace(truncateRunes(title, maxTitleLen))
	}
	return title
}

// truncateRunes shortens s to at most n bytes without splitting a
// multi-byte rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

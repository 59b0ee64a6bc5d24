package postgres

import "github.com/Zagas-life-dev/studybetterlib/internal/domain"

// chronological reverses a newest-first page of messages in place so
// callers receive oldest-first history. Both stores query with ORDER BY
// created_at DESC LIMIT n to bound the page to the most recent rows.
func chronological(messages []domain.ChatMessage) []domain.ChatMessage {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages
}

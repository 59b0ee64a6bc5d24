package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether the role is one of the canonical roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// TokenUsage holds provider-reported token counts for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatMessage is the canonical representation of one turn in a session,
// independent of which physical table layout it was read from.
type ChatMessage struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Usage     *TokenUsage    `json:"usage,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// LegacyMessageRecord mirrors a row of the legacy chat_messages layout,
// which distinguishes user from assistant with a boolean and carries no
// token accounting.
type LegacyMessageRecord struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	IsUser    bool      `json:"is_user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Canonical translates a legacy row into the canonical representation.
// The legacy layout has no system role, so the result is always user or
// assistant.
func (r LegacyMessageRecord) Canonical() ChatMessage {
	role := RoleAssistant
	if r.IsUser {
		role = RoleUser
	}
	return ChatMessage{
		ID:        r.ID,
		SessionID: r.SessionID,
		Role:      role,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

// Legacy translates a canonical message into the legacy row shape.
// System-role messages cannot be represented and are rejected with
// ErrRoleUnsupported. Usage and metadata are dropped: the legacy layout
// has no columns for them.
func (m ChatMessage) Legacy() (LegacyMessageRecord, error) {
	if m.Role == RoleSystem {
		return LegacyMessageRecord{}, ErrRoleUnsupported
	}
	return LegacyMessageRecord{
		ID:        m.ID,
		SessionID: m.SessionID,
		IsUser:    m.Role == RoleUser,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ChatStore is the schema-mode-specific persistence surface for chat.
// A store is bound to exactly one physical table layout; callers resolve
// one store per logical operation and use it for every read and write in
// that operation so a mid-operation migration cannot mix layouts.
type ChatStore interface {
	// Mode identifies which physical layout this store targets.
	Mode() SchemaMode

	// SupportsSystemRole reports whether system-role messages can be
	// persisted. False for the legacy layout.
	SupportsSystemRole() bool

	CreateSession(ctx context.Context, session *ChatSession) error
	// GetSession fetches a session scoped to its owner. Returns
	// ErrSessionNotFound when the session is absent or owned by another
	// user.
	GetSession(ctx context.Context, id, userID uuid.UUID) (*ChatSession, error)
	ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ChatSession, error)
	UpdateSession(ctx context.Context, session *ChatSession) error
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteSession(ctx context.Context, id uuid.UUID) error

	CreateMessage(ctx context.Context, message *ChatMessage) error
	// GetMessage fetches one message of a session in canonical form.
	// Returns ErrMessageNotFound when absent.
	GetMessage(ctx context.Context, sessionID, id uuid.UUID) (*ChatMessage, error)
	// ListRecentMessages returns the most recent limit messages of a
	// session in ascending creation order, translated to canonical form.
	ListRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]ChatMessage, error)
	// CountUserMessages counts persisted user-role messages in a session.
	CountUserMessages(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// ChatStoreSelector resolves the active ChatStore. HandleTurn calls this
// exactly once per turn and holds the result for the whole turn.
type ChatStoreSelector interface {
	Select(ctx context.Context) (ChatStore, error)
}

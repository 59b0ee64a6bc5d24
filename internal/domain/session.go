package domain

import (
	"time"

	"github.com/google/uuid"
)

// SchemaMode identifies which physical chat table layout is active.
type SchemaMode string

const (
	// SchemaModeCurrent is the ai_chat_sessions/ai_chat_messages layout:
	// role enum plus token-usage metadata.
	SchemaModeCurrent SchemaMode = "current"
	// SchemaModeLegacy is the chat_sessions/chat_messages layout: an
	// is_user boolean and nothing else.
	SchemaModeLegacy SchemaMode = "legacy"
)

// ChatSession represents one conversation owned by a single user.
type ChatSession struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	CourseID  *uuid.UUID `json:"course_id,omitempty"`
	Title     string     `json:"title"`
	Pinned    bool       `json:"pinned"`
	Tags      []string   `json:"tags"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SessionUpdate carries the mutable session fields for PATCH requests.
// Nil fields are left unchanged.
type SessionUpdate struct {
	Title  *string   `json:"title" validate:"omitempty,min=1,max=120"`
	Pinned *bool     `json:"pinned"`
	Tags   *[]string `json:"tags" validate:"omitempty,max=10,dive,min=1,max=40"`
}

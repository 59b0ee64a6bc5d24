package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Course is the course-catalog entry a chat session can be associated
// with. The chat core only ever reads the title, for the system prompt.
type Course struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// CourseRepository exposes the read surface the chat core needs.
type CourseRepository interface {
	GetTitle(ctx context.Context, id uuid.UUID) (string, error)
}

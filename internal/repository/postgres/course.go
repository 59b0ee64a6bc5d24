package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CourseRepository implements domain.CourseRepository
type CourseRepository struct {
	db *DB
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(db *DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetTitle fetches a course title for the chat system prompt.
func (r *CourseRepository) GetTitle(ctx context.Context, id uuid.UUID) (string, error) {
	query := `SELECT title FROM courses WHERE id = $1`

	var title string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrCourseNotFound
		}
		return "", fmt.Errorf("failed to get course title: %w", err)
	}
	return title, nil
}

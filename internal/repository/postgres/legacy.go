package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LegacyStore implements domain.ChatStore over the legacy layout:
// chat_sessions and chat_messages, where the sender is an is_user
// boolean and no token accounting exists. Rows are translated to and
// from the canonical representation at the store boundary.
type LegacyStore struct {
	db *DB
}

// NewLegacyStore creates a ChatStore for the legacy schema
func NewLegacyStore(db *DB) *LegacyStore {
	return &LegacyStore{db: db}
}

func (s *LegacyStore) Mode() domain.SchemaMode {
	return domain.SchemaModeLegacy
}

// SupportsSystemRole is false: the legacy layout only distinguishes user
// from assistant. System prompts are injected at completion time and
// never persisted, so this gap does not affect the turn path.
func (s *LegacyStore) SupportsSystemRole() bool {
	return false
}

func (s *LegacyStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, user_id, course_id, title, pinned, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.CourseID,
		session.Title,
		session.Pinned,
		session.Tags,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *LegacyStore) GetSession(ctx context.Context, id, userID uuid.UUID) (*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, course_id, title, pinned, tags, created_at, updated_at
		FROM chat_sessions
		WHERE id = $1 AND user_id = $2
	`
	var sess domain.ChatSession
	err := s.db.Pool.QueryRow(ctx, query, id, userID).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.CourseID,
		&sess.Title,
		&sess.Pinned,
		&sess.Tags,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

func (s *LegacyStore) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.ChatSession, error) {
	query := `
		SELECT id, user_id, course_id, title, pinned, tags, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY pinned DESC, updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ChatSession
	for rows.Next() {
		var sess domain.ChatSession
		if err := rows.Scan(
			&sess.ID,
			&sess.UserID,
			&sess.CourseID,
			&sess.Title,
			&sess.Pinned,
			&sess.Tags,
			&sess.CreatedAt,
			&sess.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *LegacyStore) UpdateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
		UPDATE chat_sessions
		SET title = $1, pinned = $2, tags = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := s.db.Pool.Exec(ctx, query,
		session.Title,
		session.Pinned,
		session.Tags,
		session.UpdatedAt,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *LegacyStore) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`
	_, err := s.db.Pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *LegacyStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM chat_sessions WHERE id = $1`
	_, err := s.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *LegacyStore) CreateMessage(ctx context.Context, message *domain.ChatMessage) error {
	rec, err := message.Legacy()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO chat_messages (id, session_id, is_user, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.Pool.Exec(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.IsUser,
		rec.Content,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *LegacyStore) GetMessage(ctx context.Context, sessionID, id uuid.UUID) (*domain.ChatMessage, error) {
	query := `
		SELECT id, session_id, is_user, content, created_at
		FROM chat_messages
		WHERE id = $1 AND session_id = $2
	`

	var rec domain.LegacyMessageRecord
	err := s.db.Pool.QueryRow(ctx, query, id, sessionID).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.IsUser,
		&rec.Content,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msg := rec.Canonical()
	return &msg, nil
}

func (s *LegacyStore) ListRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	query := `
		SELECT id, session_id, is_user, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var rec domain.LegacyMessageRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.IsUser,
			&rec.Content,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, rec.Canonical())
	}

	return chronological(messages), nil
}

func (s *LegacyStore) CountUserMessages(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1 AND is_user = true`

	var count int
	if err := s.db.Pool.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}
	return count, nil
}

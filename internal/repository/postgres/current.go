package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CurrentStore implements domain.ChatStore over the current layout:
// ai_chat_sessions and ai_chat_messages, with a role enum and token
// usage columns.
type CurrentStore struct {
	db *DB
}

// NewCurrentStore creates a ChatStore for the current schema
func NewCurrentStore(db *DB) *CurrentStore {
	return &CurrentStore{db: db}
}

func (s *CurrentStore) Mode() domain.SchemaMode {
	return domain.SchemaModeCurrent
}

func (s *CurrentStore) SupportsSystemRole() bool {
	return true
}

func (s *CurrentStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
		INSERT INTO ai_chat_sessions (id, user_id, course_id, title, pinned, tags, created_at, updated_at)
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

func (s *CurrentStore) GetSession(ctx context.Context, id, userID uuid.UUID) (*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, course_id, title, pinned, tags, created_at, updated_at
		FROM ai_chat_sessions
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

func (s *CurrentStore) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.ChatSession, error) {
	query := `
		SELECT id, user_id, course_id, title, pinned, tags, created_at, updated_at
		FROM ai_chat_sessions
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

func (s *CurrentStore) UpdateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
		UPDATE ai_chat_sessions
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

func (s *CurrentStore) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE ai_chat_sessions SET updated_at = $1 WHERE id = $2`
	_, err := s.db.Pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *CurrentStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM ai_chat_sessions WHERE id = $1`
	_, err := s.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *CurrentStore) CreateMessage(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		INSERT INTO ai_chat_messages (id, session_id, role, content, tokens, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var tokensJSON, metadataJSON []byte
	if message.Usage != nil {
		var err error
		tokensJSON, err = json.Marshal(message.Usage)
		if err != nil {
			return fmt.Errorf("failed to marshal token usage: %w", err)
		}
	}
	if message.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(message.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := s.db.Pool.Exec(ctx, query,
		message.ID,
		message.SessionID,
		string(message.Role),
		message.Content,
		tokensJSON,
		metadataJSON,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *CurrentStore) GetMessage(ctx context.Context, sessionID, id uuid.UUID) (*domain.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, tokens, metadata, created_at
		FROM ai_chat_messages
		WHERE id = $1 AND session_id = $2
	`

	var m domain.ChatMessage
	var roleStr string
	var tokensJSON, metadataJSON []byte

	err := s.db.Pool.QueryRow(ctx, query, id, sessionID).Scan(
		&m.ID,
		&m.SessionID,
		&roleStr,
		&m.Content,
		&tokensJSON,
		&metadataJSON,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	m.Role = domain.MessageRole(roleStr)

	if len(tokensJSON) > 0 {
		var usage domain.TokenUsage
		if err := json.Unmarshal(tokensJSON, &usage); err == nil {
			m.Usage = &usage
		}
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &m.Metadata)
	}

	return &m, nil
}

func (s *CurrentStore) ListRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, tokens, metadata, created_at
		FROM ai_chat_messages
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
		var m domain.ChatMessage
		var roleStr string
		var tokensJSON, metadataJSON []byte

		if err := rows.Scan(
			&m.ID,
			&m.SessionID,
			&roleStr,
			&m.Content,
			&tokensJSON,
			&metadataJSON,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(roleStr)

		if len(tokensJSON) > 0 {
			var usage domain.TokenUsage
			if err := json.Unmarshal(tokensJSON, &usage); err == nil {
				m.Usage = &usage
			}
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &m.Metadata)
		}

		messages = append(messages, m)
	}

	return chronological(messages), nil
}

func (s *CurrentStore) CountUserMessages(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM ai_chat_messages WHERE session_id = $1 AND role = 'user'`

	var count int
	if err := s.db.Pool.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}
	return count, nil
}

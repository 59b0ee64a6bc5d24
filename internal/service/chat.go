package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/config"
	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FallbackAssistantMessage is persisted and returned when the completion
// provider fails or times out. The transcript must stay coherent, so the
// user sees this instead of a raw error.
const FallbackAssistantMessage = "I'm sorry, I encountered an error while processing your message. Please try again."

// defaultSessionTitle is used until the first exchange produces one.
const defaultSessionTitle = "New Chat"

// sessionHistoryLimit bounds the history endpoint, separate from the
// tighter prompt window.
const sessionHistoryLimit = 50

// ChatService orchestrates chat turns over whichever schema mode is
// active. Concurrent turns on the same session are not serialized:
// creation timestamps are the only ordering guarantee and the last
// writer wins on updated_at and title.
type ChatService struct {
	stores     domain.ChatStoreSelector
	courses    domain.CourseRepository
	llmRouter  *llm.Router
	titleCache *redis.CourseTitleCache

	historyLimit      int
	maxTokens         int
	completionTimeout time.Duration
	titleTimeout      time.Duration
}

// NewChatService creates a new chat service. titleCache may be nil.
func NewChatService(
	stores domain.ChatStoreSelector,
	courses domain.CourseRepository,
	llmRouter *llm.Router,
	titleCache *redis.CourseTitleCache,
	cfg config.ChatConfig,
) *ChatService {
	return &ChatService{
		stores:            stores,
		courses:           courses,
		llmRouter:         llmRouter,
		titleCache:        titleCache,
		historyLimit:      cfg.HistoryLimit,
		maxTokens:         cfg.MaxTokens,
		completionTimeout: cfg.CompletionTimeout,
		titleTimeout:      cfg.TitleTimeout,
	}
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	SessionID        uuid.UUID          `json:"session_id"`
	UserMessage      domain.ChatMessage `json:"user_message"`
	AssistantMessage domain.ChatMessage `json:"assistant_message"`
	Fallback         bool               `json:"fallback"`
	ProviderError    string             `json:"provider_error,omitempty"`
}

// HandleTurn processes one user message: verifies ownership, persists
// the user turn, assembles the bounded history plus system prompt, calls
// the completion provider under a deadline, persists the reply (or the
// fallback on provider failure), titles the session after the first
// exchange and touches updated_at.
//
// The ChatStore is resolved exactly once at turn start so every read and
// write in the turn targets the same physical layout.
func (s *ChatService) HandleTurn(ctx context.Context, sessionID, userID uuid.UUID, userText string) (*TurnResult, error) {
	store, err := s.stores.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat store: %w", err)
	}

	session, err := store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	// Decided before the user turn is persisted: the session had its
	// first exchange iff no user message existed yet.
	firstTurn := false
	if count, err := store.CountUserMessages(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to count user messages, skipping titling")
	} else {
		firstTurn = count == 0
	}

	now := time.Now().UTC()
	userMsg := domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   userText,
		CreatedAt: now,
	}
	if err := store.CreateMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := store.ListRecentMessages(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHistoryUnavailable, err)
	}

	messages := s.assemblePrompt(ctx, session, history)

	result := &TurnResult{
		SessionID:   sessionID,
		UserMessage: userMsg,
	}

	resp, err := s.complete(ctx, messages)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("completion failed, persisting fallback")

		fallback := domain.ChatMessage{
			ID:        uuid.New(),
			SessionID: sessionID,
			Role:      domain.RoleAssistant,
			Content:   FallbackAssistantMessage,
			Metadata:  map[string]any{"error": true},
			CreatedAt: time.Now().UTC(),
		}
		if perr := store.CreateMessage(ctx, &fallback); perr != nil {
			return nil, fmt.Errorf("failed to save fallback message: %w", perr)
		}

		result.AssistantMessage = fallback
		result.Fallback = true
		result.ProviderError = err.Error()

		s.touchSession(ctx, store, sessionID)
		return result, nil
	}

	assistantMsg := domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
		Usage: &domain.TokenUsage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.TotalTokens,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateMessage(ctx, &assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}
	result.AssistantMessage = assistantMsg

	if firstTurn {
		s.generateSessionTitle(ctx, store, session, userText, resp.Content)
	}

	s.touchSession(ctx, store, sessionID)
	return result, nil
}

// assemblePrompt builds the completion message list: the synthesized
// system message (never persisted) followed by the bounded history.
func (s *ChatService) assemblePrompt(ctx context.Context, session *domain.ChatSession, history []domain.ChatMessage) []llm.Message {
	courseTitle := ""
	if session.CourseID != nil {
		courseTitle = s.courseTitle(ctx, *session.CourseID)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    string(domain.RoleSystem),
		Content: llm.BuildSystemPrompt(courseTitle),
	})
	for _, m := range history {
		messages = append(messages, llm.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

func (s *ChatService) complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	provider, err := s.llmRouter.GetProvider("")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.completionTimeout)
	defer cancel()

	return provider.Complete(ctx, llm.Request{
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: 0.7,
	}, "")
}

// courseTitle resolves a course title, preferring the cache. Failures
// are logged and produce an untitled prompt rather than failing the turn.
func (s *ChatService) courseTitle(ctx context.Context, courseID uuid.UUID) string {
	if s.titleCache != nil {
		if title, ok, err := s.titleCache.Get(ctx, courseID); err == nil && ok {
			return title
		}
	}

	title, err := s.courses.GetTitle(ctx, courseID)
	if err != nil {
		if !errors.Is(err, domain.ErrCourseNotFound) {
			log.Error().Err(err).Str("course_id", courseID.String()).Msg("failed to fetch course title")
		}
		return ""
	}

	if s.titleCache != nil {
		if err := s.titleCache.Set(ctx, courseID, title); err != nil {
			log.Warn().Err(err).Msg("failed to cache course title")
		}
	}
	return title
}

// generateSessionTitle derives a short title from the first exchange via
// a second, independent completion call. Failures are logged and
// swallowed: titling must never fail the turn.
func (s *ChatService) generateSessionTitle(ctx context.Context, store domain.ChatStore, session *domain.ChatSession, question, answer string) {
	provider, err := s.llmRouter.GetProvider("")
	if err != nil {
		log.Error().Err(err).Msg("failed to get provider for title generation")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.titleTimeout)
	defer cancel()

	resp, err := provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: string(domain.RoleUser), Content: llm.BuildTitlePrompt(question, answer)},
		},
		MaxTokens:   32,
		Temperature: 0.3,
	}, "")
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to generate session title")
		return
	}

	title := llm.CleanTitle(resp.Content)
	if title == "" {
		return
	}

	session.Title = title
	session.UpdatedAt = time.Now().UTC()
	if err := store.UpdateSession(ctx, session); err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to update session title")
		return
	}

	log.Info().Str("session_id", session.ID.String()).Str("title", title).Msg("updated session title")
}

// touchSession bumps updated_at. The reply already exists by the time
// this runs, so a failure here is logged instead of failing the turn.
func (s *ChatService) touchSession(ctx context.Context, store domain.ChatStore, sessionID uuid.UUID) {
	if err := store.TouchSession(ctx, sessionID, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to touch session")
	}
}

// CreateSession creates a new chat session, optionally tied to a course.
func (s *ChatService) CreateSession(ctx context.Context, userID uuid.UUID, courseID *uuid.UUID, title string) (*domain.ChatSession, error) {
	store, err := s.stores.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat store: %w", err)
	}

	if title == "" {
		title = defaultSessionTitle
	}

	now := time.Now().UTC()
	session := &domain.ChatSession{
		ID:        uuid.New(),
		UserID:    userID,
		CourseID:  courseID,
		Title:     title,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ListSessions lists the caller's sessions, pinned first.
func (s *ChatService) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.ChatSession, error) {
	store, err := s.stores.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat store: %w", err)
	}
	return store.ListSessions(ctx, userID, limit, offset)
}

// GetSession fetches one owned session.
func (s *ChatService) GetSession(ctx context.Context, sessionID, userID uuid.UUID) (*domain.ChatSession, error) {
	store, err := s.stores.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat store: %w", err)
	}
	return store.GetSession(ctx, sessionID, userID)
}

// UpdateSession applies a partial update to an owned session.
func (s *ChatService) UpdateSession(ctx context.Context, sessionID, userID uuid.UUID, update domain.SessionUpdate) (*domain.ChatSession, error) {
	store, err := s.stores.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat store: %w", err)
	}

	session, err := store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		session.Title = *update.Title
	}
	if update.Pinned != nil {
		session.Pinned = *update.Pinned
	}
	if update.Tags != nil {
		session.Tags = *update.Tags
	}
	session.UpdatedAt = time.Now().UTC()

	if err := store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

// DeleteSession deletes an owned session.
func (s *ChatService) DeleteSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	store, err := s.stores.Select(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve chat store: %w", err)
	}

	if _, err := store.GetSession(ctx, sessionID, userID); err != nil {
		return err
	}
	return store.DeleteSession(ctx, sessionID)
}

// GetSessionHistory returns recent canonical messages of an owned session.
func (s *ChatService) GetSessionHistory(ctx context.Context, sessionID, userID uuid.UUID) ([]domain.ChatMessage, error) {
	store, err := s.stores.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat store: %w", err)
	}

	if _, err := store.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	messages, err := store.ListRecentMessages(ctx, sessionID, sessionHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHistoryUnavailable, err)
	}
	return messages, nil
}

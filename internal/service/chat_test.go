package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestChatService(selector domain.ChatStoreSelector, courses domain.CourseRepository, provider llm.Provider) *ChatService {
	router := llm.NewRouter("mock")
	if provider != nil {
		router.RegisterProvider(provider)
	}
	return &ChatService{
		stores:            selector,
		courses:           courses,
		llmRouter:         router,
		historyLimit:      12,
		maxTokens:         1024,
		completionTimeout: 5 * time.Second,
		titleTimeout:      5 * time.Second,
	}
}

func configuredProvider() *MockLLMProvider {
	p := new(MockLLMProvider)
	p.On("Name").Return("mock")
	p.On("IsConfigured").Return(true)
	return p
}

func TestChatService_HandleTurn_Success(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	provider := configuredProvider()
	svc := newTestChatService(selector, new(MockCourseRepository), provider)

	session := &domain.ChatSession{ID: sessionID, UserID: userID, Title: "New Chat"}

	selector.On("Select", mock.Anything).Return(store, nil).Once()
	store.On("GetSession", mock.Anything, sessionID, userID).Return(session, nil)
	store.On("CountUserMessages", mock.Anything, sessionID).Return(3, nil)

	var persisted []domain.ChatMessage
	store.On("CreateMessage", mock.Anything, mock.AnythingOfType("*domain.ChatMessage")).
		Run(func(args mock.Arguments) {
			persisted = append(persisted, *args.Get(1).(*domain.ChatMessage))
		}).Return(nil)

	history := []domain.ChatMessage{
		{SessionID: sessionID, Role: domain.RoleUser, Content: "What is entropy?"},
		{SessionID: sessionID, Role: domain.RoleAssistant, Content: "A measure of disorder."},
		{SessionID: sessionID, Role: domain.RoleUser, Content: "Give an example"},
	}
	store.On("ListRecentMessages", mock.Anything, sessionID, 12).Return(history, nil)

	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		// System prompt synthesized per turn, then the stored history.
		return len(req.Messages) == len(history)+1 &&
			req.Messages[0].Role == "system" &&
			req.Messages[1].Content == "What is entropy?"
	}), "").Return(&llm.Response{
		Content:          "Ice melting in a warm room.",
		PromptTokens:     42,
		CompletionTokens: 8,
		TotalTokens:      50,
	}, nil)

	store.On("TouchSession", mock.Anything, sessionID, mock.AnythingOfType("time.Time")).Return(nil)

	result, err := svc.HandleTurn(ctx, sessionID, userID, "Give an example")
	assert.NoError(t, err)
	assert.False(t, result.Fallback)
	assert.Equal(t, "Ice melting in a warm room.", result.AssistantMessage.Content)
	assert.NotNil(t, result.AssistantMessage.Usage)
	assert.Equal(t, 50, result.AssistantMessage.Usage.TotalTokens)

	// Both turns persisted through the same store, user first.
	assert.Len(t, persisted, 2)
	assert.Equal(t, domain.RoleUser, persisted[0].Role)
	assert.Equal(t, domain.RoleAssistant, persisted[1].Role)

	// Not the first exchange, so no titling call happened.
	store.AssertNotCalled(t, "UpdateSession", mock.Anything, mock.Anything)
	selector.AssertNumberOfCalls(t, "Select", 1)
	store.AssertExpectations(t)
}

func TestChatService_HandleTurn_FirstTurnTitling(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	provider := configuredProvider()
	svc := newTestChatService(selector, new(MockCourseRepository), provider)

	session := &domain.ChatSession{ID: sessionID, UserID: userID, Title: "New Chat"}

	selector.On("Select", mock.Anything).Return(store, nil)
	store.On("GetSession", mock.Anything, sessionID, userID).Return(session, nil)
	store.On("CountUserMessages", mock.Anything, sessionID).Return(0, nil)
	store.On("CreateMessage", mock.Anything, mock.Anything).Return(nil)
	store.On("ListRecentMessages", mock.Anything, sessionID, 12).Return([]domain.ChatMessage{
		{SessionID: sessionID, Role: domain.RoleUser, Content: "Explain photosynthesis"},
	}, nil)
	store.On("TouchSession", mock.Anything, sessionID, mock.Anything).Return(nil)

	// First call answers the question, second call titles the session.
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.Messages) > 1
	}), "").Return(&llm.Response{Content: "Plants convert light into sugar."}, nil).Once()
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.Messages) == 1
	}), "").Return(&llm.Response{Content: `"Photosynthesis Basics."`}, nil).Once()

	store.On("UpdateSession", mock.Anything, mock.MatchedBy(func(s *domain.ChatSession) bool {
		return s.Title == "Photosynthesis Basics"
	})).Return(nil).Once()

	result, err := svc.HandleTurn(ctx, sessionID, userID, "Explain photosynthesis")
	assert.NoError(t, err)
	assert.False(t, result.Fallback)

	store.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestChatService_HandleTurn_TitleErrorSwallowed(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	provider := configuredProvider()
	svc := newTestChatService(selector, new(MockCourseRepository), provider)

	session := &domain.ChatSession{ID: sessionID, UserID: userID, Title: "New Chat"}

	selector.On("Select", mock.Anything).Return(store, nil)
	store.On("GetSession", mock.Anything, sessionID, userID).Return(session, nil)
	store.On("CountUserMessages", mock.Anything, sessionID).Return(0, nil)
	store.On("CreateMessage", mock.Anything, mock.Anything).Return(nil)
	store.On("ListRecentMessages", mock.Anything, sessionID, 12).Return([]domain.ChatMessage{
		{SessionID: sessionID, Role: domain.RoleUser, Content: "hi"},
	}, nil)
	store.On("TouchSession", mock.Anything, sessionID, mock.Anything).Return(nil)

	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.Messages) > 1
	}), "").Return(&llm.Response{Content: "Hello!"}, nil).Once()
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.Messages) == 1
	}), "").Return(nil, errors.New("title model unavailable")).Once()

	result, err := svc.HandleTurn(ctx, sessionID, userID, "hi")
	assert.NoError(t, err)
	assert.Equal(t, "Hello!", result.AssistantMessage.Content)

	store.AssertNotCalled(t, "UpdateSession", mock.Anything, mock.Anything)
}

func TestChatService_HandleTurn_ProviderFailureFallback(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	provider := configuredProvider()
	svc := newTestChatService(selector, new(MockCourseRepository), provider)

	session := &domain.ChatSession{ID: sessionID, UserID: userID, Title: "New Chat"}

	selector.On("Select", mock.Anything).Return(store, nil)
	store.On("GetSession", mock.Anything, sessionID, userID).Return(session, nil)
	store.On("CountUserMessages", mock.Anything, sessionID).Return(2, nil)

	var persisted []domain.ChatMessage
	store.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = append(persisted, *args.Get(1).(*domain.ChatMessage))
		}).Return(nil)
	store.On("ListRecentMessages", mock.Anything, sessionID, 12).Return([]domain.ChatMessage{
		{SessionID: sessionID, Role: domain.RoleUser, Content: "hello?"},
	}, nil)
	store.On("TouchSession", mock.Anything, sessionID, mock.Anything).Return(nil)

	provider.On("Complete", mock.Anything, mock.Anything, "").
		Return(nil, context.DeadlineExceeded)

	result, err := svc.HandleTurn(ctx, sessionID, userID, "hello?")
	assert.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, FallbackAssistantMessage, result.AssistantMessage.Content)
	assert.NotEmpty(t, result.ProviderError)

	// User message plus persisted fallback: the transcript stays coherent.
	assert.Len(t, persisted, 2)
	assert.Equal(t, domain.RoleUser, persisted[0].Role)
	assert.Equal(t, domain.RoleAssistant, persisted[1].Role)
	assert.Equal(t, FallbackAssistantMessage, persisted[1].Content)
	assert.Equal(t, true, persisted[1].Metadata["error"])

	// The failed turn still bumps session recency.
	store.AssertCalled(t, "TouchSession", mock.Anything, sessionID, mock.Anything)
}

func TestChatService_HandleTurn_OwnershipDenied(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	svc := newTestChatService(selector, new(MockCourseRepository), configuredProvider())

	selector.On("Select", mock.Anything).Return(store, nil)
	store.On("GetSession", mock.Anything, sessionID, userID).Return(nil, domain.ErrSessionNotFound)

	_, err := svc.HandleTurn(ctx, sessionID, userID, "let me in")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Nothing written for a session the caller does not own.
	store.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "TouchSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestChatService_HandleTurn_HistoryUnavailable(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	svc := newTestChatService(selector, new(MockCourseRepository), configuredProvider())

	session := &domain.ChatSession{ID: sessionID, UserID: userID}

	selector.On("Select", mock.Anything).Return(store, nil)
	store.On("GetSession", mock.Anything, sessionID, userID).Return(session, nil)
	store.On("CountUserMessages", mock.Anything, sessionID).Return(1, nil)
	store.On("CreateMessage", mock.Anything, mock.Anything).Return(nil)
	store.On("ListRecentMessages", mock.Anything, sessionID, 12).
		Return([]domain.ChatMessage{}, errors.New("connection reset"))

	_, err := svc.HandleTurn(ctx, sessionID, userID, "hi")
	assert.ErrorIs(t, err, domain.ErrHistoryUnavailable)
}

func TestChatService_HandleTurn_CourseTitleInPrompt(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()
	courseID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	courses := new(MockCourseRepository)
	provider := configuredProvider()
	svc := newTestChatService(selector, courses, provider)

	session := &domain.ChatSession{ID: sessionID, UserID: userID, CourseID: &courseID}

	selector.On("Select", mock.Anything).Return(store, nil)
	store.On("GetSession", mock.Anything, sessionID, userID).Return(session, nil)
	store.On("CountUserMessages", mock.Anything, sessionID).Return(4, nil)
	store.On("CreateMessage", mock.Anything, mock.Anything).Return(nil)
	store.On("ListRecentMessages", mock.Anything, sessionID, 12).Return([]domain.ChatMessage{
		{SessionID: sessionID, Role: domain.RoleUser, Content: "next topic?"},
	}, nil)
	store.On("TouchSession", mock.Anything, sessionID, mock.Anything).Return(nil)

	courses.On("GetTitle", mock.Anything, courseID).Return("Linear Algebra I", nil)

	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Messages[0].Role == "system" &&
			strings.Contains(req.Messages[0].Content, "Linear Algebra I")
	}), "").Return(&llm.Response{Content: "Eigenvalues."}, nil)

	result, err := svc.HandleTurn(ctx, sessionID, userID, "next topic?")
	assert.NoError(t, err)
	assert.Equal(t, "Eigenvalues.", result.AssistantMessage.Content)
	courses.AssertExpectations(t)
}

func TestChatService_HandleTurn_SelectorErrorFailsTurn(t *testing.T) {
	selector := new(MockStoreSelector)
	svc := newTestChatService(selector, new(MockCourseRepository), configuredProvider())

	selector.On("Select", mock.Anything).Return(nil, errors.New("database down"))

	_, err := svc.HandleTurn(context.Background(), uuid.New(), uuid.New(), "hi")
	assert.Error(t, err)
}

func TestChatService_CreateSession(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	svc := newTestChatService(selector, new(MockCourseRepository), nil)

	selector.On("Select", mock.Anything).Return(store, nil)

	t.Run("success", func(t *testing.T) {
		store.On("CreateSession", ctx, mock.AnythingOfType("*domain.ChatSession")).Return(nil)

		session, err := svc.CreateSession(ctx, userID, nil, "Exam prep")
		assert.NoError(t, err)
		assert.NotNil(t, session)
		assert.Equal(t, "Exam prep", session.Title)
		assert.Equal(t, userID, session.UserID)

		store.AssertExpectations(t)
	})

	t.Run("default title", func(t *testing.T) {
		store.On("CreateSession", ctx, mock.AnythingOfType("*domain.ChatSession")).Return(nil)

		session, err := svc.CreateSession(ctx, userID, nil, "")
		assert.NoError(t, err)
		assert.Equal(t, "New Chat", session.Title)
	})
}

func TestChatService_UpdateSession(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	svc := newTestChatService(selector, new(MockCourseRepository), nil)

	selector.On("Select", mock.Anything).Return(store, nil)

	existing := &domain.ChatSession{
		ID:     sessionID,
		UserID: userID,
		Title:  "Old Title",
		Tags:   []string{"math"},
	}
	store.On("GetSession", ctx, sessionID, userID).Return(existing, nil)

	pinned := true
	newTitle := "Midterm Review"
	store.On("UpdateSession", ctx, mock.MatchedBy(func(s *domain.ChatSession) bool {
		return s.Title == newTitle && s.Pinned && len(s.Tags) == 1
	})).Return(nil)

	updated, err := svc.UpdateSession(ctx, sessionID, userID, domain.SessionUpdate{
		Title:  &newTitle,
		Pinned: &pinned,
	})
	assert.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.True(t, updated.Pinned)
	assert.Equal(t, []string{"math"}, updated.Tags)
}

func TestChatService_DeleteSession_NotOwned(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	sessionID := uuid.New()

	store := new(MockChatStore)
	selector := new(MockStoreSelector)
	svc := newTestChatService(selector, new(MockCourseRepository), nil)

	selector.On("Select", mock.Anything).Return(store, nil)
	store.On("GetSession", ctx, sessionID, userID).Return(nil, domain.ErrSessionNotFound)

	err := svc.DeleteSession(ctx, sessionID, userID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	store.AssertNotCalled(t, "DeleteSession", mock.Anything, mock.Anything)
}

package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed hands out one payload channel per Listen call and records the
// channels it was asked to listen on.
type fakeFeed struct {
	mu       sync.Mutex
	channels []string
	payloads chan string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{payloads: make(chan string, 16)}
}

func (f *fakeFeed) Listen(ctx context.Context, channel string) (<-chan string, error) {
	f.mu.Lock()
	f.channels = append(f.channels, channel)
	f.mu.Unlock()

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-f.payloads:
				if !ok {
					return
				}
				out <- p
			}
		}
	}()
	return out, nil
}

func (f *fakeFeed) listenedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

// fakeStore backs message lookups with an in-memory map.
type fakeStore struct {
	mode     domain.SchemaMode
	mu       sync.Mutex
	messages map[uuid.UUID]domain.ChatMessage
}

func newFakeStore(mode domain.SchemaMode) *fakeStore {
	return &fakeStore{mode: mode, messages: make(map[uuid.UUID]domain.ChatMessage)}
}

func (s *fakeStore) put(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
}

func (s *fakeStore) Mode() domain.SchemaMode { return s.mode }
func (s *fakeStore) SupportsSystemRole() bool {
	return s.mode == domain.SchemaModeCurrent
}

func (s *fakeStore) GetMessage(ctx context.Context, sessionID, id uuid.UUID) (*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok || msg.SessionID != sessionID {
		return nil, domain.ErrMessageNotFound
	}
	return &msg, nil
}

func (s *fakeStore) CreateSession(context.Context, *domain.ChatSession) error { return nil }
func (s *fakeStore) GetSession(context.Context, uuid.UUID, uuid.UUID) (*domain.ChatSession, error) {
	return nil, domain.ErrSessionNotFound
}
func (s *fakeStore) ListSessions(context.Context, uuid.UUID, int, int) ([]domain.ChatSession, error) {
	return nil, nil
}
func (s *fakeStore) UpdateSession(context.Context, *domain.ChatSession) error    { return nil }
func (s *fakeStore) TouchSession(context.Context, uuid.UUID, time.Time) error    { return nil }
func (s *fakeStore) DeleteSession(context.Context, uuid.UUID) error              { return nil }
func (s *fakeStore) CreateMessage(context.Context, *domain.ChatMessage) error    { return nil }
func (s *fakeStore) CountUserMessages(context.Context, uuid.UUID) (int, error)   { return 0, nil }
func (s *fakeStore) ListRecentMessages(context.Context, uuid.UUID, int) ([]domain.ChatMessage, error) {
	return nil, nil
}

// fakeResolver returns a swappable schema mode and its store.
type fakeResolver struct {
	mu    sync.Mutex
	mode  domain.SchemaMode
	store *fakeStore
}

func (r *fakeResolver) Mode(ctx context.Context) domain.SchemaMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *fakeResolver) Select(ctx context.Context) (domain.ChatStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store, nil
}

func (r *fakeResolver) set(mode domain.SchemaMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

func payloadFor(msg domain.ChatMessage) string {
	return fmt.Sprintf(`{"id":%q,"session_id":%q}`, msg.ID, msg.SessionID)
}

func TestNotifier_DeliversCurrentModeEvents(t *testing.T) {
	feed := newFakeFeed()
	store := newFakeStore(domain.SchemaModeCurrent)
	resolver := &fakeResolver{mode: domain.SchemaModeCurrent, store: store}
	notifier := NewNotifier(feed, resolver, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	sessionID := uuid.New()
	events, unsubscribe := notifier.Subscribe(sessionID)
	defer unsubscribe()

	msg := domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   "hello",
		Usage:     &domain.TokenUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		CreatedAt: time.Now().UTC(),
	}
	store.put(msg)
	feed.payloads <- payloadFor(msg)

	select {
	case event := <-events:
		assert.Equal(t, sessionID, event.SessionID)
		assert.Equal(t, msg.ID, event.Message.ID)
		assert.Equal(t, domain.RoleAssistant, event.Message.Role)
		assert.Equal(t, "hello", event.Message.Content)
		require.NotNil(t, event.Message.Usage)
		assert.Equal(t, 12, event.Message.Usage.TotalTokens)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	assert.Equal(t, []string{postgres.ChannelCurrentEvents}, feed.listenedChannels())
}

func TestNotifier_LegacyModeUsesLegacyChannel(t *testing.T) {
	feed := newFakeFeed()
	store := newFakeStore(domain.SchemaModeLegacy)
	resolver := &fakeResolver{mode: domain.SchemaModeLegacy, store: store}
	notifier := NewNotifier(feed, resolver, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	sessionID := uuid.New()
	events, unsubscribe := notifier.Subscribe(sessionID)
	defer unsubscribe()

	// Legacy rows arrive already translated by the store boundary: a
	// canonical role and no usage.
	msg := domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   "hi",
		CreatedAt: time.Now().UTC(),
	}
	store.put(msg)
	feed.payloads <- payloadFor(msg)

	select {
	case event := <-events:
		assert.Equal(t, domain.RoleUser, event.Message.Role)
		assert.Equal(t, "hi", event.Message.Content)
		assert.Nil(t, event.Message.Usage)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	assert.Equal(t, []string{postgres.ChannelLegacyEvents}, feed.listenedChannels())
}

func TestNotifier_DeliversOversizedMessages(t *testing.T) {
	feed := newFakeFeed()
	store := newFakeStore(domain.SchemaModeCurrent)
	resolver := &fakeResolver{mode: domain.SchemaModeCurrent, store: store}
	notifier := NewNotifier(feed, resolver, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	sessionID := uuid.New()
	events, unsubscribe := notifier.Subscribe(sessionID)
	defer unsubscribe()

	// Content far beyond the 8000-byte NOTIFY cap: only identifiers
	// travel through the notification, so delivery must stay intact.
	content := strings.Repeat("a", 16000)
	msg := domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	store.put(msg)

	payload := payloadFor(msg)
	require.Less(t, len(payload), 8000)
	feed.payloads <- payload

	select {
	case event := <-events:
		assert.Equal(t, content, event.Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNotifier_ResubscribesOnModeChange(t *testing.T) {
	feed := newFakeFeed()
	resolver := &fakeResolver{mode: domain.SchemaModeLegacy, store: newFakeStore(domain.SchemaModeLegacy)}
	notifier := NewNotifier(feed, resolver, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	// Let the first subscription establish, then flip the mode.
	assert.Eventually(t, func() bool {
		return len(feed.listenedChannels()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resolver.set(domain.SchemaModeCurrent)

	assert.Eventually(t, func() bool {
		chans := feed.listenedChannels()
		return len(chans) >= 2 && chans[len(chans)-1] == postgres.ChannelCurrentEvents
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscriptionScopedToSession(t *testing.T) {
	feed := newFakeFeed()
	store := newFakeStore(domain.SchemaModeCurrent)
	resolver := &fakeResolver{mode: domain.SchemaModeCurrent, store: store}
	notifier := NewNotifier(feed, resolver, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	mine := uuid.New()
	other := uuid.New()
	events, unsubscribe := notifier.Subscribe(mine)
	defer unsubscribe()

	theirs := domain.ChatMessage{ID: uuid.New(), SessionID: other, Role: domain.RoleAssistant, Content: "not yours"}
	ours := domain.ChatMessage{ID: uuid.New(), SessionID: mine, Role: domain.RoleAssistant, Content: "yours"}
	store.put(theirs)
	store.put(ours)

	feed.payloads <- payloadFor(theirs)
	feed.payloads <- payloadFor(ours)

	select {
	case event := <-events:
		assert.Equal(t, "yours", event.Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNotifier_UnsubscribeStopsDelivery(t *testing.T) {
	store := newFakeStore(domain.SchemaModeCurrent)
	notifier := NewNotifier(newFakeFeed(), &fakeResolver{mode: domain.SchemaModeCurrent, store: store}, time.Hour)

	sessionID := uuid.New()
	events, unsubscribe := notifier.Subscribe(sessionID)
	unsubscribe()

	notifier.broadcast(MessageEvent{SessionID: sessionID})

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("received event after unsubscribe")
		}
	default:
		// Nothing delivered.
	}
}

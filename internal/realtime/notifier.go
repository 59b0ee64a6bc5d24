package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Feed streams raw notification payloads from a database channel.
// Satisfied by postgres.ChangeFeed.
type Feed interface {
	Listen(ctx context.Context, channel string) (<-chan string, error)
}

// StoreResolver reports the active schema mode and hands out the
// matching ChatStore. Satisfied by postgres.SchemaDetector.
type StoreResolver interface {
	Mode(ctx context.Context) domain.SchemaMode
	Select(ctx context.Context) (domain.ChatStore, error)
}

// MessageEvent is a new-message notification in canonical form,
// regardless of which table layout produced it.
type MessageEvent struct {
	SessionID uuid.UUID          `json:"session_id"`
	Message   domain.ChatMessage `json:"message"`
}

// changePayload is the compact notification the insert triggers emit.
// NOTIFY payloads are capped at 8000 bytes, so only identifiers travel
// over the wire and the row is fetched through the active store.
type changePayload struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
}

// Notifier bridges database change notifications to in-process
// subscribers. It listens on the notify channel matching the active
// schema mode, re-probes the mode periodically and resubscribes when it
// changes, so a migration during operation at most produces a short gap
// in delivery rather than a stream of rows in the wrong shape.
type Notifier struct {
	feed    Feed
	stores  StoreResolver
	reprobe time.Duration

	mu     sync.Mutex
	nextID int
	subs   map[uuid.UUID]map[int]chan MessageEvent
}

// NewNotifier creates a notifier. reprobe is the mode re-check interval.
func NewNotifier(feed Feed, stores StoreResolver, reprobe time.Duration) *Notifier {
	return &Notifier{
		feed:    feed,
		stores:  stores,
		reprobe: reprobe,
		subs:    make(map[uuid.UUID]map[int]chan MessageEvent),
	}
}

// Subscribe registers for message events of one session. The returned
// cancel func must be called when the subscriber goes away.
func (n *Notifier) Subscribe(sessionID uuid.UUID) (<-chan MessageEvent, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++

	ch := make(chan MessageEvent, 16)
	if n.subs[sessionID] == nil {
		n.subs[sessionID] = make(map[int]chan MessageEvent)
	}
	n.subs[sessionID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if chans, ok := n.subs[sessionID]; ok {
			delete(chans, id)
			if len(chans) == 0 {
				delete(n.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Run listens and dispatches until ctx is cancelled. On subscription
// loss it backs off briefly and reconnects.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		mode := n.stores.Mode(ctx)
		channel := channelForMode(mode)

		subCtx, cancel := context.WithCancel(ctx)
		payloads, err := n.feed.Listen(subCtx, channel)
		if err != nil {
			cancel()
			log.Error().Err(err).Str("channel", channel).Msg("failed to subscribe to change feed")
			if !sleepCtx(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		log.Info().Str("channel", channel).Str("mode", string(mode)).Msg("listening for chat events")
		n.consume(subCtx, mode, payloads)
		cancel()
	}
}

// consume dispatches payloads until the feed closes, the schema mode
// changes, or ctx is cancelled.
func (n *Notifier) consume(ctx context.Context, mode domain.SchemaMode, payloads <-chan string) {
	ticker := time.NewTicker(n.reprobe)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloads:
			if !ok {
				return
			}
			n.dispatch(ctx, payload)
		case <-ticker.C:
			if n.stores.Mode(ctx) != mode {
				log.Info().Str("mode", string(mode)).Msg("schema mode changed, resubscribing")
				return
			}
		}
	}
}

// dispatch resolves a compact payload into a full message and fans it
// out. Sessions with no subscribers skip the row fetch.
func (n *Notifier) dispatch(ctx context.Context, payload string) {
	var p changePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		log.Warn().Err(err).Msg("failed to decode chat event payload")
		return
	}

	if !n.hasSubscribers(p.SessionID) {
		return
	}

	store, err := n.stores.Select(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve chat store for event")
		return
	}

	msg, err := store.GetMessage(ctx, p.SessionID, p.ID)
	if err != nil {
		log.Warn().Err(err).
			Str("message_id", p.ID.String()).
			Str("session_id", p.SessionID.String()).
			Msg("failed to fetch notified message")
		return
	}

	n.broadcast(MessageEvent{SessionID: p.SessionID, Message: *msg})
}

func (n *Notifier) hasSubscribers(sessionID uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[sessionID]) > 0
}

func (n *Notifier) broadcast(event MessageEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop rather than stall the feed.
		}
	}
}

func channelForMode(mode domain.SchemaMode) string {
	if mode == domain.SchemaModeCurrent {
		return postgres.ChannelCurrentEvents
	}
	return postgres.ChannelLegacyEvents
}

// sleepCtx sleeps for d or until ctx is done. Reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

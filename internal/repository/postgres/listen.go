package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Notify channels populated by the triggers in migrations. One channel
// per physical layout, so a subscriber watching the wrong layout after a
// migration simply goes quiet instead of receiving untranslatable rows.
const (
	ChannelCurrentEvents = "ai_chat_events"
	ChannelLegacyEvents  = "chat_events"
)

// ChangeFeed delivers row-level change payloads via LISTEN/NOTIFY. Each
// Listen call takes a dedicated connection out of the pool for the
// lifetime of the subscription.
type ChangeFeed struct {
	db *DB
}

// NewChangeFeed creates a change feed over the connection pool
func NewChangeFeed(db *DB) *ChangeFeed {
	return &ChangeFeed{db: db}
}

// Listen subscribes to a notify channel and streams raw JSON payloads
// until ctx is cancelled. The returned channel is closed on cancellation
// or connection loss.
func (f *ChangeFeed) Listen(ctx context.Context, channel string) (<-chan string, error) {
	poolConn, err := f.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}

	// The connection is held until the subscription ends; hijack it so
	// the pool does not reclaim it mid-listen.
	conn := poolConn.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	payloads := make(chan string, 64)

	go func() {
		defer close(payloads)
		defer conn.Close(context.Background())

		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Str("channel", channel).Msg("notification wait failed")
				}
				return
			}

			select {
			case payloads <- notification.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return payloads, nil
}

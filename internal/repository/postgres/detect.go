package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// SQLSTATE codes indicating the probed table set is absent.
const (
	codeUndefinedTable    = "42P01"
	codeInvalidSchemaName = "3F000"
)

// SchemaDetector probes the database for the active chat table layout and
// hands out the matching ChatStore. Probe results are cached for a TTL so
// a turn costs at most one probe, and Invalidate lets operators flip the
// mode immediately after running a migration against a live process.
//
// Implements domain.ChatStoreSelector.
type SchemaDetector struct {
	db  *DB
	ttl time.Duration

	current *CurrentStore
	legacy  *LegacyStore

	mu        sync.Mutex
	mode      domain.SchemaMode
	checkedAt time.Time
}

// NewSchemaDetector creates a detector with the given probe cache TTL.
func NewSchemaDetector(db *DB, ttl time.Duration) *SchemaDetector {
	return &SchemaDetector{
		db:      db,
		ttl:     ttl,
		current: NewCurrentStore(db),
		legacy:  NewLegacyStore(db),
	}
}

// Detect probes for the current-schema session table. It returns
// SchemaModeCurrent when the table is queryable, SchemaModeLegacy when
// the table is absent, and SchemaModeLegacy plus a non-nil error when the
// probe failed for any other reason — the legacy layout is the
// always-present safe default, but the failure is surfaced for
// diagnostics.
func (d *SchemaDetector) Detect(ctx context.Context) (domain.SchemaMode, error) {
	var one int
	err := d.db.Pool.QueryRow(ctx, `SELECT 1 FROM ai_chat_sessions LIMIT 1`).Scan(&one)
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return domain.SchemaModeCurrent, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable, codeInvalidSchemaName:
			return domain.SchemaModeLegacy, nil
		}
	}

	return domain.SchemaModeLegacy, fmt.Errorf("schema probe failed: %w", err)
}

// Select returns the ChatStore for the active schema mode, probing at
// most once per TTL. Callers hold the returned store for the whole
// logical operation so reads and writes never mix layouts.
func (d *SchemaDetector) Select(ctx context.Context) (domain.ChatStore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.checkedAt.IsZero() || time.Since(d.checkedAt) >= d.ttl {
		mode, err := d.Detect(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("schema detection failed, falling back to legacy chat tables")
		}
		d.mode = mode
		d.checkedAt = time.Now()
	}

	return d.store(d.mode), nil
}

// Mode returns the cached schema mode, probing first if the cache is
// cold or stale.
func (d *SchemaDetector) Mode(ctx context.Context) domain.SchemaMode {
	store, _ := d.Select(ctx)
	return store.Mode()
}

// Invalidate drops the cached probe result. The next Select re-probes.
func (d *SchemaDetector) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkedAt = time.Time{}
}

func (d *SchemaDetector) store(mode domain.SchemaMode) domain.ChatStore {
	if mode == domain.SchemaModeCurrent {
		return d.current
	}
	return d.legacy
}

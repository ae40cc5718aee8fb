package persistence

import (
	"context"
	"database/sql"
	"time"
)

// tier2LookupTimeout bounds the cold-path dedup query so a slow Postgres
// cannot stall the deterministic core. On timeout the core treats the
// event as new; the unique index on (event_type, idempotency_key) still
// rejects a double write at persist time.
const tier2LookupTimeout = 500 * time.Millisecond

// PostgresIdempotencyChecker is the tier-2 dedup lookup backed by the
// event log. It answers the cold path when the in-memory LRU misses,
// typically after a restart or an LRU eviction.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{db: db}
}

// IsDuplicate reports whether an event with this type and key has already
// been written to the event log.
func (pic *PostgresIdempotencyChecker) IsDuplicate(eventType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tier2LookupTimeout)
	defer cancel()

	var one int
	err := pic.db.QueryRowContext(ctx,
		`SELECT 1 FROM event_log.events WHERE event_type = $1 AND idempotency_key = $2 LIMIT 1`,
		eventType, idempotencyKey,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

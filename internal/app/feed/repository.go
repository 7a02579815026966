package feed

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists the feed projection next to the list
// tables so FeedAllowed can read the list's own rss flag.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createListEventsSQL = `
CREATE TABLE IF NOT EXISTS list_events (
  event_id text PRIMARY KEY,
  list_id text NOT NULL,
  list_name text NOT NULL DEFAULT '',
  actor_login text NOT NULL DEFAULT '',
  event_type text NOT NULL,
  detail text NOT NULL DEFAULT '',
  occurred_at timestamptz NOT NULL,
  stream_seq bigint NOT NULL DEFAULT 0
)`

const createListEventsIndexSQL = `
CREATE INDEX IF NOT EXISTS list_events_list_id_occurred_at_idx
ON list_events (list_id, occurred_at DESC)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createListEventsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createListEventsIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) InsertEvent(ctx context.Context, event StoredEvent) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO list_events (event_id, list_id, list_name, actor_login, event_type, detail, occurred_at, stream_seq)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.ListID, event.ListName, event.ActorLogin,
		event.EventType, event.Detail, event.OccurredAt, event.StreamSeq,
	)
	return err
}

func (r *PostgresRepository) RecentEvents(ctx context.Context, listID string, limit int) ([]StoredEvent, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT event_id, list_id, list_name, actor_login, event_type, detail, occurred_at, stream_seq
		 FROM list_events
		 WHERE list_id = $1
		 ORDER BY occurred_at DESC, stream_seq DESC
		 LIMIT $2`,
		listID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]StoredEvent, 0)
	for rows.Next() {
		var event StoredEvent
		if err := rows.Scan(&event.EventID, &event.ListID, &event.ListName, &event.ActorLogin,
			&event.EventType, &event.Detail, &event.OccurredAt, &event.StreamSeq); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *PostgresRepository) FeedAllowed(ctx context.Context, listID string) (bool, error) {
	var allowed bool
	err := r.Pool.QueryRow(ctx,
		`SELECT rss_allowed FROM todo_lists WHERE id = $1`,
		listID,
	).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrListNotFound
		}
		return false, err
	}
	return allowed, nil
}

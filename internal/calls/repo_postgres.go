package calls

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"voice-agent-platform/pkg/utils"
)

// PostgresRepository persists attempts and events in Postgres via
// database/sql with the pgx stdlib driver.
//
// Expected schema:
//
//	CREATE TABLE call_attempts (
//	    id           TEXT PRIMARY KEY,
//	    room         TEXT NOT NULL UNIQUE,
//	    phone_number TEXT NOT NULL DEFAULT '',
//	    direction    TEXT NOT NULL,
//	    outcome      TEXT NOT NULL DEFAULT '',
//	    started_at   TIMESTAMPTZ NOT NULL,
//	    ended_at     TIMESTAMPTZ
//	);
//
//	CREATE TABLE call_events (
//	    id     BIGSERIAL PRIMARY KEY,
//	    room   TEXT NOT NULL,
//	    type   TEXT NOT NULL,
//	    detail TEXT NOT NULL DEFAULT '',
//	    at     TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX call_events_room_idx ON call_events (room, at);
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateAttempt(ctx context.Context, a Attempt) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO call_attempts (id, room, phone_number, direction, started_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (room) DO UPDATE SET
				direction    = EXCLUDED.direction,
				phone_number = CASE WHEN EXCLUDED.phone_number = ''
				               THEN call_attempts.phone_number
				               ELSE EXCLUDED.phone_number END`,
			a.ID, a.Room, a.PhoneNumber, a.Direction, a.StartedAt)
		if err != nil {
			return fmt.Errorf("calls: create attempt: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) SetOutcome(ctx context.Context, room, outcome string, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE call_attempts SET outcome = $2, ended_at = $3 WHERE room = $1`,
		room, outcome, endedAt)
	if err != nil {
		return fmt.Errorf("calls: set outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (r *PostgresRepository) AppendEvent(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_events (room, type, detail, at) VALUES ($1, $2, $3, $4)`,
		e.Room, e.Type, e.Detail, e.At)
	if err != nil {
		return fmt.Errorf("calls: append event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetAttempt(ctx context.Context, room string) (Attempt, error) {
	var a Attempt
	var ended sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, room, phone_number, direction, outcome, started_at, ended_at
		FROM call_attempts WHERE room = $1`, room).
		Scan(&a.ID, &a.Room, &a.PhoneNumber, &a.Direction, &a.Outcome, &a.StartedAt, &ended)
	if err == sql.ErrNoRows {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("calls: get attempt: %w", err)
	}
	if ended.Valid {
		a.EndedAt = &ended.Time
	}
	return a, nil
}

func (r *PostgresRepository) ListEvents(ctx context.Context, room string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room, type, detail, at FROM call_events WHERE room = $1 ORDER BY at, id`, room)
	if err != nil {
		return nil, fmt.Errorf("calls: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Room, &e.Type, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("calls: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

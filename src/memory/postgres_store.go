package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memory_facts (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT        NOT NULL,
    key         TEXT        NOT NULL,
    value       TEXT        NOT NULL,
    importance  TEXT        NOT NULL,
    step        INTEGER     NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS memory_facts_session_key ON memory_facts (session_id, key);

CREATE TABLE IF NOT EXISTS memory_steps (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT        NOT NULL,
    idx         INTEGER     NOT NULL,
    action      TEXT        NOT NULL,
    result      TEXT        NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS memory_steps_session ON memory_steps (session_id);
`

// PostgresStore keeps facts and steps in append-only tables.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and returns a Postgres-backed Store.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// CreateSchema creates the fact and step tables if they are missing.
func (ps *PostgresStore) CreateSchema(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	if _, err := ps.DB.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (ps *PostgresStore) SaveFact(ctx context.Context, session string, f Fact) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `
                INSERT INTO memory_facts (session_id, key, value, importance, step, created_at)
                VALUES ($1, $2, $3, $4, $5, $6);
        `, session, f.Key, f.Value, string(f.Importance), f.Step, f.At)
	return err
}

func (ps *PostgresStore) SaveStep(ctx context.Context, session string, s Step) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `
                INSERT INTO memory_steps (session_id, idx, action, result, created_at)
                VALUES ($1, $2, $3, $4, $5);
        `, session, s.Index, s.Action, s.Result, s.At)
	return err
}

// Load returns the session's facts and steps in insertion order.
func (ps *PostgresStore) Load(ctx context.Context, session string) (Snapshot, error) {
	var snap Snapshot
	if ps == nil || ps.DB == nil {
		return snap, nil
	}

	rows, err := ps.DB.Query(ctx, `
        SELECT key, value, importance, step, created_at
        FROM memory_facts WHERE session_id = $1 ORDER BY id;
        `, session)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var (
			f          Fact
			importance string
		)
		if err := rows.Scan(&f.Key, &f.Value, &importance, &f.Step, &f.At); err != nil {
			rows.Close()
			return snap, err
		}
		f.Importance = Importance(importance)
		snap.Facts = append(snap.Facts, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = ps.DB.Query(ctx, `
        SELECT idx, action, result, created_at
        FROM memory_steps WHERE session_id = $1 ORDER BY id;
        `, session)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.Index, &s.Action, &s.Result, &s.At); err != nil {
			return snap, err
		}
		snap.Steps = append(snap.Steps, s)
	}
	return snap, rows.Err()
}

// Close releases the underlying Postgres connection pool.
func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)

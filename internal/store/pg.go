// Package store persists platform-side state: dialog stats, the outbound
// call queue, the SMS outbox, user storage and the agent record catalog.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callscript/internal/platform"
)

// PGStore is the Postgres implementation of platform.Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPG(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS dialog_stats (
			id BIGSERIAL PRIMARY KEY,
			call_id TEXT NOT NULL,
			action TEXT NOT NULL,
			name TEXT,
			data TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dialog_stats_call ON dialog_stats(call_id);`,
		`CREATE TABLE IF NOT EXISTS scheduled_calls (
			id BIGSERIAL PRIMARY KEY,
			msisdn TEXT NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			channel TEXT,
			script TEXT,
			entry_point TEXT NOT NULL DEFAULT 'main',
			transport TEXT NOT NULL DEFAULT 'sip',
			on_success TEXT,
			on_failed TEXT,
			proto_additional JSONB,
			priority INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS sms_outbox (
			id BIGSERIAL PRIMARY KEY,
			destination TEXT NOT NULL,
			text TEXT NOT NULL,
			channel TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS user_storage (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agent_records (
			name TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (name, value)
		);`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) LogStat(ctx context.Context, entry platform.StatEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dialog_stats (call_id, action, name, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.CallID, entry.Action, entry.Name, entry.Data, entry.CreatedAt)
	return err
}

func (s *PGStore) ScheduleCall(ctx context.Context, sc platform.ScheduledCall) error {
	var headers []byte
	if len(sc.ProtoAdditional) > 0 {
		var err error
		headers, err = json.Marshal(sc.ProtoAdditional)
		if err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scheduled_calls
			(msisdn, scheduled_at, channel, script, entry_point, transport, on_success, on_failed, proto_additional, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sc.MSISDN, sc.At, sc.Channel, sc.Script, sc.EntryPoint, sc.Transport,
		sc.OnSuccess, sc.OnFailed, headers, sc.Priority)
	return err
}

func (s *PGStore) SaveSMS(ctx context.Context, sms platform.SMS) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sms_outbox (destination, text, channel) VALUES ($1, $2, $3)`,
		sms.Destination, sms.Text, sms.Channel)
	return err
}

func (s *PGStore) StorageGet(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM user_storage WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *PGStore) HasRecord(ctx context.Context, name, value string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_records WHERE name = $1 AND value = $2)`,
		name, value).Scan(&exists)
	return exists, err
}

// StatsForCall returns the dialog-stats entries of one call in insertion
// order, for the operator API.
func (s *PGStore) StatsForCall(ctx context.Context, callID string) ([]platform.StatEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT call_id, action, COALESCE(name, ''), COALESCE(data, ''), created_at
		 FROM dialog_stats WHERE call_id = $1 ORDER BY id`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []platform.StatEntry
	for rows.Next() {
		var entry platform.StatEntry
		if err := rows.Scan(&entry.CallID, &entry.Action, &entry.Name, &entry.Data, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

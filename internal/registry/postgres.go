package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/groupchess-bot/internal/domain"
)

const slotSchema = `CREATE TABLE IF NOT EXISTS referee_slots (
    conversation_id TEXT PRIMARY KEY,
    payload JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps slots in the referee_slots table. Updates for one
// conversation are serialized with a transaction-scoped advisory lock.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL required for postgres store")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(pctx, slotSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context, conv domain.ConversationID) (domain.Slot, error) {
	return scanSlot(s.db.QueryRowContext(ctx,
		`SELECT payload FROM referee_slots WHERE conversation_id = $1`, string(conv)))
}

func (s *PostgresStore) Update(ctx context.Context, conv domain.ConversationID, fn UpdateFunc) (domain.Slot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Slot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(conv)); err != nil {
		return domain.Slot{}, fmt.Errorf("lock conversation: %w", err)
	}
	cur, err := scanSlot(tx.QueryRowContext(ctx,
		`SELECT payload FROM referee_slots WHERE conversation_id = $1`, string(conv)))
	if err != nil {
		return domain.Slot{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if next.Empty() {
		_, err = tx.ExecContext(ctx, `DELETE FROM referee_slots WHERE conversation_id = $1`, string(conv))
	} else {
		raw, merr := json.Marshal(next)
		if merr != nil {
			return cur, fmt.Errorf("encode slot: %w", merr)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO referee_slots (conversation_id, payload, updated_at)
            VALUES ($1, $2, now())
            ON CONFLICT (conversation_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
			string(conv), string(raw))
	}
	if err != nil {
		return cur, err
	}
	if err := tx.Commit(); err != nil {
		return cur, err
	}
	return next, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM referee_slots`)
	return err
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanSlot(row *sql.Row) (domain.Slot, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Slot{}, nil
		}
		return domain.Slot{}, err
	}
	var s domain.Slot
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Slot{}, fmt.Errorf("decode slot: %w", err)
	}
	return s, nil
}

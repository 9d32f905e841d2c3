package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records as JSONB rows in custody_records. Transactions
// run SERIALIZABLE; a serialization failure is reported as domain.ErrConflict.
type PostgresStore struct {
	db       *pgxpool.Pool
	lifetime Lifetime
	now      func() time.Time
}

// NewPostgresStore wraps a pool whose schema was created by db.Migrate.
func NewPostgresStore(db *pgxpool.Pool, lifetime Lifetime) *PostgresStore {
	return &PostgresStore{db: db, lifetime: lifetime, now: time.Now}
}

func (s *PostgresStore) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// RunInTx executes fn within a database transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	if err := fn(&postgresTx{tx: tx, now: now, lifetime: s.lifetime}); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (s *PostgresStore) Sweep(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM custody_records WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}

type postgresTx struct {
	tx       pgx.Tx
	now      time.Time
	lifetime Lifetime
}

func (t *postgresTx) GetRaw(ctx context.Context, key Key) ([]byte, bool, error) {
	var data []byte
	err := t.tx.QueryRow(ctx, `
		SELECT data FROM custody_records
		WHERE kind = $1 AND id = $2 AND (expires_at IS NULL OR expires_at > $3)
		FOR UPDATE
	`, string(key.Kind), int64(key.ID), t.now).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, true, nil
}

func (t *postgresTx) PutRaw(ctx context.Context, key Key, data []byte) error {
	var expiresAt *time.Time
	if exp := t.lifetime.ExpiresAt(key, t.now); !exp.IsZero() {
		expiresAt = &exp
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO custody_records (kind, id, data, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, id) DO UPDATE
		SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`, string(key.Kind), int64(key.ID), data, expiresAt, t.now)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		}
	}
	return err
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgate/authcore/store"
)

// Store is the production refresh token store on PostgreSQL. Rotation runs
// in a single transaction with a conditional update, so exactly one of any
// number of concurrent rotations of the same head commits.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	role        TEXT NOT NULL,
	family_id   UUID NOT NULL,
	token_hash  BYTEA NOT NULL UNIQUE,
	device_info TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	ip          TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL,
	revoked_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS refresh_tokens_user_live_idx
	ON refresh_tokens (user_id) WHERE revoked_at IS NULL;
CREATE INDEX IF NOT EXISTS refresh_tokens_family_idx
	ON refresh_tokens (family_id);
CREATE INDEX IF NOT EXISTS refresh_tokens_expires_idx
	ON refresh_tokens (expires_at);
`

// EnsureSchema creates the refresh_tokens table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", store.ErrUnavailable, err)
	}
	return nil
}

const recordColumns = `id, user_id, role, family_id, token_hash, device_info, user_agent, ip, created_at, expires_at, revoked_at`

func scanRecord(row pgx.Row) (*store.Record, error) {
	var rec store.Record
	var hash []byte
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Role, &rec.FamilyID, &hash,
		&rec.DeviceInfo, &rec.UserAgent, &rec.IP,
		&rec.CreatedAt, &rec.ExpiresAt, &rec.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(rec.TokenHash[:], hash)
	return &rec, nil
}

func (s *Store) Create(ctx context.Context, rec *store.Record) error {
	query := `
		INSERT INTO refresh_tokens (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.Role, rec.FamilyID, rec.TokenHash[:],
		rec.DeviceInfo, rec.UserAgent, rec.IP,
		rec.CreatedAt, rec.ExpiresAt, rec.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("refresh token hash collision: %w", err)
		}
		return fmt.Errorf("%w: create refresh token: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*store.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM refresh_tokens WHERE id = $1`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find refresh token: %v", store.ErrUnavailable, err)
	}
	return rec, nil
}

// Rotate locks the presented head, classifies its state, and on the happy
// path revokes it and inserts the replacement in the same transaction. The
// UPDATE keeps the revoked_at IS NULL guard even under FOR UPDATE so a
// rotation can never clobber a concurrent revocation.
func (s *Store) Rotate(ctx context.Context, id string, presented [32]byte, next store.NewHead) (*store.Record, *store.Record, store.RotateStatus, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: begin rotate: %v", store.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + recordColumns + ` FROM refresh_tokens WHERE id = $1 FOR UPDATE`
	old, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, store.RotateNotFound, nil
		}
		return nil, nil, 0, fmt.Errorf("%w: lock refresh token: %v", store.ErrUnavailable, err)
	}

	if old.TokenHash != presented {
		return nil, nil, store.RotateHashMismatch, nil
	}
	if old.RevokedAt != nil {
		return old, nil, store.RotateRevoked, nil
	}
	now := time.Now()
	if !now.Before(old.ExpiresAt) {
		return old, nil, store.RotateExpired, nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, now,
	)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: revoke old head: %v", store.ErrUnavailable, err)
	}
	if tag.RowsAffected() != 1 {
		// Lost the compare-and-set despite the row lock; treat as reuse.
		return old, nil, store.RotateRevoked, nil
	}

	created := &store.Record{
		ID:         next.ID,
		UserID:     old.UserID,
		Role:       old.Role,
		FamilyID:   old.FamilyID,
		TokenHash:  next.TokenHash,
		DeviceInfo: old.DeviceInfo,
		UserAgent:  old.UserAgent,
		IP:         old.IP,
		CreatedAt:  now,
		ExpiresAt:  next.ExpiresAt,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		created.ID, created.UserID, created.Role, created.FamilyID, created.TokenHash[:],
		created.DeviceInfo, created.UserAgent, created.IP,
		created.CreatedAt, created.ExpiresAt, nil,
	)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: insert new head: %v", store.ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: commit rotate: %v", store.ErrUnavailable, err)
	}

	at := now
	old.RevokedAt = &at
	return old, created, store.RotateOK, nil
}

func (s *Store) RevokeByID(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("%w: revoke session: %v", store.ErrUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke family: %v", store.ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke all sessions: %v", store.ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*store.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM refresh_tokens
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		 ORDER BY created_at DESC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", store.ErrUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", store.ErrUnavailable, err)
	}
	return out, nil
}

func (s *Store) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", store.ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

var _ store.Store = (*Store)(nil)

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgate/authcore"
)

// pgUsers adapts the school app's users table to the engine's UserProvider.
// The table is owned by the main application; this side only reads
// credentials and writes password hashes.
type pgUsers struct {
	pool *pgxpool.Pool
}

func newPGUsers(pool *pgxpool.Pool) *pgUsers {
	return &pgUsers{pool: pool}
}

const userColumns = `id, email, password_hash, role, status`

func (p *pgUsers) GetUserByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (p *pgUsers) GetUserByID(ctx context.Context, id string) (authcore.UserRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (p *pgUsers) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, userID, newHash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (authcore.UserRecord, error) {
	var (
		u      authcore.UserRecord
		role   string
		status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, fmt.Errorf("scan user: %w", err)
	}

	parsed, err := authcore.ParseRole(role)
	if err != nil {
		return authcore.UserRecord{}, err
	}
	u.Role = parsed
	u.Status = parseStatus(status)
	return u, nil
}

func parseStatus(s string) authcore.AccountStatus {
	switch s {
	case "active":
		return authcore.AccountActive
	case "pending":
		return authcore.AccountPending
	case "blocked":
		return authcore.AccountBlocked
	default:
		// Unknown states fail closed.
		return authcore.AccountDeleted
	}
}

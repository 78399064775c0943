package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures. Callers retry with backoff or
// surface a 500; they never retry a rotation silently.
var ErrUnavailable = errors.New("refresh token store unavailable")

// Record is one row per issued refresh token. Rows are written once,
// mutated exactly once (the transition from valid to revoked), and retained
// for reuse-detection history until pruned past the retention horizon.
type Record struct {
	ID         string // uuid, embedded in the client token value
	UserID     string
	Role       string
	FamilyID   string // groups every token derived from one login by rotation
	TokenHash  [32]byte
	DeviceInfo string
	UserAgent  string
	IP         string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Live reports whether the record is a usable family head: not revoked and
// not past expiry. Expiry and revocation are independent checks with the
// same effect.
func (r *Record) Live(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// RotateStatus is the outcome of a Rotate attempt, evaluated inside the
// store's transaction so concurrent callers cannot observe intermediate
// states.
type RotateStatus int

const (
	// RotateOK: the presented head was revoked and the new head inserted
	// atomically.
	RotateOK RotateStatus = iota
	// RotateNotFound: no record with the presented id exists.
	RotateNotFound
	// RotateHashMismatch: the record exists but the presented secret never
	// belonged to it. Forgery, not reuse.
	RotateHashMismatch
	// RotateRevoked: the record was valid once and has been rotated or
	// revoked since. This is the reuse signal.
	RotateRevoked
	// RotateExpired: the record is past expiry but was never revoked.
	// Benign staleness.
	RotateExpired
)

// NewHead carries the caller-generated identity of the replacement record.
// UserID, Role, FamilyID and device metadata are copied from the old head
// inside the transaction.
type NewHead struct {
	ID        string
	TokenHash [32]byte
	ExpiresAt time.Time
}

// Store persists refresh token records. Implementations must make Rotate
// atomic: marking the old head revoked is conditioned on it still being
// unrevoked at commit time, so exactly one of any number of concurrent
// rotations of the same token succeeds.
type Store interface {
	// Create inserts a fresh family head. Fails on token hash collision.
	Create(ctx context.Context, rec *Record) error

	// GetByID returns the record regardless of revocation or expiry state,
	// or (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*Record, error)

	// Rotate performs the compare-and-set rotation. On RotateOK it returns
	// the old head (now revoked) and the created record. On RotateRevoked
	// it returns the old head so the caller can cascade its family. The
	// presented hash must match the stored hash before any state changes.
	Rotate(ctx context.Context, id string, presented [32]byte, next NewHead) (old *Record, created *Record, status RotateStatus, err error)

	// RevokeByID revokes a single record if it is currently live. Returns
	// whether a row transitioned.
	RevokeByID(ctx context.Context, id string, at time.Time) (bool, error)

	// RevokeFamily revokes every live record sharing the family. Returns
	// the number of rows transitioned.
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)

	// RevokeAllForUser revokes every live record owned by the user across
	// all families.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// ListActiveByUser returns the live family heads for a user, newest
	// first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Record, error)

	// PruneExpired removes rows whose expiry is older than before. The
	// retention horizon is enforced by the caller.
	PruneExpired(ctx context.Context, before time.Time) (int64, error)
}

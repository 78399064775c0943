package authcore

import (
	"context"
	"fmt"
	"time"
)

// Role is the coarse authorization level carried inside access tokens.
type Role string

const (
	// RoleStudent is the default role for enrolled users.
	RoleStudent Role = "student"
	// RoleTeacher grants class management capabilities.
	RoleTeacher Role = "teacher"
	// RoleAdmin grants account administration capabilities.
	RoleAdmin Role = "admin"
)

// ParseRole validates a role string coming from storage or a token claim.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	// AccountActive accounts may obtain and refresh tokens.
	AccountActive AccountStatus = iota
	// AccountPending accounts have not completed verification.
	AccountPending
	// AccountBlocked accounts must not receive tokens.
	AccountBlocked
	// AccountDeleted accounts must not receive tokens.
	AccountDeleted
)

// UserRecord is the read-only projection of an account that the engine
// consults. The user database itself is owned by an external collaborator.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Status       AccountStatus
}

// UserProvider is the interface callers implement to connect the engine to
// their user database. Only credential lookup and password hash updates are
// required; everything else about users is out of the engine's scope.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// DeviceInfo describes the client a session was created from. Stored as
// session metadata and echoed back by ListSessions.
type DeviceInfo struct {
	Name      string
	UserAgent string
	IP        string
}

// TokenPair is the result of Login and Refresh: a short-lived signed access
// token and an opaque refresh token. The refresh value is shown to the
// client exactly once and persisted only as a hash.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the verified claim set extracted from an access token. It is
// produced once per request by Verify and passed to downstream handlers
// instead of re-deriving role checks ad hoc.
type Identity struct {
	UserID string
	Role   Role
}

// SessionInfo is the user-facing view of one refresh token family's current
// head: one signed-in device.
type SessionInfo struct {
	ID         string
	DeviceInfo string
	UserAgent  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

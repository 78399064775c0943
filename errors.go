package authcore

import "errors"

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike,
	// so responses never reveal which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by UserProvider implementations when no
	// account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountBlocked is returned when a blocked account attempts to
	// obtain or refresh tokens.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrAccountDeleted is returned when a deleted account attempts to
	// obtain or refresh tokens.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrAccountUnverified is returned when a pending account attempts to
	// log in while verification is required.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrLoginRateLimited is returned when the login attempt budget for an
	// identifier or IP is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when the refresh budget for a token
	// family is exhausted.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrRefreshInvalid is returned when a presented refresh token does not
	// decode or does not match any issued secret.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshExpired is returned when the presented refresh token is past
	// its expiry. Benign staleness: no cascade is triggered.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshReuse is returned when an already-rotated refresh token is
	// presented again. The whole family has been revoked by the time the
	// caller sees this error.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is returned when a session id does not resolve to a
	// live session owned by the caller.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnauthorized is returned for missing, malformed, or expired access
	// tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPasswordPolicy is returned when a new password fails policy checks.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnavailable wraps storage and transport failures on the token path.
	ErrUnavailable = errors.New("auth backend unavailable")
)

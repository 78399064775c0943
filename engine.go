package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/campusgate/authcore/internal"
	"github.com/campusgate/authcore/rate"
	"github.com/campusgate/authcore/store"
	"github.com/campusgate/authcore/token"
)

var tracer = otel.Tracer("github.com/campusgate/authcore")

const (
	routeLogin   = "login"
	routeRefresh = "refresh"
)

// Engine is the session manager. It owns the refresh token lifecycle end to
// end: issuing families at login, rotating heads at refresh, detecting and
// cascading on reuse, and revoking sessions singly or in bulk.
//
// Engines are built with [Builder] and are safe for concurrent use.
type Engine struct {
	config  Config
	tokens  *token.Manager
	store   store.Store
	limiter *rate.Limiter
	users   UserProvider
	hasher  passwordHasher
	logger  *zap.Logger
	metrics *Metrics

	// dummyHash absorbs a verification round when the email is unknown, so
	// lookup misses and wrong passwords take comparable time.
	dummyHash string

	now func() time.Time
}

// passwordHasher is the slice of password.Hasher the engine needs.
type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Login validates credentials and, on success, opens a new session: a fresh
// token family with its first refresh head, plus a minted access token.
//
// Unknown emails and wrong passwords both come back as
// [ErrInvalidCredentials]. Account status is only checked after the password
// matched, so a probe cannot learn that an account is blocked.
func (e *Engine) Login(ctx context.Context, email, password string, device DeviceInfo) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	ctx, span := tracer.Start(ctx, "Engine.Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	ip := device.IP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}

	limiterKeys := e.loginLimiterKeys(email, ip)
	if err := e.admit(ctx, routeLogin, limiterKeys, e.loginRule()); err != nil {
		e.metrics.login("rate_limited")
		return TokenPair{}, err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a hash round so the miss is not observably faster.
			_, _ = e.hasher.Verify(password, e.dummyHash)
			e.metrics.login("denied")
			return TokenPair{}, ErrInvalidCredentials
		}
		e.metrics.login("error")
		return TokenPair{}, fmt.Errorf("%w: user lookup: %v", ErrUnavailable, err)
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.login("denied")
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := e.gateStatus(user.Status, e.config.Security.RequireVerified); err != nil {
		e.metrics.login("denied")
		e.logger.Info("login refused by account status",
			zap.String("user_id", user.ID), zap.Error(err))
		return TokenPair{}, err
	}

	e.resetLimiter(ctx, routeLogin, limiterKeys)

	pair, err := e.IssueSession(ctx, user, device)
	if err != nil {
		span.SetStatus(codes.Error, "issue session")
		e.metrics.login("error")
		return TokenPair{}, err
	}
	e.metrics.login("ok")
	e.logger.Info("login succeeded",
		zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return pair, nil
}

// IssueSession opens a session for an already-authenticated user: a new
// family whose first head is persisted, and a token pair for the client.
// Callers that authenticate out of band (SSO, admin impersonation) use this
// directly; Login calls it after credential checks.
func (e *Engine) IssueSession(ctx context.Context, user UserRecord, device DeviceInfo) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}

	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: entropy: %v", ErrUnavailable, err)
	}

	recordID := uuid.New()
	now := e.now()
	rec := &store.Record{
		ID:         recordID.String(),
		UserID:     user.ID,
		Role:       string(user.Role),
		FamilyID:   uuid.NewString(),
		TokenHash:  internal.HashRefreshSecret(secret),
		DeviceInfo: device.Name,
		UserAgent:  firstNonEmpty(device.UserAgent, userAgentFromContext(ctx)),
		IP:         firstNonEmpty(device.IP, clientIPFromContext(ctx)),
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.config.JWT.RefreshTTL),
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("%w: create session: %v", ErrUnavailable, err)
	}

	access, err := e.tokens.Mint(user.ID, string(user.Role))
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: mint access token: %v", ErrUnavailable, err)
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeRefreshToken(recordID, secret),
	}, nil
}

// Refresh rotates the presented refresh token: the old head is revoked and a
// replacement inserted in one atomic store operation, then a new token pair
// is returned. Under concurrent presentation of the same token exactly one
// caller wins; the rest observe [ErrRefreshReuse] after the family cascade.
//
// An expired head returns [ErrRefreshExpired] without touching the family.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	ctx, span := tracer.Start(ctx, "Engine.Refresh")
	defer span.End()

	recordID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metrics.refresh("invalid")
		return TokenPair{}, ErrRefreshInvalid
	}

	if err := e.admit(ctx, routeRefresh, []string{recordID.String()}, e.refreshRule()); err != nil {
		e.metrics.refresh("rate_limited")
		return TokenPair{}, err
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metrics.refresh("error")
		return TokenPair{}, fmt.Errorf("%w: entropy: %v", ErrUnavailable, err)
	}
	nextID := uuid.New()
	now := e.now()
	next := store.NewHead{
		ID:        nextID.String(),
		TokenHash: internal.HashRefreshSecret(nextSecret),
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}

	old, created, status, err := e.store.Rotate(ctx, recordID.String(), internal.HashRefreshSecret(secret), next)
	if err != nil {
		e.metrics.refresh("error")
		span.SetStatus(codes.Error, "rotate")
		return TokenPair{}, fmt.Errorf("%w: rotate: %v", ErrUnavailable, err)
	}

	switch status {
	case store.RotateOK:
		// fall through to status check and minting
	case store.RotateNotFound, store.RotateHashMismatch:
		e.metrics.refresh("invalid")
		return TokenPair{}, ErrRefreshInvalid
	case store.RotateExpired:
		e.metrics.refresh("expired")
		return TokenPair{}, ErrRefreshExpired
	case store.RotateRevoked:
		n := e.cascade(ctx, old.FamilyID, "reuse")
		e.metrics.refresh("reuse")
		e.logger.Warn("refresh token reuse detected, family revoked",
			zap.String("user_id", old.UserID),
			zap.String("family_id", old.FamilyID),
			zap.Int64("revoked", n))
		span.AddEvent("family revoked on reuse")
		return TokenPair{}, ErrRefreshReuse
	default:
		e.metrics.refresh("error")
		return TokenPair{}, fmt.Errorf("%w: rotate: unexpected status %d", ErrUnavailable, status)
	}

	if e.config.Security.CheckStatusOnRefresh {
		if err := e.refreshStatusGate(ctx, created); err != nil {
			e.metrics.refresh("denied")
			return TokenPair{}, err
		}
	}

	access, err := e.tokens.Mint(created.UserID, created.Role)
	if err != nil {
		e.metrics.refresh("error")
		return TokenPair{}, fmt.Errorf("%w: mint access token: %v", ErrUnavailable, err)
	}
	e.metrics.refresh("ok")
	return TokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeRefreshToken(nextID, nextSecret),
	}, nil
}

// refreshStatusGate re-reads account status after a successful rotation.
// When the account has since been blocked or deleted, the freshly rotated
// family is revoked so the client cannot keep extending it.
func (e *Engine) refreshStatusGate(ctx context.Context, head *store.Record) error {
	user, err := e.users.GetUserByID(ctx, head.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.cascade(ctx, head.FamilyID, "status")
			return ErrAccountDeleted
		}
		// Status is advisory on this path; an unreachable user database must
		// not take refresh down with it.
		e.logger.Warn("status check skipped, user lookup failed",
			zap.String("user_id", head.UserID), zap.Error(err))
		return nil
	}
	if err := e.gateStatus(user.Status, false); err != nil {
		n := e.cascade(ctx, head.FamilyID, "status")
		e.logger.Info("family revoked by account status",
			zap.String("user_id", head.UserID),
			zap.String("family_id", head.FamilyID),
			zap.Int64("revoked", n))
		return err
	}
	return nil
}

// Verify validates an access token and returns the identity it asserts.
// Purely computational: no storage round trips, so it belongs on every
// request.
func (e *Engine) Verify(accessToken string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}
	userID, roleClaim, err := e.tokens.Verify(accessToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	role, err := ParseRole(roleClaim)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return Identity{UserID: userID, Role: role}, nil
}

// Logout revokes the session the presented refresh token belongs to. It
// always succeeds from the caller's perspective: unknown, malformed,
// expired, and already-revoked tokens all end in the same state, signed out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	recordID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	rec, err := e.store.GetByID(ctx, recordID.String())
	if err != nil {
		e.logger.Warn("logout lookup failed", zap.Error(err))
		return nil
	}
	if rec == nil || rec.TokenHash != internal.HashRefreshSecret(secret) {
		return nil
	}
	// A deliberate sign-out revokes just the head. Rotation already revoked
	// the rest of the family, so this ends the session without a cascade.
	revoked, err := e.store.RevokeByID(ctx, rec.ID, e.now())
	if err != nil {
		e.logger.Warn("logout revoke failed",
			zap.String("family_id", rec.FamilyID), zap.Error(err))
		return nil
	}
	if revoked {
		e.metrics.revoked("logout", 1)
	}
	return nil
}

// ListSessions returns the user's live sessions, newest first. Each entry is
// the current head of one token family: one signed-in device.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	recs, err := e.store.ListActiveByUser(ctx, userID, e.now())
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrUnavailable, err)
	}
	sessions := make([]SessionInfo, 0, len(recs))
	for _, rec := range recs {
		sessions = append(sessions, SessionInfo{
			ID:         rec.ID,
			DeviceInfo: rec.DeviceInfo,
			UserAgent:  rec.UserAgent,
			CreatedAt:  rec.CreatedAt,
			ExpiresAt:  rec.ExpiresAt,
		})
	}
	return sessions, nil
}

// RevokeSession revokes one of the user's sessions by its id, as returned by
// ListSessions. Sessions owned by other users are indistinguishable from
// sessions that do not exist.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "Engine.RevokeSession")
	defer span.End()

	rec, err := e.store.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: session lookup: %v", ErrUnavailable, err)
	}
	if rec == nil || rec.UserID != userID || !rec.Live(e.now()) {
		return ErrSessionNotFound
	}
	// Single-device sign-out, not an attack response: only the head is
	// revoked, no family cascade.
	revoked, err := e.store.RevokeByID(ctx, rec.ID, e.now())
	if err != nil {
		return fmt.Errorf("%w: revoke session: %v", ErrUnavailable, err)
	}
	if !revoked {
		return ErrSessionNotFound
	}
	e.metrics.revoked("session", 1)
	e.logger.Info("session revoked",
		zap.String("user_id", userID), zap.String("session_id", sessionID))
	return nil
}

// RevokeAllSessions signs the user out everywhere, revoking every live
// refresh token across all families. Returns the number of records revoked.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.store.RevokeAllForUser(ctx, userID, e.now())
	if err != nil {
		return 0, fmt.Errorf("%w: revoke all: %v", ErrUnavailable, err)
	}
	e.metrics.revoked("all", float64(n))
	e.logger.Info("all sessions revoked",
		zap.String("user_id", userID), zap.Int64("revoked", n))
	return n, nil
}

// ChangePassword verifies the current password, installs the new hash, and
// signs the user out everywhere. Outstanding access tokens ride out their
// short TTL; no refresh token survives.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: user lookup: %v", ErrUnavailable, err)
	}

	ok, err := e.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if newPassword == currentPassword {
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	if err := e.users.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return fmt.Errorf("%w: update password: %v", ErrUnavailable, err)
	}

	if _, err := e.RevokeAllSessions(ctx, userID); err != nil {
		// The hash is already rotated; report the partial failure rather
		// than pretending the old sessions are gone.
		return err
	}
	e.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}

// PruneExpired removes refresh token rows whose expiry is older than the
// configured retention horizon. Intended for a periodic background sweep.
func (e *Engine) PruneExpired(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.store.PruneExpired(ctx, e.now().Add(-e.config.Retention))
}

// cascade revokes a whole family and reports the count under the given
// metric scope. Failures are logged, not returned: the caller is already on
// an error path and the revocation retries on the next presentation.
func (e *Engine) cascade(ctx context.Context, familyID, scope string) int64 {
	n, err := e.store.RevokeFamily(ctx, familyID, e.now())
	if err != nil {
		e.logger.Error("family cascade failed",
			zap.String("family_id", familyID), zap.Error(err))
		return 0
	}
	e.metrics.revoked(scope, float64(n))
	return n
}

func (e *Engine) gateStatus(status AccountStatus, requireVerified bool) error {
	switch status {
	case AccountBlocked:
		return ErrAccountBlocked
	case AccountDeleted:
		return ErrAccountDeleted
	case AccountPending:
		if requireVerified {
			return ErrAccountUnverified
		}
	}
	return nil
}

func (e *Engine) loginRule() rate.Rule {
	return rate.Rule{
		Max:    e.config.Security.MaxLoginAttempts,
		Window: e.config.Security.LoginWindow,
	}
}

func (e *Engine) refreshRule() rate.Rule {
	return rate.Rule{
		Max:    e.config.Security.MaxRefreshAttempts,
		Window: e.config.Security.RefreshWindow,
	}
}

func (e *Engine) loginLimiterKeys(email, ip string) []string {
	keys := []string{email}
	if e.config.Security.EnableIPThrottle && ip != "" {
		keys = append(keys, "ip:"+ip)
	}
	return keys
}

// admit checks every key against the route budget. A denial maps to the
// route's sentinel, joined with the limiter's DeniedError so the transport
// layer can surface Retry-After. Limiter outages fail open: locking every
// user out because Redis is down is the worse failure mode.
func (e *Engine) admit(ctx context.Context, route string, keys []string, rule rate.Rule) error {
	if e.limiter == nil {
		return nil
	}
	sentinel := ErrLoginRateLimited
	if route == routeRefresh {
		sentinel = ErrRefreshRateLimited
	}
	for _, key := range keys {
		err := e.limiter.Admit(ctx, route, key, rule)
		if err == nil {
			continue
		}
		var denied *rate.DeniedError
		if errors.As(err, &denied) {
			e.metrics.rateLimited(route)
			return errors.Join(sentinel, denied)
		}
		e.logger.Warn("rate limiter unavailable, failing open",
			zap.String("route", route), zap.Error(err))
		return nil
	}
	return nil
}

func (e *Engine) resetLimiter(ctx context.Context, route string, keys []string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.Reset(ctx, route, keys...); err != nil {
		e.logger.Warn("rate limiter reset failed",
			zap.String("route", route), zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

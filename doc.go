// Package authcore implements the token and session lifecycle for the
// campusgate web application: short-lived signed access tokens, long-lived
// rotating refresh tokens grouped into families, reuse-attack containment,
// multi-session enumeration and revocation, and the rate limiting in front
// of the credential endpoints.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, SessionInfo, Identity). Token wire encoding
// lives under internal/ and is never exported. The user database is an
// external collaborator reached only through [UserProvider]; refresh token
// persistence is abstracted by [github.com/campusgate/authcore/store.Store].
//
// # Rotation contract
//
// Every successful Refresh revokes the presented token and creates a new
// head for the same family in one atomic store operation. Presenting an
// already-rotated token is treated as credential theft: the whole family is
// revoked and [ErrRefreshReuse] is returned. Verify is the hot path and
// performs no I/O.
package authcore

// Package token is the access token codec: minting and verifying the
// short-lived signed JWTs that prove identity for a single request window.
// Access tokens are never persisted and never individually revoked; their
// TTL is the only defense after issuance.
package token

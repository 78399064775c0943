// Package internal holds the refresh token wire format: secret generation,
// hashing, and the base64url encoding that binds a record id to its secret.
// Nothing here is part of the public API.
package internal

package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + refreshSecretSize
)

// NewRefreshSecret returns 32 bytes of CSPRNG entropy. The raw value is
// handed to the client; only its hash is ever persisted.
func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret is the one-way mapping from client secret to the stored
// token hash.
func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken packs a record id and its secret into the opaque value
// sent to clients: base64url(id[16] || secret[32]), no padding.
func EncodeRefreshToken(recordID uuid.UUID, secret [refreshSecretSize]byte) string {
	var raw [refreshTokenRawSize]byte
	copy(raw[:16], recordID[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeRefreshToken is the inverse of EncodeRefreshToken. Any deviation in
// size or encoding fails; the caller treats that as an invalid token.
func DecodeRefreshToken(token string) (uuid.UUID, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.Nil, secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return uuid.Nil, secret, errors.New("invalid refresh token size")
	}

	var id uuid.UUID
	copy(id[:], raw[:16])
	copy(secret[:], raw[16:])
	return id, secret, nil
}

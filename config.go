package authcore

import (
	"errors"
	"time"
)

// Config defines the engine's tuning parameters. Instances are intended to
// be configured during initialization and then treated as immutable.
type Config struct {
	JWT      JWTConfig
	Security SecurityConfig
	Password PasswordConfig
	// Retention is how long revoked and expired refresh token rows are kept
	// for audit and reuse detection before PruneExpired may remove them.
	Retention time.Duration
}

// JWTConfig controls access token minting and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte // hs256 signing secret
	PrivateKey    []byte // ed25519
	PublicKey     []byte // ed25519
	Issuer        string
	Leeway        time.Duration
}

// SecurityConfig controls rate limiting and refresh-path status checks.
type SecurityConfig struct {
	MaxLoginAttempts   int
	LoginWindow        time.Duration
	MaxRefreshAttempts int
	RefreshWindow      time.Duration
	EnableIPThrottle   bool
	// CheckStatusOnRefresh re-reads account status during Refresh so blocked
	// and deleted accounts are cut off before their family expires.
	CheckStatusOnRefresh bool
	// RequireVerified refuses login for accounts still pending verification.
	RequireVerified bool
}

// PasswordConfig holds the argon2id parameters used at the login boundary.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "campusgate",
		},
		Security: SecurityConfig{
			MaxLoginAttempts:     10,
			LoginWindow:          15 * time.Minute,
			MaxRefreshAttempts:   30,
			RefreshWindow:        time.Minute,
			EnableIPThrottle:     true,
			CheckStatusOnRefresh: true,
			RequireVerified:      true,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Retention: 90 * 24 * time.Hour,
	}
}

// DefaultConfig returns the recommended production configuration. Callers
// must still supply signing key material.
func DefaultConfig() Config {
	return defaultConfig()
}

// Validate checks invariants that Build depends on.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT.RefreshTTL must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT.AccessTTL must be shorter than JWT.RefreshTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires private and public key material")
		}
	default:
		return errors.New("unsupported signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT.Leeway out of range")
	}
	if c.Security.MaxLoginAttempts <= 0 || c.Security.LoginWindow <= 0 {
		return errors.New("login rate limit configuration invalid")
	}
	if c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshWindow <= 0 {
		return errors.New("refresh rate limit configuration invalid")
	}
	if c.Retention < c.JWT.RefreshTTL {
		return errors.New("Retention must be at least JWT.RefreshTTL")
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneConfig(c Config) Config {
	out := c
	out.JWT.Secret = cloneBytes(c.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(c.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(c.JWT.PublicKey)
	return out
}

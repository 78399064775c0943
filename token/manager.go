package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired is returned by Verify when the token is past its expiry.
	ErrExpired = errors.New("access token expired")
	// ErrInvalid is returned by Verify for bad signatures and malformed input.
	ErrInvalid = errors.New("access token invalid")
)

// Config holds the codec parameters. Secret is used for hs256; the key pair
// for ed25519.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Manager mints and verifies access tokens. It is purely functional given
// its key material: no storage, no I/O, cheap enough for every request.
type Manager struct {
	config Config
}

// Claims is the access token claim set: subject identity plus role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and returns a codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Manager{config: cfg}, nil
}

// Mint creates a signed access token for the user and role, valid for the
// configured TTL.
func (m *Manager) Mint(userID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Verify parses and validates a token string. Expiry is reported as
// [ErrExpired]; every other failure collapses into [ErrInvalid] so callers
// cannot distinguish forgery modes.
func (m *Manager) Verify(tokenStr string) (string, string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpired
		}
		return "", "", ErrInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return "", "", ErrInvalid
	}
	return claims.Subject, claims.Role, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.Secret, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.Secret, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

package authcore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusgate/authcore/password"
	"github.com/campusgate/authcore/rate"
	"github.com/campusgate/authcore/store"
	"github.com/campusgate/authcore/token"
)

// Builder assembles an Engine step by step. Zero or more With calls, then
// Build. A store and a user provider are mandatory; Redis, logging, and
// metrics are optional and degrade gracefully when absent.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient
	users  UserProvider
	logger *zap.Logger
	reg    prometheus.Registerer
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. The config is copied; later
// mutation of cfg by the caller does not affect the built engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the refresh token store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithUserProvider connects the engine to the caller's user database.
// Required.
func (b *Builder) WithUserProvider(p UserProvider) *Builder {
	b.users = p
	return b
}

// WithRedis enables rate limiting on the login and refresh routes. Without
// it the engine imposes no request budgets.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics registers the engine's prometheus collectors on reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.reg = reg
	return b
}

// Build validates the configuration and wires the engine. The returned
// Engine is immutable and safe for concurrent use.
func (b *Builder) Build() (*Engine, error) {
	if b.store == nil {
		return nil, errors.New("a refresh token store is required")
	}
	if b.users == nil {
		return nil, errors.New("a user provider is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		SigningMethod: token.SigningMethod(b.config.JWT.SigningMethod),
		Secret:        b.config.JWT.Secret,
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	// The dummy hash only has to be well-formed; its plaintext is never
	// accepted because real lookups fail first.
	dummyHash, err := hasher.Hash("decoy-credential-padding")
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if b.redis != nil {
		limiter = rate.New(b.redis, "authcore")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		config:    cloneConfig(b.config),
		tokens:    tokens,
		store:     b.store,
		limiter:   limiter,
		users:     b.users,
		hasher:    hasher,
		logger:    logger,
		metrics:   NewMetrics(b.reg),
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

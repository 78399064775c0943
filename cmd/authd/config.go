package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/campusgate/authcore"
)

// duration lets YAML carry Go duration syntax ("15m", "168h").
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig is the YAML layout of the daemon configuration. Durations use
// Go syntax ("15m", "168h").
type fileConfig struct {
	Listen string `yaml:"listen"`
	Env    string `yaml:"env"` // "production" (default) or "development"

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cookies struct {
		Domain   string `yaml:"domain"`
		Insecure bool   `yaml:"insecure"` // development only: drop the Secure attribute
	} `yaml:"cookies"`

	Auth struct {
		AccessTTL       duration `yaml:"access_ttl"`
		RefreshTTL      duration `yaml:"refresh_ttl"`
		SigningMethod   string   `yaml:"signing_method"`
		Secret          string   `yaml:"secret"`
		Issuer          string   `yaml:"issuer"`
		RequireVerified *bool    `yaml:"require_verified"`
	} `yaml:"auth"`

	Prune struct {
		Interval duration `yaml:"interval"`
	} `yaml:"prune"`
}

// loadConfig reads the YAML file and applies defaults and environment
// overrides. AUTHD_JWT_SECRET always wins over the file so the signing
// secret can stay out of config management.
func loadConfig(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Env == "" {
		cfg.Env = "production"
	}
	if cfg.Prune.Interval == 0 {
		cfg.Prune.Interval = duration(time.Hour)
	}
	if secret := os.Getenv("AUTHD_JWT_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}

	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Auth.Secret == "" && cfg.Auth.SigningMethod != "ed25519" {
		return nil, errors.New("auth.secret (or AUTHD_JWT_SECRET) is required")
	}
	return &cfg, nil
}

// engineConfig maps the file onto the engine configuration, keeping the
// library defaults for anything the file does not set.
func (c *fileConfig) engineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	if c.Auth.AccessTTL > 0 {
		cfg.JWT.AccessTTL = time.Duration(c.Auth.AccessTTL)
	}
	if c.Auth.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = time.Duration(c.Auth.RefreshTTL)
	}
	if c.Auth.SigningMethod != "" {
		cfg.JWT.SigningMethod = c.Auth.SigningMethod
	}
	if c.Auth.Issuer != "" {
		cfg.JWT.Issuer = c.Auth.Issuer
	}
	if c.Auth.RequireVerified != nil {
		cfg.Security.RequireVerified = *c.Auth.RequireVerified
	}
	cfg.JWT.Secret = []byte(c.Auth.Secret)
	return cfg
}

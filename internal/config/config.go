package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override, e.g. TRENDS_AUTH_CLIENT_ID.
const EnvPrefix = "TRENDS_"

// Config holds all configuration for the application.
type Config struct {
	LogLevel string        `json:"log_level" validate:"oneof=debug info warn error" env:"LOG_LEVEL"`
	Server   ServerConfig  `json:"server" envPrefix:"SERVER_"`
	Auth     AuthConfig    `json:"auth" envPrefix:"AUTH_"`
	Storage  StorageConfig `json:"storage" envPrefix:"STORAGE_"`
}

// ServerConfig configures the callback and metrics listeners.
type ServerConfig struct {
	Port            int      `json:"port" validate:"min=1,max=65535" env:"PORT"`
	MetricsPort     int      `json:"metrics_port" validate:"min=0,max=65535" env:"METRICS_PORT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" validate:"min=1s" env:"SHUTDOWN_TIMEOUT"`
}

// AuthConfig configures the authorization flow.
type AuthConfig struct {
	ClientID       string   `json:"client_id" validate:"required" env:"CLIENT_ID"`
	RedirectURL    string   `json:"redirect_url" validate:"required,url" env:"REDIRECT_URL"`
	Scopes         []string `json:"scopes" validate:"min=1,dive,required" env:"SCOPES" envSeparator:" "`
	AuthURL        string   `json:"auth_url" validate:"required,url" env:"AUTH_URL"`
	TokenURL       string   `json:"token_url" validate:"required,url" env:"TOKEN_URL"`
	ProfileURL     string   `json:"profile_url" validate:"required,url" env:"PROFILE_URL"`
	VerifierLength int      `json:"verifier_length" validate:"min=43,max=128" env:"VERIFIER_LENGTH"`
	StateLength    int      `json:"state_length" validate:"min=8,max=128" env:"STATE_LENGTH"`
	Timeout        Duration `json:"timeout" validate:"min=1s" env:"TIMEOUT"`
	AttemptTTL     Duration `json:"attempt_ttl" validate:"min=1s" env:"ATTEMPT_TTL"`
	OverlapPolicy  string   `json:"overlap_policy" validate:"oneof=replace reject" env:"OVERLAP_POLICY"`
}

// StorageConfig selects where the pending attempt is persisted.
type StorageConfig struct {
	Driver        string   `json:"driver" validate:"oneof=memory sqlite" env:"DRIVER"`
	Path          string   `json:"path" validate:"required_if=Driver sqlite" env:"PATH"`
	EncryptionKey string   `json:"encryption_key" validate:"omitempty,hexadecimal,len=64" env:"ENCRYPTION_KEY"`
	PurgeInterval Duration `json:"purge_interval" env:"PURGE_INTERVAL"`
}

// Key decodes the hex encryption key.
func (s StorageConfig) Key() ([]byte, error) {
	key, err := hex.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	return key, nil
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		return err
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalText lets environment overrides use Go duration syntax.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Default returns the configuration used for anything the file and the
// environment leave unset.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            4200,
			MetricsPort:     9090,
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Auth: AuthConfig{
			RedirectURL: "http://localhost:4200/callback",
			Scopes: []string{
				"user-read-private",
				"user-read-email",
				"playlist-read-private",
				"playlist-read-collaborative",
			},
			AuthURL:        "https://accounts.spotify.com/authorize",
			TokenURL:       "https://accounts.spotify.com/api/token",
			ProfileURL:     "https://api.spotify.com/v1/me",
			VerifierLength: 128,
			StateLength:    16,
			Timeout:        Duration{15 * time.Second},
			AttemptTTL:     Duration{10 * time.Minute},
			OverlapPolicy:  "replace",
		},
		Storage: StorageConfig{
			Driver:        "memory",
			Path:          "listeningtrends.db",
			PurgeInterval: Duration{time.Hour},
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file and
// environment variables, in increasing precedence. A .env file in the working
// directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if c.Storage.Driver == "sqlite" && c.Storage.EncryptionKey == "" {
		return fmt.Errorf("storage encryption key is required for the sqlite driver")
	}

	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.Port {
		return fmt.Errorf("metrics port %d collides with server port", c.Server.MetricsPort)
	}

	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/photolala/photolala-access/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// Environment selects the deployment the client talks to and keeps its
// on-disk state apart from other environments.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

// AccountSource represents where the signed-in account comes from.
type AccountSource string

const (
	AccountSourceStore  AccountSource = "store"
	AccountSourceEnv    AccountSource = "env"
	AccountSourceStatic AccountSource = "static"
)

// StorageType represents the different storage types supported for tokens and grants.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeEnv     StorageType = "env"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeSQLite  StorageType = "sqlite"
)

// Default configuration values
const (
	DefaultConfigLogFormat        = LogFormatText
	DefaultConfigEnvironment      = EnvironmentProduction
	DefaultConfigAccountSource    = AccountSourceStore
	DefaultConfigAccountEnvKey    = "PHOTOLALA_ACCOUNT_ID"
	DefaultConfigScope            = "photos.readonly"
	DefaultConfigCredentials      = StorageTypeFile
	DefaultConfigGrants           = StorageTypeFile
	DefaultConfigKeyringService   = "photolala-access"
	DefaultConfigEnvPrefix        = "PHOTOLALA_TOKEN_"
	DefaultConfigLibraryBaseURL   = "https://photoslibrary.googleapis.com/v1"
	DefaultConfigRefreshInterval  = 15 * time.Minute
	DefaultConfigRefreshWorkers   = 4
	DefaultConfigShutdownTimeout  = 5 * time.Second
	DefaultConfigGatewayHost      = "127.0.0.1"
	DefaultConfigGatewayPort      = 4180
	DefaultConfigGrantKeyringName = "photolala-access-grants"
)

// AccountConfig describes the account registry.
type AccountConfig struct {
	Source AccountSource `json:"source" validate:"required,oneof=store env static"`
	EnvKey string        `json:"env_key,omitempty"` // For env source: variable holding the account
	Email  string        `json:"email,omitempty"`   // For static source
}

// OAuthConfig holds the OAuth client registration and requested scope.
type OAuthConfig struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret,omitempty"`
	Scope        string `json:"scope" validate:"required"`
	TokenURL     string `json:"token_url,omitempty" validate:"omitempty,url"`
	AuthURL      string `json:"auth_url,omitempty" validate:"omitempty,url"`
}

// CredentialsConfig describes where refresh tokens and the signed-in account live.
type CredentialsConfig struct {
	Storage        StorageType `json:"storage" validate:"required,oneof=file keyring env"`
	Dir            string      `json:"dir,omitempty"`
	KeyringService string      `json:"keyring_service,omitempty"`
	EnvPrefix      string      `json:"env_prefix,omitempty"`
}

// NewTokenStore creates a TokenStore from the credentials configuration.
func (c *CredentialsConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch c.Storage {
	case StorageTypeFile:
		return tokenstore.NewFileStore(c.Dir)
	case StorageTypeEnv:
		return tokenstore.NewEnvStore(c.EnvPrefix)
	case StorageTypeKeyring:
		return tokenstore.NewKeyringStore(c.KeyringService)
	default:
		return nil, fmt.Errorf("unsupported credentials storage type: %s", c.Storage)
	}
}

// GrantsConfig describes where resource grants are persisted.
type GrantsConfig struct {
	Storage        StorageType   `json:"storage" validate:"required,oneof=file keyring sqlite"`
	Dir            string        `json:"dir,omitempty"`
	SQLitePath     string        `json:"sqlite_path,omitempty"`
	KeyringService string        `json:"keyring_service,omitempty"`
	MaxAge         time.Duration `json:"max_age,omitempty"` // Age after which a grant is re-minted on use
}

// NewTokenStore creates the TokenStore backing the grant repository. The
// sqlite store must be closed by the caller.
func (g *GrantsConfig) NewTokenStore(ctx context.Context, logger *slog.Logger) (tokenstore.TokenStore, error) {
	switch g.Storage {
	case StorageTypeFile:
		return tokenstore.NewFileStore(g.Dir)
	case StorageTypeKeyring:
		return tokenstore.NewKeyringStore(g.KeyringService)
	case StorageTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(g.SQLitePath), 0o700); err != nil {
			return nil, fmt.Errorf("creating grants database directory: %w", err)
		}
		return tokenstore.NewSQLiteStore(ctx, g.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unsupported grants storage type: %s", g.Storage)
	}
}

// LibraryConfig holds the photo library API settings and the local library roots.
type LibraryConfig struct {
	BaseURL string   `json:"base_url" validate:"required,url"`
	Roots   []string `json:"roots,omitempty"`
}

// GatewayConfig holds the local authenticating gateway settings.
type GatewayConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host" validate:"hostname_rfc1123|ip"`
	Port    uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// RefreshConfig controls the opt-in background refresher.
type RefreshConfig struct {
	Interval    time.Duration `json:"interval"`
	Concurrency int           `json:"concurrency" validate:"gte=1"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level        `json:"log_level"`
	LogFormat   LogFormat         `json:"log_format" validate:"oneof=text json otel"`
	Environment Environment       `json:"environment" validate:"oneof=development staging production"`
	Account     AccountConfig     `json:"account"`
	OAuth       OAuthConfig       `json:"oauth"`
	Credentials CredentialsConfig `json:"credentials"`
	Grants      GrantsConfig      `json:"grants"`
	Library     LibraryConfig     `json:"library"`
	Gateway     GatewayConfig     `json:"gateway"`
	Refresh     RefreshConfig     `json:"refresh"`
	Shutdown    ShutdownConfig    `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// DataDir is the per-environment directory under the user config dir.
func (c *Config) DataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	name := "photolala-access"
	if c.Environment != "" && c.Environment != EnvironmentProduction {
		name += "-" + string(c.Environment)
	}

	return filepath.Join(configDir, name), nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Environment == "" {
		c.Environment = DefaultConfigEnvironment
	}
	if c.Account.Source == "" {
		c.Account.Source = DefaultConfigAccountSource
	}
	if c.Account.Source == AccountSourceEnv && c.Account.EnvKey == "" {
		c.Account.EnvKey = DefaultConfigAccountEnvKey
	}
	if c.OAuth.Scope == "" {
		c.OAuth.Scope = DefaultConfigScope
	}
	if c.Credentials.Storage == "" {
		c.Credentials.Storage = DefaultConfigCredentials
	}
	if c.Grants.Storage == "" {
		c.Grants.Storage = DefaultConfigGrants
	}
	if c.Library.BaseURL == "" {
		c.Library.BaseURL = DefaultConfigLibraryBaseURL
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = DefaultConfigRefreshInterval
	}
	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = DefaultConfigRefreshWorkers
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultConfigGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultConfigGatewayPort
	}

	// Dynamic defaults based on storage type
	switch c.Credentials.Storage {
	case StorageTypeFile:
		if c.Credentials.Dir == "" {
			dataDir, err := c.DataDir()
			if err != nil {
				return fmt.Errorf("credentials.dir required (auto-detect failed: %w)", err)
			}
			c.Credentials.Dir = filepath.Join(dataDir, "credentials")
		}
	case StorageTypeKeyring:
		if c.Credentials.KeyringService == "" {
			c.Credentials.KeyringService = DefaultConfigKeyringService
		}
	case StorageTypeEnv:
		if c.Credentials.EnvPrefix == "" {
			c.Credentials.EnvPrefix = DefaultConfigEnvPrefix
		}
	}

	switch c.Grants.Storage {
	case StorageTypeFile:
		if c.Grants.Dir == "" {
			dataDir, err := c.DataDir()
			if err != nil {
				return fmt.Errorf("grants.dir required (auto-detect failed: %w)", err)
			}
			c.Grants.Dir = filepath.Join(dataDir, "grants")
		}
	case StorageTypeSQLite:
		if c.Grants.SQLitePath == "" {
			dataDir, err := c.DataDir()
			if err != nil {
				return fmt.Errorf("grants.sqlite_path required (auto-detect failed: %w)", err)
			}
			c.Grants.SQLitePath = filepath.Join(dataDir, "grants.db")
		}
	case StorageTypeKeyring:
		if c.Grants.KeyringService == "" {
			c.Grants.KeyringService = DefaultConfigGrantKeyringName
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// Signing in writes the account and refresh token (env is read-only)
	if c.Account.Source == AccountSourceStore && c.Credentials.Storage == StorageTypeEnv {
		return errors.New("account source store requires writable credentials storage, env is read-only")
	}

	switch c.Account.Source {
	case AccountSourceEnv:
		if c.Account.EnvKey == "" {
			return errors.New("account.env_key required for env account source")
		}
	case AccountSourceStatic:
		if c.Account.Email == "" {
			return errors.New("account.email required for static account source")
		}
	}

	switch c.Credentials.Storage {
	case StorageTypeFile:
		if c.Credentials.Dir == "" {
			return errors.New("credentials.dir required for file storage")
		}
	case StorageTypeEnv:
		if c.Credentials.EnvPrefix == "" {
			return errors.New("credentials.env_prefix required for env storage")
		}
	case StorageTypeKeyring:
		if c.Credentials.KeyringService == "" {
			return errors.New("credentials.keyring_service required for keyring storage")
		}
	}

	switch c.Grants.Storage {
	case StorageTypeFile:
		if c.Grants.Dir == "" {
			return errors.New("grants.dir required for file storage")
		}
	case StorageTypeSQLite:
		if c.Grants.SQLitePath == "" {
			return errors.New("grants.sqlite_path required for sqlite storage")
		}
	case StorageTypeKeyring:
		if c.Grants.KeyringService == "" {
			return errors.New("grants.keyring_service required for keyring storage")
		}
	}

	if c.Refresh.Interval < 0 {
		return errors.New("refresh.interval cannot be negative")
	}

	return nil
}

// Package config loads the server settings from OPSREPORT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"opsreport/internal/blob"
	"opsreport/internal/core"
)

// Config stores environment-driven settings for the server.
type Config struct {
	// HTTPAddr is the listen address of the API server.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	// LogLevel sets the logger level.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string `env:"JWT_SECRET"`
	// JWTIssuer is the iss claim written and required.
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"opsreport"`
	// PolicyFile optionally overrides the approval routing tables.
	PolicyFile string `env:"POLICY_FILE"`
	// SubmitRatePerMinute limits write requests per principal; 0 disables the limit.
	SubmitRatePerMinute int `env:"SUBMIT_RATE_PER_MINUTE" envDefault:"60"`
	// AllowDeleteResolved lets administrators delete approved or rejected requests.
	AllowDeleteResolved bool `env:"ALLOW_DELETE_RESOLVED" envDefault:"true"`
	// TraceSpans writes a JSON line per service operation to stderr.
	TraceSpans bool `env:"TRACE_SPANS" envDefault:"false"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Storage Storage
	Archive Archive `envPrefix:"ARCHIVE_"`
}

// Storage selects the persistence backend.
type Storage struct {
	Driver      string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./opsreport.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
}

// Archive selects the resolution archive backend. Driver "none" disables archiving.
type Archive struct {
	Driver string `env:"DRIVER" envDefault:"fs"`
	FSRoot string `env:"FS_ROOT" envDefault:"./archive"`
	S3     S3     `envPrefix:"S3_"`
}

// S3 holds the archive bucket settings for the s3 driver.
type S3 struct {
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
	PathStyle       bool   `env:"PATH_STYLE" envDefault:"false"`
}

const envPrefix = "OPSREPORT_"

// ArchiveDisabled is the archive driver value that turns archiving off.
const ArchiveDisabled = "none"

// Load parses environment variables into Config.
func Load() (Config, error) {
	return parse(env.Options{Prefix: envPrefix})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environment map[string]string) (Config, error) {
	return parse(env.Options{Prefix: envPrefix, Environment: environment})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New(envPrefix+"JWT_SECRET is required"))
	}
	if c.SubmitRatePerMinute < 0 {
		errs = append(errs, errors.New(envPrefix+"SUBMIT_RATE_PER_MINUTE must not be negative"))
	}
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New(envPrefix+"POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Archive.Driver) {
	case ArchiveDisabled, blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New(envPrefix+"ARCHIVE_S3_BUCKET is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}
	return errors.Join(errs...)
}

// StorageConfig maps the settings onto the persistence factory's config.
func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// ArchiveEnabled reports whether resolutions are archived.
func (c Config) ArchiveEnabled() bool {
	return c.Archive.Driver != ArchiveDisabled
}

// BlobConfig maps the archive settings onto the blob factory's config.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Archive.Driver),
		FSRoot: c.Archive.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Archive.S3.Bucket,
			Region:          c.Archive.S3.Region,
			Endpoint:        c.Archive.S3.Endpoint,
			AccessKeyID:     c.Archive.S3.AccessKeyID,
			SecretAccessKey: c.Archive.S3.SecretAccessKey,
			SessionToken:    c.Archive.S3.SessionToken,
			PathStyle:       c.Archive.S3.PathStyle,
		},
	}
}

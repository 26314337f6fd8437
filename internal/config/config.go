package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// LOCKER_STORAGE_ROOT=/srv/uploads.
const EnvPrefix = "LOCKER"

// Config is the complete locker configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`

	// Archive is only needed by locker-archive and is validated there.
	Archive ArchiveConfig `mapstructure:"archive" validate:"-"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json logfmt"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`

	// MaxRequestBytes caps a whole upload request including multipart
	// framing. It must leave room for the largest permitted file.
	MaxRequestBytes int64 `mapstructure:"max_request_bytes" validate:"gt=0"`

	// Credentials for mutating endpoints. Authentication is disabled when
	// neither an access key nor a token is configured.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key" validate:"required_with=AccessKey"`
	Token     string `mapstructure:"token"`
}

type StorageConfig struct {
	Root          string        `mapstructure:"root" validate:"required"`
	BaseURL       string        `mapstructure:"base_url" validate:"required"`
	PublicPrefix  string        `mapstructure:"public_prefix" validate:"required,startswith=/"`
	StagingMaxAge time.Duration `mapstructure:"staging_max_age" validate:"gt=0"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`

	// RequireEntities rejects uploads for entities that were not registered
	// through the entity endpoint.
	RequireEntities bool `mapstructure:"require_entities"`
}

type ArchiveConfig struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required"`
	AccessKey string `mapstructure:"access_key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" validate:"required"`
	Bucket    string `mapstructure:"bucket" validate:"required"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// keys lists every setting so that environment overrides work without a
// config file; viper only consults the environment for keys it knows.
var keys = []string{
	"logging.level",
	"logging.format",
	"server.listen",
	"server.shutdown_timeout",
	"server.read_timeout",
	"server.write_timeout",
	"server.max_request_bytes",
	"server.access_key",
	"server.secret_key",
	"server.token",
	"storage.root",
	"storage.base_url",
	"storage.public_prefix",
	"storage.staging_max_age",
	"database.path",
	"database.require_entities",
	"archive.endpoint",
	"archive.access_key",
	"archive.secret_key",
	"archive.bucket",
	"archive.region",
	"archive.use_ssl",
}

// Load reads the configuration.
//
// Precedence, highest first: LOCKER_* environment variables, the YAML file
// at configPath (skipped when empty), defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	return nil
}

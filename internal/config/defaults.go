package config

import (
	"strings"
	"time"

	"locker/internal/assets"
)

// ApplyDefaults fills zero values with defaults. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyDatabaseDefaults(&cfg.Database)
	applyArchiveDefaults(&cfg.Archive)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.MaxRequestBytes == 0 {
		cfg.MaxRequestBytes = assets.MaxUploadBytes + assets.MiB
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		cfg.Root = "./data/uploads"
	}
	if cfg.PublicPrefix == "" {
		cfg.PublicPrefix = "/uploads"
	}
	if !strings.HasPrefix(cfg.PublicPrefix, "/") {
		cfg.PublicPrefix = "/" + cfg.PublicPrefix
	}
	cfg.PublicPrefix = strings.TrimRight(cfg.PublicPrefix, "/")
	if cfg.PublicPrefix == "" {
		cfg.PublicPrefix = "/uploads"
	}
	if cfg.BaseURL == "" {
		// Host-relative URLs work behind any proxy that forwards the prefix.
		cfg.BaseURL = cfg.PublicPrefix
	}
	if cfg.StagingMaxAge == 0 {
		cfg.StagingMaxAge = time.Hour
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Path == "" {
		cfg.Path = "./data/locker.sqlite"
	}
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "locker-archive"
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

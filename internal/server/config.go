package server

import (
	"context"

	"locker/internal/assets"
	"locker/internal/auth"
	"locker/internal/records"

	"github.com/prometheus/client_golang/prometheus"
)

// RecordStore persists a row per committed asset.
type RecordStore interface {
	Insert(ctx context.Context, a records.Asset) (records.Asset, error)
	ListByEntity(ctx context.Context, ref assets.EntityRef) ([]records.Asset, error)
	DeleteByPath(ctx context.Context, filePath string) error
}

// EntityRegistry knows which entities exist.
type EntityRegistry interface {
	Exists(ctx context.Context, ref assets.EntityRef) (bool, error)
	RegisterEntity(ctx context.Context, ref assets.EntityRef, displayName string) error
}

var (
	_ RecordStore    = (*records.Store)(nil)
	_ EntityRegistry = (*records.Store)(nil)
)

type Config struct {
	Store *assets.Store

	// Records and Entities are optional collaborators.
	Records  RecordStore
	Entities EntityRegistry

	// RequireEntities rejects uploads whose entity is not in Entities.
	RequireEntities bool

	// Authenticator guards mutating endpoints. Nil disables authentication.
	Authenticator auth.AuthEngine

	// PublicPrefix is the URL path committed assets are served under.
	PublicPrefix string

	MaxRequestBytes int64

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type ConfigOption func(*Config)

func WithStore(store *assets.Store) ConfigOption {
	return func(cfg *Config) {
		cfg.Store = store
	}
}

func WithRecords(store RecordStore) ConfigOption {
	return func(cfg *Config) {
		cfg.Records = store
	}
}

func WithEntityRegistry(registry EntityRegistry, require bool) ConfigOption {
	return func(cfg *Config) {
		cfg.Entities = registry
		cfg.RequireEntities = require
	}
}

func WithAuthEngine(authenticator auth.AuthEngine) ConfigOption {
	return func(cfg *Config) {
		cfg.Authenticator = authenticator
	}
}

func WithPublicPrefix(prefix string) ConfigOption {
	return func(cfg *Config) {
		cfg.PublicPrefix = prefix
	}
}

func WithMaxRequestBytes(n int64) ConfigOption {
	return func(cfg *Config) {
		cfg.MaxRequestBytes = n
	}
}

func WithGatherer(g prometheus.Gatherer) ConfigOption {
	return func(cfg *Config) {
		cfg.Gatherer = g
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

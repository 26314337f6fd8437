package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"locker/internal/archive"
	"locker/internal/assets"
	"locker/internal/config"
	"locker/internal/logging"
)

func Run(ctx context.Context) error {

	configPath := flag.String("config", "", "path to a YAML config file")
	entityType := flag.String("entity-type", "", "entity type to archive (team, player, league, official)")
	entityID := flag.String("entity-id", "", "entity id to archive")
	concurrency := flag.Int("concurrency", archive.DefaultConcurrency, "parallel object uploads")

	flag.Parse()

	if *entityType == "" || *entityID == "" {
		return errors.New("-entity-type and -entity-id are required")
	}

	kind, ok := assets.ParseEntityKind(*entityType)
	if !ok {
		return fmt.Errorf("unknown entity type %q", *entityType)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logging.Setup(os.Stderr, cfg.Logging)

	if err := config.ValidateArchive(&cfg.Archive); err != nil {
		return fmt.Errorf("archive configuration: %w", err)
	}

	store, err := assets.New(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to open asset store: %w", err)
	}

	client, err := minio.New(cfg.Archive.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Archive.AccessKey, cfg.Archive.SecretKey, ""),
		Secure: cfg.Archive.UseSSL,
		Region: cfg.Archive.Region,
	})
	if err != nil {
		return fmt.Errorf("failed to create archive client: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := archive.EnsureBucket(ctx, client, cfg.Archive.Bucket, cfg.Archive.Region); err != nil {
		return err
	}

	archiver := &archive.Archiver{
		Store:       store,
		Client:      client,
		Bucket:      cfg.Archive.Bucket,
		Concurrency: *concurrency,
	}

	ref := assets.EntityRef{Kind: kind, ID: *entityID}
	n, err := archiver.Entity(ctx, ref)
	if err != nil {
		return err
	}

	slog.Info("Archive complete", "entity_type", ref.Kind, "entity_id", ref.ID, "objects", n, "bucket", cfg.Archive.Bucket)
	return nil
}

func main() {
	if err := Run(context.Background()); err != nil {
		slog.Error("Archive failed", "error", err)
		os.Exit(1)
	}
}

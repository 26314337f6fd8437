package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"locker/internal/assets"
	"locker/internal/auth"
	"locker/internal/config"
	"locker/internal/logging"
	"locker/internal/records"
	"locker/internal/server"
)

func Run(ctx context.Context) error {

	configPath := flag.String("config", "", "path to a YAML config file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logging.Setup(os.Stdout, cfg.Logging)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	observer, err := assets.NewPrometheusObserver("", registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := assets.New(cfg.Storage.Root, cfg.Storage.BaseURL, assets.WithObserver(observer))
	if err != nil {
		return fmt.Errorf("failed to open asset store: %w", err)
	}

	// Anything left in staging was abandoned by a previous process.
	if n, err := store.SweepStaging(cfg.Storage.StagingMaxAge); err != nil {
		slog.Warn("Sweep staging directory", "err", err)
	} else if n > 0 {
		slog.Info("Removed abandoned staged files", "count", n)
	}

	db, err := records.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer db.Close()

	authenticator := auth.FromCredentials(cfg.Server.AccessKey, cfg.Server.SecretKey, cfg.Server.Token)
	if authenticator == nil {
		slog.Warn("No credentials configured, mutating endpoints are open")
	}

	srv, err := server.NewServer(server.NewConfig(
		server.WithStore(store),
		server.WithRecords(db),
		server.WithEntityRegistry(db, cfg.Database.RequireEntities),
		server.WithAuthEngine(authenticator),
		server.WithPublicPrefix(cfg.Storage.PublicPrefix),
		server.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
		server.WithGatherer(registry),
	))
	if err != nil {
		return fmt.Errorf("failed to create locker server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		slog.Info("Shutting down Locker HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		ticker := time.NewTicker(cfg.Storage.StagingMaxAge)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := store.SweepStaging(cfg.Storage.StagingMaxAge); err != nil {
					slog.Warn("Sweep staging directory", "err", err)
				} else if n > 0 {
					slog.Info("Removed abandoned staged files", "count", n)
				}
			}
		}
	})

	eg.Go(func() error {
		slog.Info("Starting Locker HTTP server",
			"listen", cfg.Server.Listen,
			"root", store.Root(),
			"public_prefix", srv.Config.PublicPrefix,
		)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Locker Started")
	return eg.Wait()
}

func main() {
	if err := Run(context.Background()); err != nil {
		slog.Error("Locker exited with error", "error", err)
		os.Exit(1)
	}
}

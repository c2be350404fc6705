package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sprintboard/api/internal/app"
	"sprintboard/api/internal/config"
	"sprintboard/api/internal/docs"
	"sprintboard/api/internal/email"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/search"
	"sprintboard/api/internal/session"
	"sprintboard/api/internal/store"
	"sprintboard/api/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := slog.Default()

	db, dialect, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.TelemetryEnabled,
		Stdout:      cfg.TelemetryStdout,
		ServiceName: "sprintboard-api",
		Version:     version,
	}); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	if err := os.MkdirAll(cfg.DocsDir, 0o755); err != nil {
		return err
	}

	dataStore := store.NewSQLStore(db, dialect)
	deps := app.Deps{
		Store:   dataStore,
		Backlog: telemetry.WrapStore(dataStore),
		Logger:  logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for refresh sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	}

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		engine = meili
	}
	searchService := search.NewService(engine, dataStore, logger)
	deps.Search = searchService
	deps.Indexer = searchService

	docService := docs.New(cfg.DocsDir)
	deps.Docs = docService

	var archive export.Archiver
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minio, err := export.NewArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return err
		}
		if err := minio.EnsureBucket(ctx); err != nil {
			logger.Warn("export archive unavailable", "error", err)
		} else {
			archive = minio
		}
	}
	deps.Exporter = export.NewService(docService, archive, logger)

	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mail.IsConfigured() {
		deps.Notifier = app.NewEmailNotifier(mail, dataStore, cfg.PublicURL, logger)
	}

	service := app.New(cfg, deps)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap failed, will retry on next restart", "error", err)
	}
	go func() {
		if err := service.ReindexSearch(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("search reindex failed", "error", err)
		}
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("sprintboard api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/manthysbr/ocrflow/internal/adapters/duckdb"
	"github.com/manthysbr/ocrflow/internal/adapters/mistral"
	appconfig "github.com/manthysbr/ocrflow/internal/config"
	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/manthysbr/ocrflow/internal/core/services"
	"github.com/manthysbr/ocrflow/pkg/kernel"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		logger.Info("starting ocrflow kernel")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runServer(ctx, logger); err != nil {
			logger.Error("kernel failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides OCRFLOW_ADDR)")
}

func runServer(ctx context.Context, logger *slog.Logger) error {
	rc, err := appconfig.LoadRuntimeConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		rc.Addr = serveAddr
	}

	shutdownMetrics, err := setupMetrics(rc.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	// Initialize Adapters
	repo, err := duckdb.NewRepository(rc.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	secretKey, err := appconfig.LoadSecretKey(rc)
	if err != nil {
		return fmt.Errorf("failed to init secret key: %w", err)
	}
	settingsStore, err := appconfig.NewSettingsStore(logger, repo, secretKey)
	if err != nil {
		return fmt.Errorf("failed to init settings store: %w", err)
	}
	settingsStore.ApplyOverrides(appconfig.ProviderFromEnv())

	// Initialize Core Services
	eng := newEngine(logger, rc, rc.WorkspaceDir, mistral.NewClient(settingsStore.GetConfig().OCR))
	eng.pool.SetHistory(repo)

	// Hot-swap the OCR client when settings change
	settingsStore.OnChange(func(cfg *domain.AppConfig) {
		eng.service.UpdateConverter(mistral.NewClient(cfg.OCR))
		logger.Info("ocr client reloaded", "base_url", cfg.OCR.BaseURL, "model", cfg.OCR.Model)
	})

	reaper := services.NewReaper(logger, eng.registry, eng.service, eng.workspace, rc.ReapInterval, rc.TaskRetention)

	// Initialize Kernel API Server
	apiServer, err := kernel.NewServer(logger, eng.service, eng.progress, settingsStore, repo, rc.KeepAfterDownload)
	if err != nil {
		return fmt.Errorf("failed to init api server: %w", err)
	}

	origins := rc.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:5174"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              rc.Addr,
		Handler:           c.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.pool.Run(gCtx)
	})

	g.Go(func() error {
		return reaper.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting api server", "addr", rc.Addr, "workers", rc.Workers)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/umami-labs/brigade/pkg/api"
	"github.com/umami-labs/brigade/pkg/cleanup"
	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/database"
	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/metrics"
	"github.com/umami-labs/brigade/pkg/pubchem"
	"github.com/umami-labs/brigade/pkg/resource"
	"github.com/umami-labs/brigade/pkg/retrieval"
	"github.com/umami-labs/brigade/pkg/services"
	"github.com/umami-labs/brigade/pkg/store"
)

const decayInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the brigade server (default command)",
	RunE:  runServe,
}

// indexHandle is the opaque resident token for one loaded index dataset.
type indexHandle struct {
	Name string
	Path string
}

// indexLoader loads index datasets from the data directory.
func indexLoader(dataDir string) retrieval.LoadFunc {
	return func(name string) (any, error) {
		path := filepath.Join(dataDir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("dataset %q not ingested at %s: %w", name, path, err)
		}
		return &indexHandle{Name: name, Path: path}, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()
	slog.Info("Starting brigade", "http_port", cfg.HTTPPort)

	var (
		st store.Store
		db *sql.DB
	)
	if cfg.DatabaseURL != "" {
		client, err := database.NewClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		db = client.DB()
		st = store.NewPostgres(db)
		slog.Info("Connected to PostgreSQL database")
	} else {
		st = store.NewMemory()
		slog.Warn("DATABASE_URL unset, sessions are held in memory only")
	}

	if cfg.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required")
	}
	chat := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.ChatModel)

	monitor := resource.NewMonitor(nil)
	compounds := pubchem.NewClient(cfg.PubChemBaseURL)
	monitor.SetReleaseHook(compounds.FlushCache)

	indexes := retrieval.NewManager(indexLoader(cfg.DataDir), func(costMB int) bool {
		return monitor.PressureClass() != config.PressureCritical
	})
	throttle := retrieval.NewThrottle(cfg.EmbeddingPermits)

	metrics.ObserveMonitor(monitor)
	metrics.ObserveThrottle(throttle)

	chatSvc := services.NewChatService(cfg, st, chat, monitor, indexes, compounds)

	decay := cleanup.NewService(st, cfg.SessionIdleTimeout, decayInterval)
	decay.Start(ctx)
	defer decay.Stop()

	srv := api.NewServer(cfg, st, chatSvc, monitor, db)
	httpServer := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: srv.Router()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.GracefulShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Graceful shutdown incomplete", "error", err)
	}
	slog.Info("Brigade stopped")
	return nil
}

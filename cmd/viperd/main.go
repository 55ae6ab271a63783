package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"viperd/internal/api"
	"viperd/internal/config"
	"viperd/internal/llm"
	"viperd/internal/metrics"
	"viperd/internal/secrets"
	"viperd/internal/storage"
)

func main() {
	// A missing .env is fine; the environment takes precedence either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("driver", cfg.DB.Driver).
		Str("data_dir", cfg.DataDir).
		Msg("starting viperd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, cfg.DB.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	if cfg.Secrets.Enabled() {
		keyring, err := secrets.NewKeyring(cfg.Secrets.CurrentKeyID, cfg.Secrets.Keys)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize keyring")
		}
		store.UseKeyring(keyring)
		log.Info().Str("key_id", cfg.Secrets.CurrentKeyID).Msg("api key sealing enabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Store:        store,
		LLM:          llm.NewClient(llm.Config{ConnectTimeout: cfg.LLM.ConnectTimeout, RequestTimeout: cfg.LLM.RequestTimeout}),
		Metrics:      metrics.Global(),
		Logger:       log.Logger,
		CORSOrigins:  cfg.CORS.Origins,
		AllowAllCORS: cfg.CORS.AllowAll(),
		HealthPath:   cfg.HealthPath,
		MetricsPath:  cfg.MetricsPath,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stocksiege/internal/api"
	"stocksiege/internal/config"
	"stocksiege/internal/db"
	"stocksiege/internal/game"
	"stocksiege/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	gameSvc := game.NewService(st, logger, nil)

	if cfg.SeasonSeedPath != "" {
		if err := bootstrapSeason(ctx, gameSvc, cfg.SeasonSeedPath, logger); err != nil {
			logger.Error("season bootstrap failed", "err", err)
			os.Exit(1)
		}
	}

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	server := api.New(cfg, logger, gameSvc, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("siege api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// bootstrapSeason starts a season from the seed file when none exists yet.
// A running season is never replaced; resets stay an explicit admin call.
func bootstrapSeason(ctx context.Context, svc *game.Service, path string, logger *slog.Logger) error {
	if _, err := svc.Market(ctx); err == nil {
		return nil
	}
	mode, names, prices, err := config.LoadSeasonSeed(path)
	if err != nil {
		return err
	}
	if _, err := svc.ResetSeason(ctx, mode, names, prices); err != nil {
		return err
	}
	logger.Info("season seeded", "mode", mode, "path", path)
	return nil
}

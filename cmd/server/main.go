package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/api"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/config"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/services"
)

// Version info (set during build)
var Version = "dev"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := services.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	h := api.NewHandler(app, app.Reader, app.Chat, Version)
	e := api.NewServer(h, api.ServerOptions{
		Password:  cfg.Server.Password,
		BodyLimit: cfg.Server.BodyLimit,
	})
	if cfg.Server.Password == "" {
		slog.Warn("No shared password configured; the API is open.")
	}

	go func() {
		slog.Info("Server listening.", "addr", cfg.Server.Addr, "version", Version)
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

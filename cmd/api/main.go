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

	httpadapter "github.com/kirillkom/fund-facts-assistant/internal/adapters/http"
	"github.com/kirillkom/fund-facts-assistant/internal/bootstrap"
	"github.com/kirillkom/fund-facts-assistant/internal/config"
	"github.com/kirillkom/fund-facts-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.Install(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api")
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		logger.Error("corpus_load_failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := app.WatchRebuilds(ctx); err != nil {
			logger.Warn("rebuild_watch_stopped", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, app.Corpus, app.Answers, app.Metrics).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: cfg.APIReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}

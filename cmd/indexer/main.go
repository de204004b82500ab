package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/fund-facts-assistant/internal/bootstrap"
	"github.com/kirillkom/fund-facts-assistant/internal/config"
	"github.com/kirillkom/fund-facts-assistant/internal/observability/logging"
)

// indexer is a one-shot job: embed the current snapshot and replace every sink.
func main() {
	cfg := config.Load()
	logger := logging.Install(logging.NewJSONLogger("indexer", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, err := bootstrap.NewIndexer(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer ix.Close()

	buildCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	if _, err := ix.Build.Build(buildCtx); err != nil {
		logger.Error("index_build_failed", "error", err, "sinks", cfg.IndexSinks)
		cancel()
		ix.Close()
		os.Exit(1)
	}
}

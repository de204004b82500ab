package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/fund-facts-assistant/internal/adapters/cli"
	"github.com/kirillkom/fund-facts-assistant/internal/bootstrap"
	"github.com/kirillkom/fund-facts-assistant/internal/config"
	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
	"github.com/kirillkom/fund-facts-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries command output and the MCP protocol.
	logging.Install(logging.NewJSONLoggerTo(os.Stderr, "fundctl", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(cli.Deps{
		OpenCorpus: func(ctx context.Context) (ports.CorpusService, func(), error) {
			app, err := bootstrap.New(ctx, cfg, "fundctl")
			if err != nil {
				return nil, nil, err
			}
			if err := app.Start(ctx); err != nil {
				app.Close()
				return nil, nil, err
			}
			return app.Corpus, app.Close, nil
		},
		BuildIndex: func(ctx context.Context) (domain.BuildReport, error) {
			ix, err := bootstrap.NewIndexer(ctx, cfg)
			if err != nil {
				return domain.BuildReport{}, err
			}
			defer ix.Close()
			return ix.Build.Build(ctx)
		},
		ImportSnapshot: func(ctx context.Context, path string) (string, int, error) {
			return bootstrap.ImportSnapshot(ctx, cfg, path)
		},
		DefaultLimit: cfg.RetrievalDefaultLimit,
	})

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

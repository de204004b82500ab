package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/fund-facts-assistant/internal/config"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
	"github.com/kirillkom/fund-facts-assistant/internal/core/usecase"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/snapshot/localfs"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/snapshot/postgres"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/vector/qdrant"
)

var errNoSinks = errors.New("INDEX_SINKS is empty")

// Indexer is the build-time wiring: embed every record and fan out to the sinks.
type Indexer struct {
	Config config.Config
	Build  *usecase.IndexBuildUseCase

	closers []func()
}

func NewIndexer(ctx context.Context, cfg config.Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.IndexSinks) == 0 {
		return nil, errNoSinks
	}
	ix := &Indexer{Config: cfg}

	// Source and the postgres sink share one connection pool.
	var repo *postgres.Repository
	needsRepo := cfg.SnapshotSource == config.SnapshotSourcePostgres
	for _, name := range cfg.IndexSinks {
		needsRepo = needsRepo || name == config.SinkPostgres
	}
	if needsRepo {
		r, closeFn, err := openRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		repo = r
		ix.closers = append(ix.closers, closeFn)
	}

	var source ports.SnapshotSource = localfs.New(cfg.SnapshotPath, cfg.EmbeddingsPath)
	if cfg.SnapshotSource == config.SnapshotSourcePostgres {
		source = repo
	}

	sinks := make([]ports.EmbeddingSink, 0, len(cfg.IndexSinks))
	for _, name := range cfg.IndexSinks {
		switch name {
		case config.SinkFile:
			sinks = append(sinks, localfs.NewEmbeddingsWriter(cfg.EmbeddingsPath))
		case config.SinkQdrant:
			sinks = append(sinks, qdrant.New(cfg.QdrantURL, cfg.QdrantCollection))
		case config.SinkPostgres:
			sinks = append(sinks, repo)
		}
	}

	resCfg := resilienceConfig(cfg)
	client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(client, resilience.NewExecutor(resCfg.For(resilience.ProfileBuildEmbed)))

	var notifier ports.BuildNotifier
	if cfg.NATSEnabled {
		n, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         "fund-facts-indexer",
			ResilienceExecutor: resilience.NewExecutor(resCfg.For(resilience.ProfilePublish)),
		})
		if err != nil {
			ix.Close()
			return nil, fmt.Errorf("init nats notifier: %w", err)
		}
		notifier = n
		ix.closers = append(ix.closers, n.Close)
	}

	ix.Build = usecase.NewIndexBuildUseCase(source, embedder, sinks, notifier, usecase.IndexBuildOptions{
		BatchSize:   cfg.IndexBatchSize,
		Concurrency: cfg.IndexConcurrency,
	})
	return ix, nil
}

func (ix *Indexer) Close() {
	for i := len(ix.closers) - 1; i >= 0; i-- {
		ix.closers[i]()
	}
	ix.closers = nil
}

// ImportSnapshot loads a corpus file and replaces the snapshot stored in Postgres.
func ImportSnapshot(ctx context.Context, cfg config.Config, path string) (string, int, error) {
	repo, closeFn, err := openRepository(ctx, cfg)
	if err != nil {
		return "", 0, err
	}
	defer closeFn()

	snapshot, err := usecase.NewSnapshotImportUseCase(localfs.New(path, cfg.EmbeddingsPath), repo).Import(ctx)
	if err != nil {
		return "", 0, err
	}
	return snapshot.Version, len(snapshot.Records), nil
}

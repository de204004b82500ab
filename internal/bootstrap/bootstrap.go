package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/fund-facts-assistant/internal/config"
	"github.com/kirillkom/fund-facts-assistant/internal/core/analyzer"
	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
	"github.com/kirillkom/fund-facts-assistant/internal/core/usecase"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/embedcache"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/snapshot/localfs"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/snapshot/postgres"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/vector/memory"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/fund-facts-assistant/internal/observability/metrics"
)

// App is the query-time wiring shared by the API server and fundctl.
type App struct {
	Config config.Config

	Metrics  *metrics.HTTPServerMetrics
	Corpus   *usecase.Orchestrator
	Answers  *usecase.AnswerUseCase
	Notifier *nats.Notifier

	closers []func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app := &App{
		Config:  cfg,
		Metrics: metrics.NewHTTPServerMetrics(service),
	}

	source, err := app.snapshotSource(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	queryAnalyzer, err := newAnalyzer(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	breakerListener := resilience.WithStateListener(app.Metrics.ObserveBreakerState)
	resCfg := resilienceConfig(cfg)
	client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)

	vectors := newVectorProvider(cfg)
	var queryEmbedder ports.Embedder
	if vectors != nil {
		queryEmbedder = embedcache.Wrap(
			ollama.NewEmbedder(client, resilience.NewExecutor(resCfg.For(resilience.ProfileQueryEmbed), breakerListener)),
			cfg.EmbedCacheSize,
			cfg.EmbedCacheTTL,
		)
	}

	app.Corpus = usecase.NewOrchestrator(source, queryAnalyzer, queryEmbedder, vectors, usecase.RetrievalOptions{
		EmbedTimeout:        cfg.RetrievalEmbedTimeout,
		CandidateMultiplier: cfg.RetrievalCandidateMultiplier,
		Observer:            app.Metrics,
	})
	generator := ollama.NewGenerator(client, resilience.NewExecutor(resCfg.For(resilience.ProfileGenerate), breakerListener))
	app.Answers = usecase.NewAnswerUseCase(app.Corpus, generator)

	if cfg.NATSEnabled {
		notifier, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         "fund-facts-" + service,
			ResilienceExecutor: resilience.NewExecutor(resCfg.For(resilience.ProfilePublish), breakerListener),
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init nats notifier: %w", err)
		}
		app.Notifier = notifier
		app.closers = append(app.closers, notifier.Close)
	}

	return app, nil
}

// Start loads the corpus. The process must not serve traffic if it fails.
func (a *App) Start(ctx context.Context) error {
	if err := a.Corpus.Initialize(ctx); err != nil {
		return err
	}
	a.Metrics.SetCorpus(a.Corpus.SnapshotVersion(), a.Corpus.RecordCount(), a.Corpus.VectorEnabled())
	slog.Info("app_started",
		"version", a.Corpus.SnapshotVersion(),
		"snapshot_source", a.Config.SnapshotSource,
		"vector_backend", a.Config.VectorBackend,
		"nats_enabled", a.Notifier != nil,
	)
	return nil
}

// WatchRebuilds blocks until ctx is done. The loaded corpus is immutable, so a
// rebuild of a different version is only reported; picking it up needs a restart.
func (a *App) WatchRebuilds(ctx context.Context) error {
	if a.Notifier == nil {
		return nil
	}
	return a.Notifier.SubscribeCorpusRebuilt(ctx, func(_ context.Context, event domain.CorpusRebuilt) error {
		current := a.Corpus.SnapshotVersion()
		if event.Version == current {
			slog.Info("corpus_rebuilt_current", "version", event.Version, "sinks", event.Sinks)
			return nil
		}
		slog.Warn("corpus_rebuilt_restart_required",
			"loaded_version", current,
			"built_version", event.Version,
			"records", event.Records,
			"sinks", event.Sinks,
		)
		return nil
	})
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) snapshotSource(ctx context.Context) (ports.SnapshotSource, error) {
	switch a.Config.SnapshotSource {
	case config.SnapshotSourcePostgres:
		repo, closeFn, err := openRepository(ctx, a.Config)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeFn)
		return repo, nil
	default:
		return localfs.New(a.Config.SnapshotPath, a.Config.EmbeddingsPath), nil
	}
}

func newAnalyzer(cfg config.Config) (*analyzer.Analyzer, error) {
	if cfg.AnalyzerRulesPath == "" {
		return analyzer.Default(), nil
	}
	a, err := analyzer.LoadRulesFile(cfg.AnalyzerRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load analyzer rules: %w", err)
	}
	return a, nil
}

// newVectorProvider returns nil for the substring-only mode.
func newVectorProvider(cfg config.Config) ports.VectorIndexProvider {
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	case config.VectorBackendNone:
		return nil
	default:
		return memory.NewProvider()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.Breaker.Enabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceRetryAttempts > 0 {
		out.Retry.MaxAttempts = cfg.ResilienceRetryAttempts
	}
	return out
}

func openRepository(ctx context.Context, cfg config.Config) (*postgres.Repository, func(), error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, func() { _ = db.Close() }, nil
}

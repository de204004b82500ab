package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
	"github.com/kirillkom/fund-facts-assistant/internal/core/recordstore"
)

const (
	defaultIndexBatchSize   = 16
	defaultIndexConcurrency = 4
)

type IndexBuildOptions struct {
	BatchSize   int
	Concurrency int
}

// IndexBuildUseCase embeds every record of a snapshot and replaces the contents of each sink.
type IndexBuildUseCase struct {
	source   ports.SnapshotSource
	embedder ports.Embedder
	sinks    []ports.EmbeddingSink
	notifier ports.BuildNotifier
	opts     IndexBuildOptions
}

func NewIndexBuildUseCase(
	source ports.SnapshotSource,
	embedder ports.Embedder,
	sinks []ports.EmbeddingSink,
	notifier ports.BuildNotifier,
	opts IndexBuildOptions,
) *IndexBuildUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultIndexBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultIndexConcurrency
	}
	return &IndexBuildUseCase{
		source:   source,
		embedder: embedder,
		sinks:    sinks,
		notifier: notifier,
		opts:     opts,
	}
}

func (uc *IndexBuildUseCase) Build(ctx context.Context) (domain.BuildReport, error) {
	start := time.Now()

	store, err := uc.loadRecords(ctx)
	if err != nil {
		return domain.BuildReport{}, err
	}
	records := store.All()

	vectors, err := uc.embed(ctx, records)
	if err != nil {
		return domain.BuildReport{}, err
	}

	embeddings := make([]domain.Embedding, 0, len(records))
	for i, rec := range records {
		embeddings = append(embeddings, domain.Embedding{
			RecordID:    rec.ID,
			EntityID:    rec.EntityID,
			CategoryTag: rec.CategoryTag,
			Vector:      vectors[i],
		})
	}
	dimensions := len(vectors[0])

	sinkNames, err := uc.replace(ctx, store.Version(), embeddings)
	if err != nil {
		return domain.BuildReport{}, err
	}

	report := domain.BuildReport{
		Version:    store.Version(),
		Records:    len(records),
		Embeddings: len(embeddings),
		Dimensions: dimensions,
		Sinks:      sinkNames,
		Duration:   time.Since(start),
	}
	uc.notify(ctx, report)
	slog.Info("index_build_completed",
		"version", report.Version,
		"records", report.Records,
		"dimensions", report.Dimensions,
		"sinks", report.Sinks,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (uc *IndexBuildUseCase) loadRecords(ctx context.Context) (*recordstore.Store, error) {
	snapshot, err := uc.source.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	store, err := recordstore.Load(snapshot)
	if err != nil {
		return nil, fmt.Errorf("validate snapshot: %w", err)
	}
	return store, nil
}

// embed splits records into batches and embeds them with bounded concurrency.
// Result order matches record order.
func (uc *IndexBuildUseCase) embed(ctx context.Context, records []domain.Record) ([][]float32, error) {
	vectors := make([][]float32, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.Concurrency)
	for lo := 0; lo < len(records); lo += uc.opts.BatchSize {
		hi := min(lo+uc.opts.BatchSize, len(records))
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, rec := range records[lo:hi] {
				texts = append(texts, domain.EmbeddingText(rec))
			}
			batch, err := uc.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed records %d-%d: %w", lo, hi, err)
			}
			if len(batch) != len(texts) {
				return domain.WrapError(
					domain.ErrInvalidInput,
					"embed records",
					fmt.Errorf("vectors/records mismatch: %d/%d", len(batch), len(texts)),
				)
			}
			copy(vectors[lo:hi], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed records", errors.New("embedding provider returned empty vectors"))
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed records",
				fmt.Errorf("record %s has %d dimensions, expected %d", records[i].ID, len(v), dims),
			)
		}
	}
	return vectors, nil
}

func (uc *IndexBuildUseCase) replace(ctx context.Context, version string, embeddings []domain.Embedding) ([]string, error) {
	if len(uc.sinks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "replace embeddings", errors.New("no embedding sinks configured"))
	}
	names := make([]string, 0, len(uc.sinks))
	for _, sink := range uc.sinks {
		if err := sink.ReplaceEmbeddings(ctx, version, embeddings); err != nil {
			return nil, fmt.Errorf("replace embeddings in %s: %w", sink.Name(), err)
		}
		names = append(names, sink.Name())
	}
	return names, nil
}

func (uc *IndexBuildUseCase) notify(ctx context.Context, report domain.BuildReport) {
	if uc.notifier == nil {
		return
	}
	event := domain.CorpusRebuilt{
		Version:    report.Version,
		Records:    report.Records,
		Embeddings: report.Embeddings,
		Dimensions: report.Dimensions,
		Sinks:      report.Sinks,
		BuiltAt:    time.Now().UTC(),
	}
	if err := uc.notifier.PublishCorpusRebuilt(ctx, event); err != nil {
		slog.Warn("corpus_rebuilt_publish_failed", "version", report.Version, "error", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

type batchEmbedderFake struct {
	mu      sync.Mutex
	batches []int
	dims    int
	short   bool
	err     error
}

func (f *batchEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(texts))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v := make([]float32, f.dims)
		if f.dims > 0 {
			v[0] = float32(len(text))
		}
		out = append(out, v)
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *batchEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("not used")
}

type sinkFake struct {
	name     string
	version  string
	received []domain.Embedding
	err      error
}

func (f *sinkFake) Name() string { return f.name }

func (f *sinkFake) ReplaceEmbeddings(_ context.Context, version string, embeddings []domain.Embedding) error {
	if f.err != nil {
		return f.err
	}
	f.version = version
	f.received = embeddings
	return nil
}

type notifierFake struct {
	events []domain.CorpusRebuilt
	err    error
}

func (f *notifierFake) PublishCorpusRebuilt(_ context.Context, event domain.CorpusRebuilt) error {
	f.events = append(f.events, event)
	return f.err
}

func TestIndexBuildEmbedsInBatchesAndFansOut(t *testing.T) {
	embedder := &batchEmbedderFake{dims: 4}
	fileSink := &sinkFake{name: "file"}
	qdrantSink := &sinkFake{name: "qdrant"}
	notifier := &notifierFake{}
	uc := NewIndexBuildUseCase(&snapshotSourceFake{snapshot: testSnapshot()}, embedder,
		[]ports.EmbeddingSink{fileSink, qdrantSink}, notifier, IndexBuildOptions{BatchSize: 2, Concurrency: 2})

	report, err := uc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if report.Records != 5 || report.Embeddings != 5 || report.Dimensions != 4 || report.Version != "test-v1" {
		t.Fatalf("unexpected report %+v", report)
	}
	if strings.Join(report.Sinks, ",") != "file,qdrant" {
		t.Fatalf("unexpected sinks %v", report.Sinks)
	}
	if len(embedder.batches) != 3 {
		t.Fatalf("expected 3 batches for 5 records, got %v", embedder.batches)
	}

	snapshot := testSnapshot()
	for i, emb := range fileSink.received {
		rec := snapshot.Records[i]
		if emb.RecordID != rec.ID || emb.EntityID != rec.EntityID || emb.CategoryTag != rec.CategoryTag {
			t.Fatalf("embedding %d out of order: %+v", i, emb)
		}
		if emb.Vector[0] != float32(len(domain.EmbeddingText(rec))) {
			t.Fatalf("embedding %d built from wrong text", i)
		}
	}
	if len(qdrantSink.received) != 5 || qdrantSink.version != "test-v1" {
		t.Fatalf("expected qdrant sink to receive full set")
	}
	if len(notifier.events) != 1 || notifier.events[0].Dimensions != 4 {
		t.Fatalf("unexpected events %+v", notifier.events)
	}
}

func TestIndexBuildNotifyFailureIsBestEffort(t *testing.T) {
	uc := NewIndexBuildUseCase(&snapshotSourceFake{snapshot: testSnapshot()}, &batchEmbedderFake{dims: 2},
		[]ports.EmbeddingSink{&sinkFake{name: "file"}}, &notifierFake{err: errors.New("nats down")}, IndexBuildOptions{})

	if _, err := uc.Build(context.Background()); err != nil {
		t.Fatalf("expected notify failure to be ignored, got %v", err)
	}
}

func TestIndexBuildFailures(t *testing.T) {
	tests := []struct {
		name     string
		embedder *batchEmbedderFake
		sinks    []*sinkFake
		want     string
	}{
		{name: "provider error", embedder: &batchEmbedderFake{dims: 2, err: errors.New("boom")}, sinks: []*sinkFake{{name: "file"}}, want: "embed records"},
		{name: "count mismatch", embedder: &batchEmbedderFake{dims: 2, short: true}, sinks: []*sinkFake{{name: "file"}}, want: "mismatch"},
		{name: "empty vectors", embedder: &batchEmbedderFake{dims: 0}, sinks: []*sinkFake{{name: "file"}}, want: "empty vectors"},
		{name: "sink error", embedder: &batchEmbedderFake{dims: 2}, sinks: []*sinkFake{{name: "qdrant", err: errors.New("503")}}, want: "replace embeddings in qdrant"},
		{name: "no sinks", embedder: &batchEmbedderFake{dims: 2}, want: "no embedding sinks"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sinks := make([]ports.EmbeddingSink, 0, len(tc.sinks))
			for _, s := range tc.sinks {
				sinks = append(sinks, s)
			}
			notifier := &notifierFake{}
			uc := NewIndexBuildUseCase(&snapshotSourceFake{snapshot: testSnapshot()}, tc.embedder, sinks, notifier, IndexBuildOptions{BatchSize: 2})
			_, err := uc.Build(context.Background())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
			if len(notifier.events) != 0 {
				t.Fatalf("failed build must not publish")
			}
		})
	}
}

func TestIndexBuildRejectsInvalidSnapshot(t *testing.T) {
	uc := NewIndexBuildUseCase(&snapshotSourceFake{snapshot: &domain.Snapshot{Version: "empty"}}, &batchEmbedderFake{dims: 2},
		[]ports.EmbeddingSink{&sinkFake{name: "file"}}, nil, IndexBuildOptions{})
	if _, err := uc.Build(context.Background()); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

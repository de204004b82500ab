package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

const corpusJSON = `{
  "version": "2024-06-01",
  "records": [
    {
      "id": "fund-a-mid-cap__fees",
      "entity_id": "fund-a-mid-cap",
      "entity_display_name": "Fund A Mid Cap",
      "category_tag": "fees",
      "source_ref": "https://example.com/mid-cap",
      "fetched_at": "2024-06-01T10:00:00Z",
      "body_text": "Expense ratio 0.71%",
      "structured_fields": {"expenseRatioPercent": 0.71}
    }
  ]
}`

const corpusYAML = `version: "2024-06-01"
records:
  - id: fund-a-mid-cap__fees
    entity_id: fund-a-mid-cap
    entity_display_name: Fund A Mid Cap
    category_tag: fees
    source_ref: https://example.com/mid-cap
    fetched_at: 2024-06-01T10:00:00Z
    body_text: Expense ratio 0.71%
    structured_fields:
      expenseRatioPercent: 0.71
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSnapshotJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"corpus.json": corpusJSON, "corpus.yaml": corpusYAML} {
		path := writeFile(t, dir, name, body)
		snapshot, err := New(path, filepath.Join(dir, "none.json")).LoadSnapshot(context.Background())
		if err != nil {
			t.Fatalf("%s: LoadSnapshot() error = %v", name, err)
		}
		if snapshot.Version != "2024-06-01" || len(snapshot.Records) != 1 {
			t.Fatalf("%s: unexpected snapshot %+v", name, snapshot)
		}
		rec := snapshot.Records[0]
		if rec.EntityID != "fund-a-mid-cap" || rec.CategoryTag != domain.CategoryFees || rec.FetchedAt.IsZero() {
			t.Fatalf("%s: unexpected record %+v", name, rec)
		}
		if rec.StructuredFields["expenseRatioPercent"] != 0.71 {
			t.Fatalf("%s: unexpected structured fields %#v", name, rec.StructuredFields)
		}
		if len(snapshot.Embeddings) != 0 {
			t.Fatalf("%s: expected no embeddings without side file", name)
		}
	}
}

func TestEmbeddingsRoundTripThroughWriter(t *testing.T) {
	dir := t.TempDir()
	corpus := writeFile(t, dir, "corpus.json", corpusJSON)
	embeddingsPath := filepath.Join(dir, "out", "embeddings.json")

	writer := NewEmbeddingsWriter(embeddingsPath)
	err := writer.ReplaceEmbeddings(context.Background(), "2024-06-01", []domain.Embedding{
		{RecordID: "fund-a-mid-cap__fees", EntityID: "fund-a-mid-cap", CategoryTag: "fees", Vector: []float32{0.25, 0.5}},
	})
	if err != nil {
		t.Fatalf("ReplaceEmbeddings() error = %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(embeddingsPath))
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleaned up, got %d entries", len(entries))
	}

	snapshot, err := New(corpus, embeddingsPath).LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(snapshot.Embeddings) != 1 || snapshot.Embeddings[0].Vector[1] != 0.5 {
		t.Fatalf("unexpected embeddings %+v", snapshot.Embeddings)
	}
}

func TestStaleEmbeddingsAreIgnored(t *testing.T) {
	dir := t.TempDir()
	corpus := writeFile(t, dir, "corpus.json", corpusJSON)
	embeddings := writeFile(t, dir, "embeddings.json", `{"version":"old","embeddings":[{"record_id":"x","vector":[1]}]}`)

	snapshot, err := New(corpus, embeddings).LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(snapshot.Embeddings) != 0 {
		t.Fatalf("expected stale embeddings dropped")
	}
}

func TestLoadSnapshotFailures(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(filepath.Join(dir, "missing.json"), "").LoadSnapshot(context.Background()); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable for missing file, got %v", err)
	}
	bad := writeFile(t, dir, "bad.json", `{"records": [`)
	if _, err := New(bad, "").LoadSnapshot(context.Background()); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable for bad json, got %v", err)
	}
}

func TestMissingVersionIsDerivedFromContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "corpus.json", `{"records": []}`)
	first, err := New(path, "").LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	second, _ := New(path, "").LoadSnapshot(context.Background())
	if first.Version == "" || first.Version != second.Version {
		t.Fatalf("expected stable derived version, got %q and %q", first.Version, second.Version)
	}
}

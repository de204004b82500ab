package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

const (
	defaultCorpusPath     = "./data/corpus.json"
	defaultEmbeddingsPath = "./data/embeddings.json"
)

// embeddingsFile is the on-disk layout written by the indexer. Version ties the
// vectors to the corpus build they were computed from.
type embeddingsFile struct {
	Version    string             `json:"version"`
	Embeddings []domain.Embedding `json:"embeddings"`
}

// Source reads a corpus file (JSON or YAML by extension) and an optional embeddings file.
type Source struct {
	corpusPath     string
	embeddingsPath string
}

func New(corpusPath, embeddingsPath string) *Source {
	if corpusPath == "" {
		corpusPath = defaultCorpusPath
	}
	if embeddingsPath == "" {
		embeddingsPath = defaultEmbeddingsPath
	}
	return &Source{corpusPath: corpusPath, embeddingsPath: embeddingsPath}
}

func (s *Source) LoadSnapshot(_ context.Context) (*domain.Snapshot, error) {
	raw, err := os.ReadFile(s.corpusPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "read corpus file", err)
	}

	var snapshot domain.Snapshot
	if isYAML(s.corpusPath) {
		err = yaml.Unmarshal(raw, &snapshot)
	} else {
		err = json.Unmarshal(raw, &snapshot)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "decode corpus file", err)
	}
	if snapshot.Version == "" {
		sum := sha256.Sum256(raw)
		snapshot.Version = hex.EncodeToString(sum[:])[:12]
	}

	// Embeddings inlined in the corpus file win over the side file.
	if len(snapshot.Embeddings) == 0 {
		snapshot.Embeddings = s.loadEmbeddings(snapshot.Version)
	}
	return &snapshot, nil
}

// loadEmbeddings never fails the load: a missing or stale file only disables vector search.
func (s *Source) loadEmbeddings(version string) []domain.Embedding {
	raw, err := os.ReadFile(s.embeddingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("embeddings_file_missing", "path", s.embeddingsPath)
		return nil
	}
	if err != nil {
		slog.Warn("embeddings_file_unreadable", "path", s.embeddingsPath, "error", err)
		return nil
	}

	var file embeddingsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		slog.Warn("embeddings_file_invalid", "path", s.embeddingsPath, "error", err)
		return nil
	}
	if file.Version != version {
		slog.Warn("embeddings_file_stale",
			"path", s.embeddingsPath,
			"corpus_version", version,
			"embeddings_version", file.Version,
		)
		return nil
	}
	return file.Embeddings
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// EmbeddingsWriter is the file sink of the index build.
type EmbeddingsWriter struct {
	path string
}

func NewEmbeddingsWriter(path string) *EmbeddingsWriter {
	if path == "" {
		path = defaultEmbeddingsPath
	}
	return &EmbeddingsWriter{path: path}
}

func (w *EmbeddingsWriter) Name() string { return "file" }

// ReplaceEmbeddings writes to a temp file in the same directory and renames it over
// the target, so readers never see a partial file.
func (w *EmbeddingsWriter) ReplaceEmbeddings(_ context.Context, version string, embeddings []domain.Embedding) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create embeddings dir: %w", err)
	}
	raw, err := json.Marshal(embeddingsFile{Version: version, Embeddings: embeddings})
	if err != nil {
		return fmt.Errorf("marshal embeddings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".embeddings-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write embeddings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close embeddings: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename embeddings: %w", err)
	}
	return nil
}

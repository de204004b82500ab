package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

const schemaLockKey int64 = 2026101501

// Repository stores one corpus snapshot and its embeddings. Every write replaces the
// previous contents wholesale inside a single transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/indexer startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS corpus_snapshot (
	singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	version TEXT NOT NULL,
	built_at TIMESTAMPTZ NOT NULL,
	embeddings_version TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS fund_records (
	id TEXT PRIMARY KEY,
	ordinal INTEGER NOT NULL,
	entity_id TEXT NOT NULL,
	entity_display_name TEXT NOT NULL,
	category_tag TEXT NOT NULL,
	source_ref TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	body_text TEXT NOT NULL,
	structured_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	content_hash TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fund_records_ordinal ON fund_records(ordinal);

CREATE TABLE IF NOT EXISTS fund_record_embeddings (
	record_id TEXT PRIMARY KEY REFERENCES fund_records(id) ON DELETE CASCADE,
	entity_id TEXT NOT NULL,
	category_tag TEXT NOT NULL,
	embedding vector NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// LoadSnapshot reads the stored snapshot. Embeddings are attached only when they were
// built for the stored version.
func (r *Repository) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	var embeddingsVersion string
	err := r.db.QueryRowContext(ctx, `
SELECT version, built_at, embeddings_version
FROM corpus_snapshot
`).Scan(&snapshot.Version, &snapshot.BuiltAt, &embeddingsVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load snapshot", errors.New("no snapshot stored"))
		}
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load snapshot", err)
	}

	records, err := r.loadRecords(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load records", err)
	}
	snapshot.Records = records

	if embeddingsVersion == snapshot.Version {
		embeddings, err := r.loadEmbeddings(ctx)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCorpusUnavailable, "load embeddings", err)
		}
		snapshot.Embeddings = embeddings
	}
	return &snapshot, nil
}

func (r *Repository) loadRecords(ctx context.Context) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, entity_id, entity_display_name, category_tag, source_ref, fetched_at, body_text, structured_fields, content_hash
FROM fund_records
ORDER BY ordinal
`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var rec domain.Record
		var fieldsRaw []byte
		if err := rows.Scan(
			&rec.ID, &rec.EntityID, &rec.EntityDisplayName, &rec.CategoryTag, &rec.SourceRef,
			&rec.FetchedAt, &rec.BodyText, &fieldsRaw, &rec.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(fieldsRaw) > 0 {
			if err := json.Unmarshal(fieldsRaw, &rec.StructuredFields); err != nil {
				return nil, fmt.Errorf("unmarshal structured fields of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (r *Repository) loadEmbeddings(ctx context.Context) ([]domain.Embedding, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT e.record_id, e.entity_id, e.category_tag, e.embedding
FROM fund_record_embeddings e
JOIN fund_records r ON r.id = e.record_id
ORDER BY r.ordinal
`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.Embedding
	for rows.Next() {
		var emb domain.Embedding
		var vector pgvector.Vector
		if err := rows.Scan(&emb.RecordID, &emb.EntityID, &emb.CategoryTag, &vector); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Vector = vector.Slice()
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// ReplaceSnapshot swaps in a new corpus build. Stored embeddings are dropped with the
// old records; run the indexer afterwards.
func (r *Repository) ReplaceSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	if snapshot == nil || len(snapshot.Records) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "replace snapshot", errors.New("snapshot has no records"))
	}
	builtAt := snapshot.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fund_records`); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	for i, rec := range snapshot.Records {
		fields := rec.StructuredFields
		if fields == nil {
			fields = map[string]any{}
		}
		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("marshal structured fields of %s: %w", rec.ID, err)
		}
		hash := rec.ContentHash
		if hash == "" {
			hash = domain.ContentHash(rec.BodyText)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO fund_records (
	id, ordinal, entity_id, entity_display_name, category_tag, source_ref, fetched_at, body_text, structured_fields, content_hash
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
			rec.ID, i, rec.EntityID, rec.EntityDisplayName, rec.CategoryTag, rec.SourceRef,
			rec.FetchedAt, rec.BodyText, fieldsJSON, hash,
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO corpus_snapshot (singleton, version, built_at, embeddings_version)
VALUES (TRUE, $1, $2, '')
ON CONFLICT (singleton) DO UPDATE SET
	version = EXCLUDED.version,
	built_at = EXCLUDED.built_at,
	embeddings_version = ''
`, snapshot.Version, builtAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (r *Repository) Name() string { return "postgres" }

// ReplaceEmbeddings stores the full embedding set and marks it as built for version.
func (r *Repository) ReplaceEmbeddings(ctx context.Context, version string, embeddings []domain.Embedding) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin embeddings tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fund_record_embeddings`); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	for _, emb := range embeddings {
		_, err := tx.ExecContext(ctx, `
INSERT INTO fund_record_embeddings (record_id, entity_id, category_tag, embedding)
VALUES ($1, $2, $3, $4)
`, emb.RecordID, emb.EntityID, emb.CategoryTag, pgvector.NewVector(emb.Vector))
		if err != nil {
			return fmt.Errorf("insert embedding %s: %w", emb.RecordID, err)
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE corpus_snapshot SET embeddings_version = $1 WHERE version = $1`, version)
	if err != nil {
		return fmt.Errorf("mark embeddings version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark embeddings version rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "replace embeddings", fmt.Errorf("stored snapshot is not version %s", version))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embeddings tx: %w", err)
	}
	return nil
}

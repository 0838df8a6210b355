package vecindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/avollmer/corpus/chunker"
)

func init() {
	sqlite_vec.Auto()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_rows (
    domain TEXT NOT NULL,
    release_id TEXT NOT NULL,
    chunk_id TEXT NOT NULL,
    text TEXT NOT NULL,
    embedding_ref TEXT NOT NULL,
    concept_id TEXT NOT NULL DEFAULT '',
    level TEXT NOT NULL DEFAULT '',
    graph_id TEXT NOT NULL DEFAULT '',
    graph_version TEXT NOT NULL DEFAULT '',
    dataset_version TEXT NOT NULL DEFAULT '',
    index_version TEXT NOT NULL DEFAULT '',
    embedding BLOB NOT NULL,
    PRIMARY KEY (domain, release_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_rows_release ON index_rows(domain, release_id);
`

// SQLite is the VECTOR_STORE_ADAPTER=sqlite backend: one database under
// the vector root, rows keyed by (domain, release_id, chunk_id), vectors
// as little-endian float32 blobs scored with vec_distance_cosine. It
// honours the same scoping, filter, and ordering contract as the JSONL
// backend.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) <root>/index.db and initialises the schema.
func NewSQLite(root string) (*SQLite, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("vecindex: create vector root: %w", err)
	}
	dbPath := filepath.Join(root, "index.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("vecindex: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("vecindex: ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vecindex: create schema: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// Upsert loads each chunk's vector from its embedding_ref and replaces the
// row in a single transaction.
func (s *SQLite) Upsert(ctx context.Context, domain, releaseID string, chunks []chunker.Chunk) error {
	if err := validateUpsert(domain, releaseID, chunks); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vecindex: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO index_rows
			(domain, release_id, chunk_id, text, embedding_ref,
			 concept_id, level, graph_id, graph_version, dataset_version, index_version,
			 embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("vecindex: prepare: %w", err)
	}
	defer stmt.Close()
	for _, ch := range chunks {
		vec, err := loadVector(ch.EmbeddingRef)
		if err != nil {
			tx.Rollback()
			return err
		}
		row := rowFromChunk(domain, releaseID, ch)
		if _, err := stmt.ExecContext(ctx,
			row.Domain, row.ReleaseID, row.ChunkID, row.Text, row.EmbeddingRef,
			row.ConceptID, row.Level, row.GraphID, row.GraphVersion, row.DatasetVersion, row.IndexVersion,
			serializeFloat32(vec)); err != nil {
			tx.Rollback()
			return fmt.Errorf("vecindex: upsert %s: %w", row.ChunkID, err)
		}
	}
	return tx.Commit()
}

// Query scores rows in SQL via vec_distance_cosine. Rows whose stored
// vector does not match the query dimension score 0.
func (s *SQLite) Query(ctx context.Context, domain, releaseID string, queryVector []float64, filters map[string]string, topK int) ([]Result, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalid)
	}
	if releaseID == "" {
		return nil, fmt.Errorf("%w: release_id is required", ErrInvalid)
	}
	if topK <= 0 {
		return nil, nil
	}

	scoreExpr := "0.0"
	args := []interface{}{}
	if len(queryVector) > 0 {
		scoreExpr = "CASE WHEN length(embedding) = ? THEN 1.0 - vec_distance_cosine(embedding, ?) ELSE 0.0 END"
		args = append(args, len(queryVector)*4, serializeFloat32(queryVector))
	}

	query := `
		SELECT chunk_id, domain, release_id, text, embedding_ref,
			concept_id, level, graph_id, graph_version, dataset_version, index_version,
			` + scoreExpr + ` AS score
		FROM index_rows
		WHERE domain = ? AND release_id = ?`
	args = append(args, domain, releaseID)
	for _, k := range FilterKeys {
		required := strings.TrimSpace(filters[k])
		if required == "" {
			continue
		}
		query += fmt.Sprintf(" AND %s = ?", k)
		args = append(args, required)
	}
	query += " ORDER BY score DESC, chunk_id ASC LIMIT ?"
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vecindex: query: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.Domain, &r.ReleaseID, &r.Text, &r.EmbeddingRef,
			&r.ConceptID, &r.Level, &r.GraphID, &r.GraphVersion, &r.DatasetVersion, &r.IndexVersion,
			&r.Score); err != nil {
			return nil, fmt.Errorf("vecindex: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// serializeFloat32 converts a vector to little-endian float32 bytes for
// sqlite-vec.
func serializeFloat32(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// SQLiteStore is a durable point archive backed by a local SQLite database.
// It keeps every point with its payload but has no similarity index, so
// Query always fails with rag.ErrNotImplemented.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultSQLitePath returns the default archive path, ~/.ragpipe/points.db,
// creating the directory if needed.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sqlite: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragpipe")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("sqlite: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "points.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS points (
    user_id       TEXT    NOT NULL,
    point_id      TEXT    NOT NULL,
    embedding_id  TEXT    NOT NULL,
    name          TEXT    NOT NULL DEFAULT '',
    url           TEXT    NOT NULL DEFAULT '',
    vector        BLOB    NOT NULL,
    metadata      TEXT    NOT NULL,  -- JSON object of string values
    updated_at    INTEGER NOT NULL,  -- Unix timestamp (seconds)
    PRIMARY KEY (user_id, point_id)
);
CREATE INDEX IF NOT EXISTS idx_points_user_name ON points (user_id, name);
CREATE INDEX IF NOT EXISTS idx_points_user_url  ON points (user_id, url);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Name implements Provider.
func (s *SQLiteStore) Name() string { return ProviderSQLite }

// Upsert implements Provider. All points are written in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, userID string, embeddings []rag.Embedding) (int, error) {
	if err := validateUpsert(userID); err != nil {
		return 0, err
	}
	points, err := toPoints(userID, embeddings)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w: %w", rag.ErrProvider, err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO points (user_id, point_id, embedding_id, name, url, vector, metadata, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, point_id) DO UPDATE SET
    embedding_id = excluded.embedding_id,
    name         = excluded.name,
    url          = excluded.url,
    vector       = excluded.vector,
    metadata     = excluded.metadata,
    updated_at   = excluded.updated_at`

	now := time.Now().Unix()
	for _, p := range points {
		meta, err := json.Marshal(p.Payload.Metadata)
		if err != nil {
			return 0, fmt.Errorf("sqlite: encode metadata for %s: %w", p.Payload.EmbeddingID, err)
		}
		_, err = tx.ExecContext(ctx, q,
			userID, p.PointID, p.Payload.EmbeddingID,
			p.Payload.Metadata[rag.MetaName], p.Payload.Metadata[rag.MetaURL],
			encodeVector(p.Vector), string(meta), now,
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: upsert %s: %w: %w", p.Payload.EmbeddingID, rag.ErrProvider, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w: %w", rag.ErrProvider, err)
	}
	return len(points), nil
}

// Query implements Provider. The archive has no similarity index.
func (s *SQLiteStore) Query(_ context.Context, userID string, vector []float32, topK int) (*rag.QueryResult, error) {
	if err := validateQuery(userID, vector, topK); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("sqlite: similarity query: %w", rag.ErrNotImplemented)
}

// Delete implements Provider.
func (s *SQLiteStore) Delete(ctx context.Context, userID string, file rag.File) (int, error) {
	if err := validateDelete(userID, file); err != nil {
		return 0, err
	}
	const q = `
DELETE FROM points
WHERE user_id = ?
  AND ((? <> '' AND name = ?) OR (? <> '' AND url = ?))`

	res, err := s.db.ExecContext(ctx, q, userID, file.Name, file.Name, file.URL, file.URL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete: %w: %w", rag.ErrProvider, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete rows affected: %w: %w", rag.ErrProvider, err)
	}
	return int(n), nil
}

// Points returns every archived point of userID ordered by embedding id.
func (s *SQLiteStore) Points(ctx context.Context, userID string) ([]rag.VectorPoint, error) {
	const q = `SELECT point_id, embedding_id, vector, metadata FROM points WHERE user_id = ? ORDER BY embedding_id`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: points: %w: %w", rag.ErrProvider, err)
	}
	defer rows.Close()

	var out []rag.VectorPoint
	for rows.Next() {
		var (
			p    rag.VectorPoint
			blob []byte
			meta string
		)
		if err := rows.Scan(&p.PointID, &p.Payload.EmbeddingID, &blob, &meta); err != nil {
			return nil, fmt.Errorf("sqlite: points scan: %w: %w", rag.ErrProvider, err)
		}
		if err := json.Unmarshal([]byte(meta), &p.Payload.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: decode metadata for %s: %w", p.Payload.EmbeddingID, err)
		}
		p.Vector = decodeVector(blob)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: points rows: %w: %w", rag.ErrProvider, err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

package embedding

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// CacheStore keeps embeddings in SQLite keyed by content hash.
type CacheStore struct {
	db *sql.DB
}

// OpenCacheStore creates or opens the cache database and its table.
func OpenCacheStore(dbPath string) (*CacheStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			model TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &CacheStore{db: db}, nil
}

func (s *CacheStore) Close() error {
	return s.db.Close()
}

// Get returns the cached vector for hash, or nil if not found.
func (s *CacheStore) Get(ctx context.Context, hash string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM embedding_cache WHERE content_hash = ?`, hash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding cache: %w", err)
	}
	return bytesToFloat32(blob), nil
}

// Put upserts a cache entry.
func (s *CacheStore) Put(ctx context.Context, hash, model string, vec []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (content_hash, embedding, dimension, model, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = excluded.updated_at
	`, hash, float32ToBytes(vec), len(vec), model, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put embedding cache: %w", err)
	}
	return nil
}

// CachedEmbedder wraps an Embedder with content-hash caching.
type CachedEmbedder struct {
	inner  Embedder
	store  *CacheStore
	model  string
	logger *slog.Logger
}

func NewCachedEmbedder(inner Embedder, store *CacheStore, model string, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, store: store, model: model, logger: logger}
}

// Embed returns the embedding for text, using cache when available. Cache
// failures only cost a recomputation.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(e.model, text)

	vec, err := e.store.Get(ctx, hash)
	if err != nil {
		e.logger.Warn("embedding cache lookup failed", "error", err)
	} else if vec != nil {
		return vec, nil
	}

	vec, err = e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, hash, e.model, vec); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// ContentHash computes a SHA-256 hash of model and text.
func ContentHash(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return fmt.Sprintf("%x", h)
}

func float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

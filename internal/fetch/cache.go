package fetch

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is a persistent store of fetched bodies keyed by URL. It holds
// the upstream ETag so reruns can issue conditional GETs, and the body
// SHA-256 so verify can run without touching the network.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Entry is one cached fetch.
type Entry struct {
	URL       string
	ETag      string
	SHA256    string
	Body      []byte
	FetchedAt time.Time
}

// OpenCache opens (or creates) a cache database at dbPath.
func OpenCache(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fetch_cache (
		url        TEXT PRIMARY KEY,
		etag       TEXT,
		sha256     TEXT NOT NULL,
		body       BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Get returns the cached entry for url, or nil when absent.
func (c *Cache) Get(url string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRow(
		"SELECT etag, sha256, body, fetched_at FROM fetch_cache WHERE url = ?", url)

	var e Entry
	var fetchedAt int64
	if err := row.Scan(&e.ETag, &e.SHA256, &e.Body, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", url, err)
	}
	e.URL = url
	e.FetchedAt = time.Unix(fetchedAt, 0)
	return &e, nil
}

// Put stores (or replaces) the body fetched from url.
func (c *Cache) Put(url, etag string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := sha256.Sum256(body)
	_, err := c.db.Exec(
		`INSERT INTO fetch_cache (url, etag, sha256, body, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   etag = excluded.etag,
		   sha256 = excluded.sha256,
		   body = excluded.body,
		   fetched_at = excluded.fetched_at`,
		url, etag, hex.EncodeToString(sum[:]), body, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache put %s: %w", url, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

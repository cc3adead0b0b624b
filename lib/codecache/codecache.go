// Package codecache stores compiled program images in a sqlite
// database keyed by the sha256 of their source. The cache lets repeat
// runs of an unchanged script skip the front end and codegen entirely.
package codecache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrClosed indicates the cache has been closed.
var ErrClosed = errors.New("cache is closed")

// Cache is a content-addressed store of compiled images.
type Cache struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
	mu   sync.Mutex
}

// Open opens (or creates) the cache database at path. Parent
// directories are created as needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		hash TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	c := &Cache{
		db:   db,
		path: path,
		log:  commonlog.GetLogger("nebula.cache"),
	}
	c.log.Debugf("opened cache at %s", path)
	return c, nil
}

// Key returns the cache key for a source text: its hex-encoded sha256.
func Key(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Put stores an encoded image under hash, replacing any previous entry.
func (c *Cache) Put(hash string, image []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return ErrClosed
	}

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO programs (hash, image, created_at) VALUES (?, ?, ?)",
		hash, image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing image: %w", err)
	}
	c.log.Debugf("put %s (%d bytes)", hash[:12], len(image))
	return nil
}

// Get looks up the image stored under hash. A miss is reported through
// the bool, not the error.
func (c *Cache) Get(hash string) ([]byte, bool, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()

	if db == nil {
		return nil, false, ErrClosed
	}

	var image []byte
	err := db.QueryRow("SELECT image FROM programs WHERE hash = ?", hash).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}
	return image, true, nil
}

// Delete removes the entry stored under hash, if any.
func (c *Cache) Delete(hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return ErrClosed
	}

	if _, err := c.db.Exec("DELETE FROM programs WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

// Close closes the database connection. Operations after Close return
// ErrClosed; calling Close again is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	db := c.db
	c.db = nil
	return db.Close()
}

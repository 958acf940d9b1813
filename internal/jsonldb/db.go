// Defines DB, the entry point owning the base directory and its collections.

package jsonldb

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// DefaultChunkSize is the number of documents parsed per batch on reload.
const DefaultChunkSize = 100

// Config is the configuration shared by every collection of a DB.
type Config struct {
	// Dir is the base directory. Each collection lives in a subdirectory.
	Dir string
	// ChunkSize bounds the number of documents decoded at once on reload.
	// Defaults to DefaultChunkSize.
	ChunkSize int
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir is required")
	}
	if c.ChunkSize < 0 {
		return errors.New("chunk size must be non-negative")
	}
	return nil
}

// Observer is notified after successful mutations of any collection of a DB.
//
// files are slash-separated paths relative to Config.Dir: the documents
// written or removed followed by the metadata file.
type Observer interface {
	OnCommit(c *Collection, files []string)
	OnDelete(c *Collection, files []string)
}

// DB holds the collections opened under one base directory.
type DB struct {
	cfg Config

	mu          sync.Mutex
	collections map[string]*Collection
	observers   []Observer
	watchers    []*Watcher
}

// Open creates the base directory if needed and returns a DB rooted there.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &DB{cfg: cfg, collections: make(map[string]*Collection)}, nil
}

// Dir returns the base directory.
func (db *DB) Dir() string {
	return db.cfg.Dir
}

// OpenCollection returns the collection called name, creating it on first
// use.
//
// The directory is created if absent and metadata.json is loaded if present;
// otherwise the id counter starts at startingID. The index is then rebuilt
// from the documents on disk. Later calls with the same normalized name
// return the same *Collection and ignore schema and startingID.
func (db *DB) OpenCollection(name string, schema Schema, startingID int64) (*Collection, error) {
	norm := NormalizeName(name)
	if norm == "" || norm == "." || norm == ".." {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if c, ok := db.collections[norm]; ok {
		return c, nil
	}
	c, err := openCollection(db, norm, filepath.Join(db.cfg.Dir, norm), schema, startingID)
	if err != nil {
		return nil, err
	}
	db.collections[norm] = c
	return c, nil
}

// Lookup returns an already opened collection.
func (db *DB) Lookup(name string) (*Collection, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.collections[NormalizeName(name)]
	return c, ok
}

// Collections returns the names of the opened collections, sorted.
func (db *DB) Collections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Sorted(maps.Keys(db.collections))
}

// AddObserver registers o for every collection of the DB.
func (db *DB) AddObserver(o Observer) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.observers = append(db.observers, o)
}

// Close stops the watchers started through [Collection.Watch].
func (db *DB) Close() error {
	db.mu.Lock()
	watchers := db.watchers
	db.watchers = nil
	db.mu.Unlock()

	var errs []error
	for _, w := range watchers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func (db *DB) observersSnapshot() []Observer {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.observers)
}

func (db *DB) addWatcher(w *Watcher) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.watchers = append(db.watchers, w)
}

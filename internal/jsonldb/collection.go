// Implements Collection: id allocation, upsert/delete bookkeeping and index
// reconstruction from the documents on disk.

package jsonldb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrDeleteNoOp is returned when none of the ids to delete exist.
	ErrDeleteNoOp = errors.New("no matching row to delete")
	// ErrMissingID is returned when a committed row has no integer id.
	ErrMissingID = errors.New("row has no integer id")
)

// Collection is a named, directory-backed set of documents sharing an
// in-memory index.
type Collection struct {
	db   *DB
	name string
	dir  string

	mu     sync.RWMutex
	meta   Metadata
	hint   Schema
	schema Schema
	rows   *index
}

func openCollection(db *DB, name, dir string, hint Schema, startingID int64) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create collection directory %s: %w", dir, err)
	}
	c := &Collection{
		db:     db,
		name:   name,
		dir:    dir,
		meta:   Metadata{NextID: startingID, Modified: time.Now()},
		hint:   hint.Clone(),
		schema: hint.Clone(),
		rows:   newIndex(),
	}

	data, err := os.ReadFile(c.metadataPath())
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &c.meta); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", c.metadataPath(), err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", c.metadataPath(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rows.len() == 0 {
		if err := c.reloadAll(db.cfg.ChunkSize); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DB returns the DB the collection was opened from.
func (c *Collection) DB() *DB {
	return c.db
}

// Name returns the normalized name.
func (c *Collection) Name() string {
	return c.name
}

// Dir returns the directory holding the documents.
func (c *Collection) Dir() string {
	return c.dir
}

// Metadata returns a copy of the current, possibly unpersisted, metadata.
func (c *Collection) Metadata() Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

// Schema returns a copy of the known column types.
func (c *Collection) Schema() Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema.Clone()
}

// Count returns the number of rows in the index.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rows.len()
}

// NextID increments the id counter and returns the new value.
//
// The counter is only persisted by the next successful Commit or Delete.
func (c *Collection) NextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta.NextID++
	return c.meta.NextID
}

// Get returns a copy of the row with the given id.
func (c *Collection) Get(id int64) (Row, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows.get(id)
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Rows returns a copy of every row, in index order.
func (c *Collection) Rows() []Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rows.snapshot()
}

// Select applies fn to a copy of the whole index and returns its result.
func (c *Collection) Select(fn Transform) []Row {
	rows := c.Rows()
	if fn == nil {
		return rows
	}
	return fn(rows)
}

// ReloadAll discards the index and rebuilds it from the documents on disk,
// decoding at most chunkSize documents per batch.
func (c *Collection) ReloadAll(chunkSize int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloadAll(chunkSize)
}

func (c *Collection) reloadAll(chunkSize int) error {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	files, err := listDocuments(c.dir)
	if err != nil {
		return fmt.Errorf("failed to list documents in %s: %w", c.dir, err)
	}

	idx := newIndex()
	schema := c.hint.Clone()
	batch := make([]Row, 0, min(chunkSize, len(files)))
	flush := func() {
		if widened := schema.widen(batch); len(widened) != 0 {
			slog.Warn("Columns hold conflicting types, accepting any value", "collection", c.name, "columns", widened)
		}
		for _, row := range batch {
			id, _ := row.ID()
			idx.upsert(id, row)
		}
		batch = batch[:0]
	}
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(c.dir, f.name))
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", f.name, err)
		}
		row, err := DecodeRow(data)
		if err != nil {
			return fmt.Errorf("failed to parse document %s: %w", f.name, err)
		}
		if _, ok := row.ID(); !ok {
			if !f.numeric {
				slog.Warn("Skipping document without id", "collection", c.name, "file", f.name)
				continue
			}
			row["id"] = json.Number(fmt.Sprint(f.id))
		}
		batch = append(batch, row)
		if len(batch) == chunkSize {
			flush()
		}
	}
	flush()

	c.rows = idx
	c.schema = schema
	c.meta.Count = idx.len()
	// Ids are never reused, even when metadata.json is stale or missing.
	c.meta.NextID = max(c.meta.NextID, idx.maxID())
	metricReload.WithLabelValues(c.name).Inc()
	metricRows.WithLabelValues(c.name).Set(float64(idx.len()))
	return nil
}

// Commit upserts rows by id: a later row replaces an earlier one with the
// same id, in this batch or in the index, and keeps its position. Each row's
// document is written, then the metadata. Commit succeeds only once the
// metadata is written.
//
// A row contradicting a known column fails with ErrIncompatible before the
// index is modified. A write failure leaves the index ahead of the disk;
// retry the batch or call ReloadAll.
func (c *Collection) Commit(rows ...Row) error {
	files, err := c.commit(rows)
	if err != nil {
		metricCommit.WithLabelValues(c.name, "error").Inc()
		slog.Warn("Commit failed", "collection", c.name, "rows", len(rows), "err", err)
		return err
	}
	metricCommit.WithLabelValues(c.name, "ok").Inc()
	for _, o := range c.db.observersSnapshot() {
		o.OnCommit(c, files)
	}
	return nil
}

type stagedRow struct {
	id   int64
	row  Row
	data []byte
}

func (c *Collection) commit(rows []Row) ([]string, error) {
	// Stage: normalize and deduplicate, keeping the last version of each id
	// at the position of its first occurrence.
	staged := make([]stagedRow, 0, len(rows))
	pos := make(map[int64]int, len(rows))
	for i, row := range rows {
		norm, data, err := normalize(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrIncompatible, i, err)
		}
		id, ok := norm.ID()
		if !ok {
			return nil, fmt.Errorf("%w: row %d", ErrMissingID, i)
		}
		s := stagedRow{id: id, row: norm, data: data}
		if p, ok := pos[id]; ok {
			staged[p] = s
			continue
		}
		pos[id] = len(staged)
		staged = append(staged, s)
	}
	normRows := make([]Row, len(staged))
	for i := range staged {
		normRows[i] = staged[i].row
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	schema, err := c.schema.check(normRows)
	if err != nil {
		return nil, err
	}

	c.schema = schema
	for _, s := range staged {
		c.rows.upsert(s.id, s.row)
		c.meta.NextID = max(c.meta.NextID, s.id)
	}
	c.meta.Count = c.rows.len()
	c.meta.Modified = time.Now()
	metricRows.WithLabelValues(c.name).Set(float64(c.rows.len()))

	files := make([]string, 0, len(staged)+1)
	for _, s := range staged {
		if err := writeFileAtomic(c.documentPath(s.id), s.data); err != nil {
			return nil, fmt.Errorf("failed to write document %d: %w", s.id, err)
		}
		files = append(files, c.relPath(DocumentName(s.id)))
	}
	if err := c.writeMetadata(); err != nil {
		return nil, err
	}
	return append(files, c.relPath(metadataName)), nil
}

// Delete removes the rows with the given ids and their documents.
//
// If no id is in the index, Delete returns ErrDeleteNoOp and touches no file.
// Ids absent from the index are ignored otherwise.
func (c *Collection) Delete(ids ...int64) error {
	files, err := c.delete(ids)
	if err != nil {
		metricDelete.WithLabelValues(c.name, "error").Inc()
		return err
	}
	metricDelete.WithLabelValues(c.name, "ok").Inc()
	for _, o := range c.db.observersSnapshot() {
		o.OnDelete(c, files)
	}
	return nil
}

func (c *Collection) delete(ids []int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.rows.len()
	removed := c.rows.remove(ids)
	if c.rows.len() >= n {
		return nil, ErrDeleteNoOp
	}
	c.meta.Count = c.rows.len()
	c.meta.Modified = time.Now()
	metricRows.WithLabelValues(c.name).Set(float64(c.rows.len()))

	var errs []error
	files := make([]string, 0, len(removed)+1)
	for _, id := range removed {
		if err := os.Remove(c.documentPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove document %d: %w", id, err))
			continue
		}
		files = append(files, c.relPath(DocumentName(id)))
	}
	if err := c.writeMetadata(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return append(files, c.relPath(metadataName)), nil
}

func (c *Collection) writeMetadata() error {
	data, err := json.Marshal(&c.meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(c.metadataPath(), data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (c *Collection) documentPath(id int64) string {
	return filepath.Join(c.dir, DocumentName(id))
}

func (c *Collection) metadataPath() string {
	return filepath.Join(c.dir, metadataName)
}

// relPath returns the slash-separated path of name relative to the DB
// directory.
func (c *Collection) relPath(name string) string {
	return path.Join(c.name, name)
}

// Package jsonldb provides an embedded, directory-backed JSON document store.
//
// # Overview
//
// A [DB] owns a base directory and hands out one [Collection] per normalized
// name. Each collection stores one compact JSON document per row and a small
// metadata file holding the id counter:
//
//	<dir>/<name>/<id>.item.json
//	<dir>/<name>/metadata.json
//
// All rows are cached in an in-memory index, which is the only read path. The
// files are a write-through target, read back wholesale when the collection is
// opened or explicitly reloaded.
//
// # Ids
//
// Ids are integers handed out by [Collection.NextID]. They are never reused,
// even after deletion: the counter is persisted in metadata.json on every
// successful commit or delete and is kept ahead of every id found on disk.
//
// # Commit semantics
//
// [Collection.Commit] is an upsert keyed by id. A row that contradicts a known
// column type is rejected before the index is touched. Once the index is
// updated, documents are written one by one and the metadata last; a failed
// write leaves the index ahead of the disk until [Collection.ReloadAll].
//
// # Concurrency
//
// Collections are safe for use by multiple goroutines of one process. Sharing
// a directory between processes is unsupported: there is no file locking and
// the last writer wins.
package jsonldb

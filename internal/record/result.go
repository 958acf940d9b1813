package record

import (
	"iter"

	"github.com/maruel/flexstore/internal/jsonldb"
)

// Result is a snapshot of rows materialized into records on demand.
type Result[T Record] struct {
	clone func(jsonldb.Row) T
	rows  []jsonldb.Row
}

func newResult[T Record](clone func(jsonldb.Row) T, rows []jsonldb.Row) *Result[T] {
	return &Result[T]{clone: clone, rows: rows}
}

// Count returns the number of rows.
func (r *Result[T]) Count() int {
	return len(r.rows)
}

// Rows returns the raw rows.
func (r *Result[T]) Rows() []jsonldb.Row {
	return r.rows
}

// Map replaces each row with fn applied to it.
func (r *Result[T]) Map(fn func(jsonldb.Row) jsonldb.Row) {
	for i, row := range r.rows {
		r.rows[i] = fn(row)
	}
}

// All yields one new record per row, in order. Each iteration starts over.
func (r *Result[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, row := range r.rows {
			if !yield(r.clone(row)) {
				return
			}
		}
	}
}

// Head returns the records of the first n rows. fn, when not nil, is applied
// to each record and its results are returned instead.
func (r *Result[T]) Head(n int, fn func(T) T) []T {
	return r.materialize(r.rows[:clamp(n, len(r.rows))], fn)
}

// Tail returns the records of the last n rows, in row order.
func (r *Result[T]) Tail(n int, fn func(T) T) []T {
	return r.materialize(r.rows[len(r.rows)-clamp(n, len(r.rows)):], fn)
}

// FetchOne returns the record of the first row.
func (r *Result[T]) FetchOne(fn func(T) T) (T, bool) {
	if len(r.rows) == 0 {
		var zero T
		return zero, false
	}
	return r.materialize(r.rows[:1], fn)[0], true
}

// FetchAll returns the records of page, 1-based, of limit rows each. If page
// or limit is below 1, every row is returned. A page past the end is empty.
func (r *Result[T]) FetchAll(page, limit int, fn func(T) T) []T {
	if page < 1 || limit < 1 {
		return r.materialize(r.rows, fn)
	}
	offset := page*limit - limit
	if offset < 0 || offset >= len(r.rows) {
		return []T{}
	}
	return r.materialize(r.rows[offset:offset+min(limit, len(r.rows)-offset)], fn)
}

func (r *Result[T]) materialize(rows []jsonldb.Row, fn func(T) T) []T {
	out := make([]T, len(rows))
	for i, row := range rows {
		out[i] = r.clone(row)
		if fn != nil {
			out[i] = fn(out[i])
		}
	}
	return out
}

func clamp(n, size int) int {
	return max(0, min(n, size))
}

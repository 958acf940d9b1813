// In-memory index of a collection: rows keyed by id, in first-seen order.

package jsonldb

import "slices"

// index replaces a dataframe: a keyed map plus an ordered id list.
//
// It is not synchronized; Collection holds the lock.
type index struct {
	order []int64
	rows  map[int64]Row
}

func newIndex() *index {
	return &index{rows: make(map[int64]Row)}
}

func (x *index) len() int {
	return len(x.order)
}

func (x *index) get(id int64) (Row, bool) {
	row, ok := x.rows[id]
	return row, ok
}

// upsert stores row under id. An existing id keeps its position and the new
// row replaces the old one.
func (x *index) upsert(id int64, row Row) {
	if _, ok := x.rows[id]; !ok {
		x.order = append(x.order, id)
	}
	x.rows[id] = row
}

// remove deletes the given ids and returns the ones that were present.
func (x *index) remove(ids []int64) []int64 {
	var removed []int64
	for _, id := range ids {
		if _, ok := x.rows[id]; ok {
			delete(x.rows, id)
			removed = append(removed, id)
		}
	}
	if len(removed) != 0 {
		x.order = slices.DeleteFunc(x.order, func(id int64) bool {
			_, ok := x.rows[id]
			return !ok
		})
	}
	return removed
}

// maxID returns the largest id in the index, or 0 when empty.
func (x *index) maxID() int64 {
	var m int64
	for _, id := range x.order {
		m = max(m, id)
	}
	return m
}

// snapshot returns deep copies of all rows in order.
func (x *index) snapshot() []Row {
	out := make([]Row, len(x.order))
	for i, id := range x.order {
		out[i] = x.rows[id].Clone()
	}
	return out
}

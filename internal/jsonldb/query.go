// Named query primitives building Transforms over a snapshot of the index.

package jsonldb

import (
	"cmp"
	"encoding/json"
	"reflect"
	"slices"
)

// Transform maps a snapshot of rows to a subset or projection of them.
//
// The rows are copies; a transform may modify or reorder them freely.
type Transform func(rows []Row) []Row

// Chain applies transforms left to right.
func Chain(ts ...Transform) Transform {
	return func(rows []Row) []Row {
		for _, t := range ts {
			if t != nil {
				rows = t(rows)
			}
		}
		return rows
	}
}

// Where keeps the rows matching pred.
func Where(pred func(Row) bool) Transform {
	return func(rows []Row) []Row {
		return slices.DeleteFunc(rows, func(r Row) bool { return !pred(r) })
	}
}

// IsIn keeps the rows whose column equals one of values. Numbers compare by
// value regardless of their Go type.
func IsIn(column string, values ...any) Transform {
	return Where(func(r Row) bool {
		v, ok := r[column]
		if !ok {
			return false
		}
		return slices.ContainsFunc(values, func(w any) bool { return equalValues(v, w) })
	})
}

// Project keeps only the given columns of each row. Include "id" to be able
// to materialize records with their identity.
func Project(columns ...string) Transform {
	return func(rows []Row) []Row {
		for i, r := range rows {
			out := make(Row, len(columns))
			for _, c := range columns {
				if v, ok := r[c]; ok {
					out[c] = v
				}
			}
			rows[i] = out
		}
		return rows
	}
}

// SortBy orders rows by column. Missing and null values sort first. The sort
// is stable.
func SortBy(column string, desc bool) Transform {
	return func(rows []Row) []Row {
		slices.SortStableFunc(rows, func(a, b Row) int {
			c := compareValues(a[column], b[column])
			if desc {
				return -c
			}
			return c
		})
		return rows
	}
}

// Limit keeps at most n rows.
func Limit(n int) Transform {
	return func(rows []Row) []Row {
		if n < 0 {
			n = 0
		}
		if len(rows) > n {
			return rows[:n]
		}
		return rows
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

func equalValues(a, b any) bool {
	if x, ok := ParseID(a); ok {
		if y, ok := ParseID(b); ok {
			return x == y
		}
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders null < bool < number < string. Other values compare
// equal.
func compareValues(a, b any) int {
	if r := cmp.Compare(rank(a), rank(b)); r != 0 {
		return r
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case string:
		return cmp.Compare(x, b.(string))
	}
	if x, ok := toFloat(a); ok {
		y, _ := toFloat(b)
		return cmp.Compare(x, y)
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 4
}

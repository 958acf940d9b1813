// Handles column types, schema hints and reflection-based schema generation.

package jsonldb

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/invopop/jsonschema"
)

// ErrIncompatible is returned when a row cannot be merged into the index
// because a value contradicts the type of its column.
var ErrIncompatible = errors.New("incompatible row")

// ColumnType is the type of the values stored under one key.
type ColumnType string

const (
	// ColumnText stores strings.
	ColumnText ColumnType = "text"
	// ColumnNumber stores integer or floating point numbers.
	ColumnNumber ColumnType = "number"
	// ColumnBool stores booleans.
	ColumnBool ColumnType = "bool"
	// ColumnDate stores RFC 3339 strings. It is never inferred, only hinted.
	ColumnDate ColumnType = "date"
	// ColumnObject stores JSON objects, e.g. a nested record.
	ColumnObject ColumnType = "object"
	// ColumnList stores JSON arrays.
	ColumnList ColumnType = "list"
	// ColumnAny accepts every value.
	ColumnAny ColumnType = "any"
)

// Schema maps column names to their type.
//
// A schema passed to [DB.OpenCollection] is a hint: it fixes the type of the
// named columns. Columns not in the hint are inferred from the first non-null
// value committed.
type Schema map[string]ColumnType

// Clone returns a copy of the schema.
func (s Schema) Clone() Schema {
	if s == nil {
		return Schema{}
	}
	return maps.Clone(s)
}

// Columns returns the column names in sorted order.
func (s Schema) Columns() []string {
	return slices.Sorted(maps.Keys(s))
}

// ColumnError reports a value that contradicts its column type.
type ColumnError struct {
	ID     int64
	Column string
	Want   ColumnType
	Got    ColumnType
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("row %d: column %q is %s, got %s", e.ID, e.Column, e.Want, e.Got)
}

// Unwrap makes errors.Is(err, ErrIncompatible) true.
func (e *ColumnError) Unwrap() error {
	return ErrIncompatible
}

// valueType classifies a JSON-decoded value. It returns "" for null.
func valueType(v any) ColumnType {
	switch v.(type) {
	case nil:
		return ""
	case bool:
		return ColumnBool
	case json.Number, float64, float32, int, int64, int32:
		return ColumnNumber
	case string:
		return ColumnText
	case time.Time:
		return ColumnDate
	case []any:
		return ColumnList
	case map[string]any, Row:
		return ColumnObject
	default:
		return ColumnAny
	}
}

// accepts reports whether a column of type t can hold v. Null fits everywhere.
func (t ColumnType) accepts(v any) bool {
	if v == nil || t == ColumnAny {
		return true
	}
	if t == ColumnDate {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(time.RFC3339Nano, s)
		return err == nil
	}
	return valueType(v) == t
}

// check validates rows against the schema and returns the schema extended
// with the newly inferred columns. s is not modified.
func (s Schema) check(rows []Row) (Schema, error) {
	out := s.Clone()
	for _, row := range rows {
		id, _ := row.ID()
		for _, k := range slices.Sorted(maps.Keys(row)) {
			v := row[k]
			t, ok := out[k]
			if !ok {
				if vt := valueType(v); vt != "" {
					out[k] = vt
				}
				continue
			}
			if !t.accepts(v) {
				return nil, &ColumnError{ID: id, Column: k, Want: t, Got: valueType(v)}
			}
		}
	}
	return out, nil
}

// widen merges rows into the schema in place. Contradicting columns become
// ColumnAny and their names are returned.
func (s Schema) widen(rows []Row) []string {
	var widened []string
	for _, row := range rows {
		for k, v := range row {
			t, ok := s[k]
			if !ok {
				if vt := valueType(v); vt != "" {
					s[k] = vt
				}
				continue
			}
			if !t.accepts(v) {
				s[k] = ColumnAny
				widened = append(widened, k)
			}
		}
	}
	slices.Sort(widened)
	return slices.Compact(widened)
}

// SchemaFor derives a schema hint from a Go type using JSON Schema reflection.
//
// Column names follow the json struct tags. The "id" column is always a
// number. Fields typed as interfaces become ColumnAny.
func SchemaFor[T any]() (Schema, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	r := jsonschema.Reflector{ExpandedStruct: true, AllowAdditionalProperties: true}
	js := r.ReflectFromType(t)
	out := Schema{"id": ColumnNumber}
	if js.Properties == nil {
		return out, nil
	}
	for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == "id" {
			continue
		}
		out[pair.Key] = columnFromJSONSchema(pair.Value)
	}
	return out, nil
}

func columnFromJSONSchema(p *jsonschema.Schema) ColumnType {
	if p == nil {
		return ColumnAny
	}
	if p.Ref != "" {
		// References are only emitted for structs.
		return ColumnObject
	}
	switch p.Type {
	case "string":
		if p.Format == "date-time" {
			return ColumnDate
		}
		return ColumnText
	case "integer", "number":
		return ColumnNumber
	case "boolean":
		return ColumnBool
	case "object":
		return ColumnObject
	case "array":
		return ColumnList
	default:
		return ColumnAny
	}
}

// Defines Row, the unit of storage, and its JSON encoding.

package jsonldb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Row is one document as a keyed mapping.
//
// Rows held by a collection only contain JSON-decoded values: nil, bool,
// json.Number, string, []any and map[string]any.
type Row map[string]any

// ID returns the row's integer id.
func (r Row) ID() (int64, bool) {
	return ParseID(r["id"])
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Row:
		return x.Clone()
	case map[string]any:
		return map[string]any(Row(x).Clone())
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}

// ParseID converts an id value as found in a row to an int64.
//
// Integral floats and json.Number are accepted since that is what decoded
// JSON contains.
func ParseID(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float32:
		return floatID(float64(x))
	case float64:
		return floatID(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return floatID(f)
		}
	case string:
		if i, err := strconv.ParseInt(x, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func floatID(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// DecodeRow parses a JSON object. Numbers are kept as json.Number so integers
// survive unchanged.
func DecodeRow(data []byte) (Row, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var row Row
	if err := d.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New("document is not a JSON object")
	}
	return row, nil
}

// encodeRow returns the compact JSON encoding of a row.
func encodeRow(row Row) ([]byte, error) {
	var buf bytes.Buffer
	e := json.NewEncoder(&buf)
	e.SetEscapeHTML(false)
	if err := e.Encode(row); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// normalize encodes a caller-provided row and decodes it back, so the index
// holds exactly what a reload from disk would produce.
func normalize(row Row) (Row, []byte, error) {
	data, err := encodeRow(row)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal row: %w", err)
	}
	out, err := DecodeRow(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal row: %w", err)
	}
	return out, data, nil
}

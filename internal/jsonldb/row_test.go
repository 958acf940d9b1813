package jsonldb

import (
	"encoding/json"
	"math"
	"slices"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"int", 3, 3, true},
		{"int64", int64(1) << 40, 1 << 40, true},
		{"uint8", uint8(7), 7, true},
		{"uint64 overflow", uint64(math.MaxUint64), 0, false},
		{"uint64 max int", uint64(math.MaxInt64), math.MaxInt64, true},
		{"uint overflow", uint(math.MaxInt64) + 1, 0, false},
		{"float overflow", float64(1 << 63), 0, false},
		{"integral float", 12.0, 12, true},
		{"fractional float", 12.5, 0, false},
		{"json number", json.Number("42"), 42, true},
		{"json number float", json.Number("42.0"), 42, true},
		{"numeric string", "17", 17, true},
		{"text", "abc", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseID(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseID(%v) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDecodeRow(t *testing.T) {
	t.Run("keeps integers", func(t *testing.T) {
		row, err := DecodeRow([]byte(`{"id":9007199254740993}`))
		if err != nil {
			t.Fatal(err)
		}
		if id, _ := row.ID(); id != 9007199254740993 {
			t.Errorf("ID() = %d", id)
		}
	})

	for _, in := range []string{`null`, `[]`, `"x"`, `{`} {
		t.Run(in, func(t *testing.T) {
			if _, err := DecodeRow([]byte(in)); err == nil {
				t.Errorf("DecodeRow(%s) succeeded", in)
			}
		})
	}
}

func TestRowClone(t *testing.T) {
	orig := Row{
		"id":   json.Number("1"),
		"list": []any{map[string]any{"a": "b"}},
		"obj":  map[string]any{"k": []any{"v"}},
	}
	c := orig.Clone()
	c["list"].([]any)[0].(map[string]any)["a"] = "changed"
	c["obj"].(map[string]any)["k"].([]any)[0] = "changed"
	if orig["list"].([]any)[0].(map[string]any)["a"] != "b" {
		t.Error("Clone shares nested list")
	}
	if orig["obj"].(map[string]any)["k"].([]any)[0] != "v" {
		t.Error("Clone shares nested object")
	}
	if Row(nil).Clone() != nil {
		t.Error("Clone of nil row is not nil")
	}
}

func TestEncodeRow(t *testing.T) {
	data, err := encodeRow(Row{"z": "<a&b>", "id": 1})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"id":1,"z":"<a&b>"}`; got != want {
		t.Errorf("encodeRow() = %s, want %s", got, want)
	}
}

func TestIndex(t *testing.T) {
	x := newIndex()
	x.upsert(3, Row{"id": 3})
	x.upsert(1, Row{"id": 1})
	x.upsert(3, Row{"id": 3, "v": "new"})
	x.upsert(2, Row{"id": 2})
	if !slices.Equal(x.order, []int64{3, 1, 2}) {
		t.Errorf("order = %v, want [3 1 2]", x.order)
	}
	if row, _ := x.get(3); row["v"] != "new" {
		t.Errorf("get(3) = %v", row)
	}
	if got := x.maxID(); got != 3 {
		t.Errorf("maxID() = %d, want 3", got)
	}
	removed := x.remove([]int64{1, 5, 3})
	if !slices.Equal(removed, []int64{1, 3}) {
		t.Errorf("remove() = %v, want [1 3]", removed)
	}
	if !slices.Equal(x.order, []int64{2}) || x.len() != 1 {
		t.Errorf("order after remove = %v", x.order)
	}
	if removed := x.remove([]int64{42}); removed != nil {
		t.Errorf("remove() of absent id = %v", removed)
	}
	if got := newIndex().maxID(); got != 0 {
		t.Errorf("maxID() of empty index = %d", got)
	}
}

func TestListDocuments(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.item.json", "10.item.json", "a.item.json", "9.item.json", "metadata.json", ".tmp-1.item.json"} {
		writeDoc(t, dir, name, `{}`)
	}
	files, err := listDocuments(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.name)
	}
	want := []string{"9.item.json", "10.item.json", "a.item.json", "b.item.json"}
	if !slices.Equal(names, want) {
		t.Errorf("listDocuments() = %v, want %v", names, want)
	}
}

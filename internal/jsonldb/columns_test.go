package jsonldb

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestSchemaCheck(t *testing.T) {
	base := Schema{"name": ColumnText, "when": ColumnDate, "extra": ColumnAny}
	tests := []struct {
		name    string
		row     Row
		wantErr bool
	}{
		{"matching", Row{"id": json.Number("1"), "name": "a"}, false},
		{"null", Row{"id": json.Number("1"), "name": nil}, false},
		{"any", Row{"id": json.Number("1"), "extra": []any{1}}, false},
		{"date", Row{"id": json.Number("1"), "when": "2024-01-02T03:04:05+02:00"}, false},
		{"new column", Row{"id": json.Number("1"), "other": true}, false},
		{"text as number", Row{"id": json.Number("1"), "name": json.Number("3")}, true},
		{"bad date", Row{"id": json.Number("1"), "when": "2024-01-02"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := base.check([]Row{tt.row})
			if (err != nil) != tt.wantErr {
				t.Fatalf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIncompatible) {
				t.Errorf("error %v does not wrap ErrIncompatible", err)
			}
			if err == nil && out["id"] != ColumnNumber {
				t.Errorf("id column = %q", out["id"])
			}
		})
	}

	t.Run("does not modify receiver", func(t *testing.T) {
		s := Schema{}
		if _, err := s.check([]Row{{"a": "x"}}); err != nil {
			t.Fatal(err)
		}
		if len(s) != 0 {
			t.Errorf("check modified schema: %v", s)
		}
	})

	t.Run("inferred within batch", func(t *testing.T) {
		_, err := Schema{}.check([]Row{{"a": "x"}, {"a": true}})
		if !errors.Is(err, ErrIncompatible) {
			t.Errorf("check() error = %v, want ErrIncompatible", err)
		}
	})

	t.Run("null does not infer", func(t *testing.T) {
		out, err := Schema{}.check([]Row{{"a": nil}, {"a": "x"}})
		if err != nil {
			t.Fatal(err)
		}
		if out["a"] != ColumnText {
			t.Errorf("a = %q, want text", out["a"])
		}
	})
}

func TestSchemaWiden(t *testing.T) {
	s := Schema{"a": ColumnText}
	widened := s.widen([]Row{{"a": json.Number("1"), "b": true}, {"a": false, "b": json.Number("2")}})
	if !slices.Equal(widened, []string{"a", "b"}) {
		t.Errorf("widen() = %v, want [a b]", widened)
	}
	if s["a"] != ColumnAny || s["b"] != ColumnAny {
		t.Errorf("schema = %v", s)
	}
	if got := s.Columns(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Columns() = %v", got)
	}
}

type schemaAddress struct {
	City string `json:"city"`
}

type schemaPerson struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Age      int            `json:"age"`
	Score    float64        `json:"score"`
	Active   bool           `json:"active"`
	Born     time.Time      `json:"born"`
	Tags     []string       `json:"tags"`
	Attrs    map[string]int `json:"attrs"`
	Address  *schemaAddress `json:"address"`
	Anything any            `json:"anything"`
	Skipped  string         `json:"-"`
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor[*schemaPerson]()
	if err != nil {
		t.Fatalf("SchemaFor() failed: %v", err)
	}
	want := Schema{
		"id":       ColumnNumber,
		"name":     ColumnText,
		"age":      ColumnNumber,
		"score":    ColumnNumber,
		"active":   ColumnBool,
		"born":     ColumnDate,
		"tags":     ColumnList,
		"attrs":    ColumnObject,
		"address":  ColumnObject,
		"anything": ColumnAny,
	}
	for _, k := range want.Columns() {
		if s[k] != want[k] {
			t.Errorf("column %q = %q, want %q", k, s[k], want[k])
		}
	}
	if _, ok := s["Skipped"]; ok {
		t.Error("ignored field present in schema")
	}
	if len(s) != len(want) {
		t.Errorf("SchemaFor() = %v, want %v", s, want)
	}

	if _, err := SchemaFor[int](); err == nil {
		t.Error("SchemaFor[int]() succeeded")
	}
}

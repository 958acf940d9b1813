package record

import (
	"slices"
	"testing"

	"github.com/maruel/flexstore/internal/jsonldb"
)

// setupResult commits 25 items with counts 0 to 24 and selects them in count
// order.
func setupResult(t *testing.T) (*fixture, *Result[*item]) {
	t.Helper()
	f := setup(t)
	var items []*item
	for i := range 25 {
		it := f.items.New()
		it.Count = i
		items = append(items, it)
	}
	if err := f.items.CommitAll(items...); err != nil {
		t.Fatal(err)
	}
	res, err := f.items.Select(jsonldb.SortBy("count", false))
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	return f, res
}

func counts(items []*item) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.Count
	}
	return out
}

func span(from, to int) []int {
	var out []int
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func TestResult(t *testing.T) {
	f, res := setupResult(t)
	if res.Count() != 25 {
		t.Fatalf("Count() = %d, want 25", res.Count())
	}

	t.Run("FetchAll", func(t *testing.T) {
		tests := []struct {
			name        string
			page, limit int
			want        []int
		}{
			{"first page", 1, 10, span(0, 10)},
			{"second page", 2, 10, span(10, 20)},
			{"last partial page", 3, 10, span(20, 25)},
			{"past the end", 4, 10, []int{}},
			{"page zero", 0, 10, span(0, 25)},
			{"negative page", -1, 10, span(0, 25)},
			{"limit zero", 2, 0, span(0, 25)},
			{"exact end", 5, 5, span(20, 25)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := counts(res.FetchAll(tt.page, tt.limit, nil)); !slices.Equal(got, tt.want) {
					t.Errorf("FetchAll(%d, %d) = %v, want %v", tt.page, tt.limit, got, tt.want)
				}
			})
		}
	})

	t.Run("Head and Tail", func(t *testing.T) {
		tests := []struct {
			name string
			fn   func() []*item
			want []int
		}{
			{"head", func() []*item { return res.Head(3, nil) }, []int{0, 1, 2}},
			{"head all", func() []*item { return res.Head(100, nil) }, span(0, 25)},
			{"head zero", func() []*item { return res.Head(0, nil) }, []int{}},
			{"head negative", func() []*item { return res.Head(-2, nil) }, []int{}},
			{"tail", func() []*item { return res.Tail(2, nil) }, []int{23, 24}},
			{"tail all", func() []*item { return res.Tail(30, nil) }, span(0, 25)},
			{"tail zero", func() []*item { return res.Tail(0, nil) }, []int{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := counts(tt.fn()); !slices.Equal(got, tt.want) {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("callback", func(t *testing.T) {
		got := res.Head(2, func(it *item) *item {
			it.Count *= 10
			return it
		})
		if !slices.Equal(counts(got), []int{0, 10}) {
			t.Errorf("Head() with callback = %v", counts(got))
		}
		if again := res.Head(2, nil); !slices.Equal(counts(again), []int{0, 1}) {
			t.Errorf("callback changed stored rows: %v", counts(again))
		}
	})

	t.Run("FetchOne", func(t *testing.T) {
		it, ok := res.FetchOne(nil)
		if !ok || it.Count != 0 || it.ID() == 0 {
			t.Errorf("FetchOne() = %+v, %v", it, ok)
		}
		empty, err := f.items.Select(jsonldb.Limit(0))
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := empty.FetchOne(nil); ok {
			t.Error("FetchOne() on empty result found a record")
		}
		if got := empty.FetchAll(1, 10, nil); len(got) != 0 {
			t.Errorf("FetchAll() on empty result = %v", got)
		}
	})

	t.Run("restartable iteration", func(t *testing.T) {
		for pass := range 2 {
			var got []int
			for it := range res.All() {
				got = append(got, it.Count)
				it.Count = -1
			}
			if !slices.Equal(got, span(0, 25)) {
				t.Errorf("pass %d = %v", pass, got)
			}
		}
		n := 0
		for range res.All() {
			n++
			if n == 3 {
				break
			}
		}
		if n != 3 {
			t.Errorf("early break yielded %d records", n)
		}
	})

	t.Run("Map", func(t *testing.T) {
		_, res := setupResult(t)
		res.Map(func(r jsonldb.Row) jsonldb.Row {
			r["name"] = "mapped"
			return r
		})
		it, _ := res.FetchOne(nil)
		if it.Name != "mapped" {
			t.Errorf("name = %q, want mapped", it.Name)
		}
		if len(res.Rows()) != 25 {
			t.Errorf("Rows() = %d rows", len(res.Rows()))
		}
	})

	t.Run("Select from prototype", func(t *testing.T) {
		proto := f.items.New()
		got, err := Select(proto, jsonldb.IsIn("count", 3, 4))
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(counts(got.FetchAll(0, 0, nil)), []int{3, 4}) {
			t.Errorf("Select() = %v", counts(got.FetchAll(0, 0, nil)))
		}
	})
}

func TestResultSnapshot(t *testing.T) {
	f, res := setupResult(t)
	first, ok := res.FetchOne(nil)
	if !ok {
		t.Fatal("FetchOne() found nothing")
	}
	first.Count = -1
	first.Name = "changed"
	extra := f.items.New()
	extra.Count = -2
	if err := f.items.CommitAll(first, extra); err != nil {
		t.Fatal(err)
	}
	if got := f.items.Collection().Count(); got != 26 {
		t.Fatalf("collection count = %d, want 26", got)
	}

	if res.Count() != 25 {
		t.Errorf("Count() = %d, want 25", res.Count())
	}
	again, ok := res.FetchOne(nil)
	if !ok || again.ID() != first.ID() || again.Count != 0 || again.Name != "new" {
		t.Errorf("FetchOne() = %+v, want the row as selected", again)
	}
	if got := counts(res.Head(3, nil)); !slices.Equal(got, span(0, 3)) {
		t.Errorf("Head(3) = %v, want %v", got, span(0, 3))
	}
}

// Handles the demo record graph.

package main

import (
	"errors"
	"fmt"

	"github.com/maruel/flexstore/internal/jsonldb"
	"github.com/maruel/flexstore/internal/record"
)

// C is a small bound record shared by the other demo types.
type C struct {
	record.Base
	Z string `json:"z"`
}

// N is a plain struct nested in Yz.
type N struct {
	A int    `json:"a"`
	B string `json:"b"`
	C *C     `json:"c"`
	D []*C   `json:"d"`
}

// Yz is an unbound record, only ever stored inside another one.
type Yz struct {
	record.Base
	IntVal  int    `json:"intval"`
	StrVal  string `json:"strval"`
	ListVal []N    `json:"listval"`
}

// Dc is stored in the same collection as C.
type Dc struct {
	record.Base
	IntVal int    `json:"intval"`
	StrVal string `json:"strval"`
	YzVal  *Yz    `json:"yzval"`
}

// Ab is the root of the demo graph.
type Ab struct {
	record.Base
	FloatVal float64        `json:"floatval"`
	YzVal    *Yz            `json:"yzval"`
	ListVal  []*Yz          `json:"listval"`
	DictVal  map[string]any `json:"dictval"`
	Primary  *Dc            `json:"primary" record:"ref"`
}

// models holds the demo models bound to the collections of one DB.
type models struct {
	cs  *record.Model[*C]
	yzs *record.Model[*Yz]
	dcs *record.Model[*Dc]
	abs *record.Model[*Ab]
}

const (
	collectionAb = "tests"
	collectionDc = "testdc"
)

// openModels opens the demo collections, with column types derived from the
// record types they store, and binds the demo types to them.
func openModels(db *jsonldb.DB) (*models, error) {
	abSchema, err := jsonldb.SchemaFor[*Ab]()
	if err != nil {
		return nil, fmt.Errorf("failed to derive schema of %s: %w", collectionAb, err)
	}
	dcSchema, err := jsonldb.SchemaFor[*Dc]()
	if err != nil {
		return nil, fmt.Errorf("failed to derive schema of %s: %w", collectionDc, err)
	}
	abColl, err := db.OpenCollection(collectionAb, abSchema, 1)
	if err != nil {
		return nil, err
	}
	dcColl, err := db.OpenCollection(collectionDc, dcSchema, 1)
	if err != nil {
		return nil, err
	}
	m := &models{
		cs:  record.Bind(dcColl, func() *C { return &C{Z: "z"} }),
		yzs: record.Define(func() *Yz { return &Yz{StrVal: "Hello"} }),
	}
	m.dcs = record.Bind(dcColl, func() *Dc {
		return &Dc{IntVal: 1, StrVal: "World", YzVal: m.yzs.New()}
	})
	m.abs = record.Bind(abColl, func() *Ab {
		return &Ab{
			FloatVal: 120.10,
			YzVal:    m.yzs.New(),
			ListVal:  []*Yz{m.yzs.New()},
			DictVal:  map[string]any{"y": 1523, "z": 9652.002, "a": m.dcs.New()},
		}
	})
	return m, nil
}

// load returns the record stored under id in the demo collection called
// name.
func (m *models) load(name string, id int64) (record.Record, bool) {
	switch jsonldb.NormalizeName(name) {
	case collectionAb:
		return m.abs.Load(id)
	case collectionDc:
		return m.dcs.Load(id)
	}
	return nil, false
}

var errNotDemo = errors.New("not a demo collection")

// list returns a page of the records of the demo collection called name,
// ordered by id. Pages start at 1.
func (m *models) list(name string, page, limit int) ([]record.Record, error) {
	switch jsonldb.NormalizeName(name) {
	case collectionAb:
		return listPage(m.abs, page, limit)
	case collectionDc:
		return listPage(m.dcs, page, limit)
	}
	return nil, errNotDemo
}

func listPage[T record.Record](m *record.Model[T], page, limit int) ([]record.Record, error) {
	res, err := m.Select(jsonldb.SortBy("id", false))
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for _, r := range res.FetchAll(page, limit, nil) {
		out = append(out, r)
	}
	return out, nil
}

// demo builds a graph of related records and commits it.
func (m *models) demo() (*Ab, error) {
	primary := m.dcs.New()
	primary.StrVal = "primary"
	primary.YzVal.ListVal = []N{{A: 1, B: "one", C: m.cs.New()}}
	if err := record.Commit(primary); err != nil {
		return nil, fmt.Errorf("failed to commit %T: %w", primary, err)
	}
	ab := m.abs.New()
	ab.Primary = primary
	extra := ab.DictVal["a"].(*Dc)
	extra.IntVal = 2
	ab.ListVal = append(ab.ListVal, m.yzs.New())
	ab.ListVal[1].ListVal = []N{{A: 2, B: "two", D: []*C{m.cs.New(), m.cs.New()}}}
	if err := record.Commit(extra); err != nil {
		return nil, fmt.Errorf("failed to commit %T: %w", extra, err)
	}
	if err := record.Commit(ab); err != nil {
		return nil, fmt.Errorf("failed to commit %T: %w", ab, err)
	}
	return ab, nil
}

// Merges rows into live record graphs.

package record

import (
	"encoding/json"
	"log/slog"
	"reflect"

	"github.com/maruel/flexstore/internal/jsonldb"
)

// Update merges payload into r and returns r.
//
// Only attributes present both on r and in payload are considered. The id of
// r and of the records nested in it is never changed.
func Update[T Record](r T, payload jsonldb.Row) T {
	newMerger(false, r.base().bind.db()).object(reflect.ValueOf(r), payload)
	return r
}

// Set merges value into the attribute name of r.
func Set(r Record, name string, value any) {
	newMerger(false, r.base().bind.db()).object(reflect.ValueOf(r), map[string]any{name: value})
}

type fetchKey struct {
	coll *jsonldb.Collection
	id   int64
}

// merger applies payloads to values according to their current shape.
type merger struct {
	// adopt is set while materializing new records: they take the id found
	// in their payload.
	adopt bool
	// db selects the bindings of the records materialized from a payload.
	// nil uses the latest binding of each type.
	db *jsonldb.DB
	// fetching holds the records being refreshed from their collection, to
	// stop reference cycles.
	fetching map[fetchKey]struct{}
}

func newMerger(adopt bool, db *jsonldb.DB) *merger {
	return &merger{adopt: adopt, db: db, fetching: make(map[fetchKey]struct{})}
}

// object merges in into the struct p points to.
func (m *merger) object(p reflect.Value, in map[string]any) {
	m.adoptID(p, in)
	s := p.Elem()
	for _, f := range fieldsOf(s.Type()) {
		v, ok := in[f.name]
		if !ok {
			continue
		}
		m.assign(s.FieldByIndex(f.index), f.shape, f.ref, v)
	}
}

func (m *merger) adoptID(p reflect.Value, in map[string]any) {
	if !m.adopt {
		return
	}
	if rec, ok := p.Interface().(Record); ok {
		if id, ok := jsonldb.ParseID(in["id"]); ok {
			rec.base().id = id
		}
	}
}

// fetch merges the stored row of rec into it.
func (m *merger) fetch(rec Record) bool {
	b := rec.base()
	if !b.Bound() {
		return false
	}
	key := fetchKey{b.bind.coll, b.id}
	if _, ok := m.fetching[key]; ok {
		return false
	}
	row, ok := b.bind.coll.Get(b.id)
	if !ok {
		slog.Debug("Record not found in its collection", "collection", b.bind.coll.Name(), "id", b.id)
		return false
	}
	m.fetching[key] = struct{}{}
	defer delete(m.fetching, key)
	m.object(reflect.ValueOf(rec), row)
	return true
}

// materialize constructs a value of type t, a record pointer or struct, from
// in. b is the binding to use, or nil to use the one registered for t.
func (m *merger) materialize(b *binding, t reflect.Type, in map[string]any, ref bool) reflect.Value {
	if t.Kind() == reflect.Struct {
		return m.materialize(b, reflect.PointerTo(t), in, ref).Elem()
	}
	if b == nil {
		b = lookup(t, m.db)
	}
	p := b.construct(t)
	sub := &merger{adopt: true, db: m.db, fetching: m.fetching}
	if rec, ok := p.Interface().(Record); ok {
		base := rec.base()
		if b != nil {
			base.bind = b
		}
		if id, ok := jsonldb.ParseID(in["id"]); ok {
			base.id = id
		} else if base.Bound() && base.id == 0 {
			base.id = base.bind.coll.NextID()
		}
		if ref {
			sub.fetch(rec)
		}
	}
	sub.object(p, in)
	return p
}

// assign merges in into dst, whose declared shape is sh.
//
// null never replaces a value: it only fits a value that is already nil.
func (m *merger) assign(dst reflect.Value, sh shape, ref bool, in any) {
	if in == nil {
		return
	}
	switch sh {
	case shapeDynamic:
		if dst.IsNil() {
			if v := reflect.ValueOf(in); v.Type().AssignableTo(dst.Type()) {
				dst.Set(v)
			}
			return
		}
		cur := dst.Elem()
		v := reflect.New(cur.Type()).Elem()
		v.Set(cur)
		m.assign(v, shapeOf(cur.Type()), ref, in)
		dst.Set(v)
	case shapeRecord:
		payload, ok := asMap(in)
		if !ok {
			return
		}
		p := dst
		if dst.Kind() == reflect.Pointer {
			if dst.IsNil() {
				dst.Set(m.materialize(nil, dst.Type(), payload, ref))
				return
			}
		} else {
			p = dst.Addr()
		}
		if ref {
			if rec, ok := p.Interface().(Record); ok {
				m.adoptID(p, payload)
				m.fetch(rec)
			}
		}
		m.object(p, payload)
	case shapeSequence:
		items, ok := asList(in)
		if !ok {
			return
		}
		t := dst.Type()
		out := reflect.MakeSlice(t, len(items), len(items))
		if dst.Len() == 0 {
			for i, it := range items {
				out.Index(i).Set(m.fresh(t.Elem(), it))
			}
		} else {
			tmpl := dst.Index(0)
			for i, it := range items {
				out.Index(i).Set(m.derive(tmpl, it))
			}
		}
		dst.Set(out)
	case shapeMapping:
		payload, ok := asMap(in)
		if !ok {
			return
		}
		t := dst.Type()
		if dst.Len() == 0 {
			out := reflect.MakeMapWithSize(t, len(payload))
			for k, v := range payload {
				out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), m.fresh(t.Elem(), v))
			}
			dst.Set(out)
			return
		}
		esh := shapeOf(t.Elem())
		for _, k := range dst.MapKeys() {
			v, ok := payload[k.String()]
			if !ok {
				continue
			}
			nv := reflect.New(t.Elem()).Elem()
			nv.Set(dst.MapIndex(k))
			m.assign(nv, esh, false, v)
			dst.SetMapIndex(k, nv)
		}
	case shapeScalar:
		assignScalar(dst, in)
	}
}

// fresh builds a value of type t from in, with no current value to follow.
func (m *merger) fresh(t reflect.Type, in any) reflect.Value {
	v := reflect.New(t).Elem()
	switch sh := shapeOf(t); sh {
	case shapeRecord:
		if payload, ok := asMap(in); ok {
			return m.materialize(nil, t, payload, false)
		}
	case shapeDynamic:
		if in != nil {
			if iv := reflect.ValueOf(in); iv.Type().AssignableTo(t) {
				v.Set(iv)
			}
		}
	default:
		m.assign(v, sh, false, in)
	}
	return v
}

// derive builds a new sequence element from in, using tmpl as the shape
// template. tmpl is not modified.
func (m *merger) derive(tmpl reflect.Value, in any) reflect.Value {
	t := tmpl.Type()
	switch sh := shapeOf(t); sh {
	case shapeRecord:
		payload, ok := asMap(in)
		if !ok {
			return tmpl
		}
		return m.materialize(nil, t, payload, false)
	case shapeDynamic:
		if tmpl.IsNil() {
			return m.fresh(t, in)
		}
		v := reflect.New(t).Elem()
		v.Set(m.derive(tmpl.Elem(), in))
		return v
	case shapeMapping:
		payload, ok := asMap(in)
		if !ok || tmpl.Len() == 0 {
			return m.fresh(t, in)
		}
		out := reflect.MakeMapWithSize(t, tmpl.Len())
		for it := tmpl.MapRange(); it.Next(); {
			if v, ok := payload[it.Key().String()]; ok {
				out.SetMapIndex(it.Key(), m.derive(it.Value(), v))
			} else {
				out.SetMapIndex(it.Key(), it.Value())
			}
		}
		return out
	default:
		v := reflect.New(t).Elem()
		v.Set(tmpl)
		m.assign(v, sh, false, in)
		return v
	}
}

// assignScalar replaces dst with in converted through JSON. A value that
// does not decode into dst's type leaves dst unchanged.
func assignScalar(dst reflect.Value, in any) {
	data, err := json.Marshal(in)
	if err != nil {
		return
	}
	v := reflect.New(dst.Type())
	if err := json.Unmarshal(data, v.Interface()); err != nil {
		return
	}
	dst.Set(v.Elem())
}

func asMap(in any) (map[string]any, bool) {
	switch x := in.(type) {
	case map[string]any:
		return x, true
	case jsonldb.Row:
		return x, true
	}
	v := reflect.ValueOf(in)
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, v.Len())
	for it := v.MapRange(); it.Next(); {
		out[it.Key().String()] = it.Value().Interface()
	}
	return out, true
}

func asList(in any) ([]any, bool) {
	if x, ok := in.([]any); ok {
		return x, true
	}
	v := reflect.ValueOf(in)
	if v.Kind() != reflect.Slice || v.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, v.Len())
	for i := range out {
		out[i] = v.Index(i).Interface()
	}
	return out, true
}

// Flattens record graphs into rows.

package record

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/maruel/flexstore/internal/jsonldb"
)

// Takeout flattens r into a row.
//
// A bound record's row has an "id" key. With expand set, a reference field
// holding a bound record becomes {"id": k}. A record reached again while it
// is being flattened, through a cycle, is emitted as {"id": k} when bound and
// as null otherwise.
func Takeout(r Record, expand bool) jsonldb.Row {
	f := flattener{expand: expand, active: make(map[uintptr]struct{})}
	out, _ := f.object(reflect.ValueOf(r)).(map[string]any)
	return jsonldb.Row(out)
}

// JSON renders Takeout(r, false). indent is the number of spaces per level;
// 0 renders compact JSON.
func JSON(r Record, indent int) (string, error) {
	row := Takeout(r, false)
	var (
		b   []byte
		err error
	)
	if indent > 0 {
		b, err = json.MarshalIndent(row, "", strings.Repeat(" ", indent))
	} else {
		b, err = json.Marshal(row)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	return string(b), nil
}

// Get returns the flattened value of the attribute name.
func Get(r Record, name string) (any, bool) {
	v, ok := Takeout(r, false)[name]
	return v, ok
}

type flattener struct {
	expand bool
	active map[uintptr]struct{}
}

// object flattens the struct p points to.
func (f *flattener) object(p reflect.Value) any {
	rec, isRec := p.Interface().(Record)
	key := p.Pointer()
	if _, ok := f.active[key]; ok {
		if isRec && rec.base().Bound() {
			return map[string]any{"id": rec.base().id}
		}
		return nil
	}
	f.active[key] = struct{}{}
	defer delete(f.active, key)

	s := p.Elem()
	fields := fieldsOf(s.Type())
	out := make(map[string]any, len(fields)+1)
	if isRec && rec.base().Bound() {
		out["id"] = rec.base().id
	}
	for _, fd := range fields {
		out[fd.name] = f.value(s.FieldByIndex(fd.index), fd.shape, fd.ref)
	}
	return out
}

func (f *flattener) value(v reflect.Value, sh shape, ref bool) any {
	switch sh {
	case shapeDynamic:
		if v.IsNil() {
			return nil
		}
		e := v.Elem()
		return f.value(e, shapeOf(e.Type()), ref)
	case shapeRecord:
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil
			}
		} else {
			v = addressable(v).Addr()
		}
		if ref && f.expand {
			if rec, ok := v.Interface().(Record); ok && rec.base().Bound() {
				return map[string]any{"id": rec.base().id}
			}
		}
		return f.object(v)
	case shapeSequence:
		if v.IsNil() {
			return nil
		}
		esh := shapeOf(v.Type().Elem())
		out := make([]any, v.Len())
		for i := range out {
			out[i] = f.value(v.Index(i), esh, false)
		}
		return out
	case shapeMapping:
		if v.IsNil() {
			return nil
		}
		esh := shapeOf(v.Type().Elem())
		out := make(map[string]any, v.Len())
		for it := v.MapRange(); it.Next(); {
			out[it.Key().String()] = f.value(it.Value(), esh, false)
		}
		return out
	case shapeScalar:
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil
		}
		return v.Interface()
	}
	panic(fmt.Sprintf("record: unknown shape %d", sh))
}

// addressable returns v or an addressable copy of it.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}

// Per-type field descriptors over a closed set of value shapes.

package record

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"
)

// shape classifies how a value is flattened and merged.
type shape int

const (
	// shapeScalar values are replaced wholesale, through their JSON encoding.
	shapeScalar shape = iota
	// shapeRecord is a struct or pointer to struct: a record or plain nested
	// object, merged field by field.
	shapeRecord
	// shapeSequence is a slice other than []byte.
	shapeSequence
	// shapeMapping is a map with string keys.
	shapeMapping
	// shapeDynamic is an interface; the held value's shape applies.
	shapeDynamic
)

var (
	baseType          = reflect.TypeFor[Base]()
	timeType          = reflect.TypeFor[time.Time]()
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// shapeOf returns the shape of values of type t.
func shapeOf(t reflect.Type) shape {
	switch t.Kind() {
	case reflect.Interface:
		return shapeDynamic
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct && !isOpaque(t.Elem()) {
			return shapeRecord
		}
	case reflect.Struct:
		if !isOpaque(t) {
			return shapeRecord
		}
	case reflect.Slice:
		if t.Elem().Kind() != reflect.Uint8 {
			return shapeSequence
		}
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return shapeMapping
		}
	}
	return shapeScalar
}

// isOpaque reports whether the struct type t encodes itself.
func isOpaque(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	p := reflect.PointerTo(t)
	return p.Implements(jsonMarshalerType) || p.Implements(textMarshalerType)
}

// field describes one attribute of a struct type.
type field struct {
	name  string
	index []int
	shape shape
	ref   bool // record:"ref": stored as a foreign key, refreshed on merge
}

var fieldCache sync.Map // reflect.Type -> []field

// fieldsOf returns the attributes of the struct type t in declaration order.
//
// Exported fields are attributes, including the ones promoted from embedded
// structs. Fields tagged json:"-" and fields reached through an embedded
// pointer are skipped. "id" is reserved for the record identity.
func fieldsOf(t reflect.Type) []field {
	if v, ok := fieldCache.Load(t); ok {
		return v.([]field)
	}
	var out []field
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() || !settablePath(t, sf.Index) {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if name == "id" {
			continue
		}
		out = append(out, field{
			name:  name,
			index: sf.Index,
			shape: shapeOf(sf.Type),
			ref:   sf.Tag.Get("record") == "ref",
		})
	}
	v, _ := fieldCache.LoadOrStore(t, out)
	return v.([]field)
}

// settablePath reports whether the field at index can be reached without
// dereferencing a pointer or crossing an unexported embedded struct.
func settablePath(t reflect.Type, index []int) bool {
	for i := 1; i < len(index); i++ {
		sf := t.FieldByIndex(index[:i])
		if sf.Type == baseType || sf.Type.Kind() == reflect.Pointer || !sf.IsExported() {
			return false
		}
	}
	return true
}

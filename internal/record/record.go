package record

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/maruel/flexstore/internal/jsonldb"
)

var (
	// ErrBindingRequired is returned by operations needing a collection on a
	// record whose type is not bound.
	ErrBindingRequired = errors.New("record type is not bound to a collection")
	// ErrNoRecords is returned for an empty batch.
	ErrNoRecords = errors.New("no record to process")
)

// Base carries the identity of a record. Embed it by value.
//
// Its fields are only set by this package: the id is assigned at construction
// or adopted from the payload a record is materialized from, and never
// changed by Update.
type Base struct {
	id   int64
	bind *binding
}

// ID returns the record's id, 0 for unbound records.
func (b *Base) ID() int64 {
	return b.id
}

// Bound reports whether the record was created by a bound Model.
func (b *Base) Bound() bool {
	return b.bind.bound()
}

// Collection returns the collection the record belongs to, or nil.
func (b *Base) Collection() *jsonldb.Collection {
	if b.bind == nil {
		return nil
	}
	return b.bind.coll
}

func (b *Base) base() *Base {
	return b
}

// Record is implemented by pointers to structs embedding Base.
type Record interface {
	base() *Base
}

// binding ties a record type to its constructor and, when bound, its
// collection.
type binding struct {
	typ   reflect.Type
	coll  *jsonldb.Collection
	newFn func() Record
}

func (b *binding) bound() bool {
	return b != nil && b.coll != nil
}

// db returns the DB of the bound collection, or nil.
func (b *binding) db() *jsonldb.DB {
	if !b.bound() {
		return nil
	}
	return b.coll.DB()
}

// construct returns a new *T for the pointer type t, using the registered
// constructor when there is one.
func (b *binding) construct(t reflect.Type) reflect.Value {
	if b != nil && b.newFn != nil {
		if v := reflect.ValueOf(b.newFn()); v.Type() == t && !v.IsNil() {
			return v
		}
	}
	return reflect.New(t.Elem())
}

// registry maps record pointer types to their bindings. It is used to
// construct records found nested in a payload. Each type has its latest
// binding per DB and its latest binding overall, stored with a nil DB.
var registry sync.Map

type registryKey struct {
	typ reflect.Type
	db  *jsonldb.DB
}

// lookup returns the latest binding of t to a collection of db, falling back
// to the latest binding of t.
func lookup(t reflect.Type, db *jsonldb.DB) *binding {
	if db != nil {
		if v, ok := registry.Load(registryKey{t, db}); ok {
			return v.(*binding)
		}
	}
	if v, ok := registry.Load(registryKey{t, nil}); ok {
		return v.(*binding)
	}
	return nil
}

// Model creates and loads the records of type T.
type Model[T Record] struct {
	b *binding
}

// Define registers newFn as the constructor of the unbound record type T.
// newFn may be nil, in which case records start as zero values.
func Define[T Record](newFn func() T) *Model[T] {
	return register(nil, newFn)
}

// Bind binds T to c. Records of type T created afterwards get an id from c.
//
// Binding a type again replaces the binding for new records; existing records
// keep the collection they were created with.
func Bind[T Record](c *jsonldb.Collection, newFn func() T) *Model[T] {
	if c == nil {
		panic("record: Bind with nil collection")
	}
	return register(c, newFn)
}

func register[T Record](c *jsonldb.Collection, newFn func() T) *Model[T] {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("record: %s is not a pointer to struct", t))
	}
	b := &binding{typ: t, coll: c}
	if newFn != nil {
		b.newFn = func() Record { return newFn() }
	}
	registry.Store(registryKey{t, nil}, b)
	if c != nil {
		registry.Store(registryKey{t, c.DB()}, b)
	}
	return &Model[T]{b: b}
}

// Bound reports whether T is bound to a collection.
func (m *Model[T]) Bound() bool {
	return m.b.bound()
}

// Collection returns the bound collection, or nil.
func (m *Model[T]) Collection() *jsonldb.Collection {
	return m.b.coll
}

// New constructs a record. A bound record receives the next id of the
// collection.
func (m *Model[T]) New() T {
	r := m.b.construct(m.b.typ).Interface().(T)
	base := r.base()
	base.bind = m.b
	if m.b.bound() {
		base.id = m.b.coll.NextID()
	}
	return r
}

// Clone constructs a record and merges payload into it.
//
// The record and the records nested in it take the id found in their part of
// the payload. A bound record without id in the payload gets a new one.
func (m *Model[T]) Clone(payload jsonldb.Row) T {
	return newMerger(true, m.b.db()).materialize(m.b, m.b.typ, payload.Clone(), false).Interface().(T)
}

// Load returns the record stored under id.
func (m *Model[T]) Load(id int64) (T, bool) {
	var zero T
	if !m.b.bound() {
		return zero, false
	}
	row, ok := m.b.coll.Get(id)
	if !ok {
		return zero, false
	}
	return m.Clone(row), true
}

// Select runs fn over the collection's rows and returns the result, lazily
// materialized as records of type T.
func (m *Model[T]) Select(fn jsonldb.Transform) (*Result[T], error) {
	if !m.b.bound() {
		return nil, ErrBindingRequired
	}
	return newResult(m.Clone, m.b.coll.Select(fn)), nil
}

// CommitAll commits records in one batch. Records bound to another
// collection are skipped.
func (m *Model[T]) CommitAll(records ...T) error {
	if !m.b.bound() {
		return ErrBindingRequired
	}
	rows := make([]jsonldb.Row, 0, len(records))
	for _, r := range records {
		if r.base().Collection() == m.b.coll {
			rows = append(rows, Takeout(r, true))
		}
	}
	if len(rows) == 0 {
		return ErrNoRecords
	}
	return m.b.coll.Commit(rows...)
}

// DeleteAll deletes records in one batch. Records bound to another
// collection are skipped.
func (m *Model[T]) DeleteAll(records ...T) error {
	if !m.b.bound() {
		return ErrBindingRequired
	}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		if b := r.base(); b.Collection() == m.b.coll {
			ids = append(ids, b.id)
		}
	}
	if len(ids) == 0 {
		return ErrNoRecords
	}
	return m.b.coll.Delete(ids...)
}

// Commit persists r with its reference fields contracted to foreign keys.
func Commit(r Record) error {
	b := r.base()
	if !b.Bound() {
		return ErrBindingRequired
	}
	return b.bind.coll.Commit(Takeout(r, true))
}

// Delete removes r from its collection.
func Delete(r Record) error {
	b := r.base()
	if !b.Bound() {
		return ErrBindingRequired
	}
	return b.bind.coll.Delete(b.id)
}

// Fetch reloads r from its collection and merges the stored row into it. It
// returns false, leaving r unchanged, when r is unbound or no longer stored.
func Fetch(r Record) bool {
	return newMerger(false, r.base().bind.db()).fetch(r)
}

// Select runs fn over the collection of proto and materializes the result as
// records of proto's type.
func Select[T Record](proto T, fn jsonldb.Transform) (*Result[T], error) {
	b := proto.base()
	if !b.Bound() {
		return nil, ErrBindingRequired
	}
	m := &Model[T]{b: b.bind}
	return m.Select(fn)
}

// Package record maps Go object graphs to documents of a jsonldb collection.
//
// A record type is a pointer to a struct embedding [Base]:
//
//	type Article struct {
//		record.Base
//		Title  string  `json:"title"`
//		Author *Person `json:"author" record:"ref"`
//	}
//
// Binding is per type: [Bind] associates the type with a collection and a
// constructor, [Define] registers a constructor only. Records created through
// a bound [Model] receive an id at construction and can be committed,
// deleted and queried. Unbound records are value objects embedded in others.
//
// # Flatten and merge
//
// [Takeout] flattens a record into a row. Attribute names come from json
// struct tags. A field tagged record:"ref" holding a bound record is stored as
// a foreign key {"id": k} when expanded, which is what [Commit] persists.
//
// [Update] merges a row back into a live record according to each
// attribute's current shape: nested records are merged in place, sequences
// are rebuilt against their first element, mappings merge the keys they
// already have, scalars are replaced when the incoming value converts to the
// field's type. Anything else, null included, leaves the attribute
// unchanged. A reference
// field is first refreshed from its own collection.
//
// Records found nested in a payload without a current value are constructed
// with the latest binding of their type to the DB of the record being merged
// into, or the latest binding of their type when that record is unbound.
//
// Records are not safe for concurrent use.
package record

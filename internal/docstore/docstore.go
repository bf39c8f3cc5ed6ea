// Package docstore is a small document database abstraction over named
// collections: get, list, equality queries, set/update/delete and atomic
// batched writes. Collections are slash separated paths, so a per-event
// sub-collection is addressed as "lists/<eventId>/scans".
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrIndexRequired is returned by backends that refuse an ordered query
	// without a matching composite index.
	ErrIndexRequired = errors.New("docstore: query requires an index")
)

// Document is a JSON object stored under an id.
type Document map[string]any

// Snapshot is a document read back from a collection.
type Snapshot struct {
	ID   string
	Data Document
}

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Query is an equality-filtered, optionally ordered read of a collection.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where starts a query with a single equality filter.
func Where(field string, value any) Query {
	return Query{Filters: []Filter{{Field: field, Value: value}}}
}

// And adds another equality filter.
func (q Query) And(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// OrderDesc orders results by field, newest first.
func (q Query) OrderDesc(field string) Query {
	q.OrderBy = field
	q.Desc = true
	return q
}

// Take limits the number of results.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Store is implemented by the Postgres and in-memory backends.
type Store interface {
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	All(ctx context.Context, collection string) ([]Snapshot, error)
	Find(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	// Add stores doc under a generated id.
	Add(ctx context.Context, collection string, doc Document) (string, error)
	// Set overwrites the whole document.
	Set(ctx context.Context, collection, id string, doc Document) error
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Document) error
	// Delete is a no-op when the document does not exist.
	Delete(ctx context.Context, collection, id string) error
	Batch() Batch
	Ping(ctx context.Context) error
	Close() error
}

// Batch collects writes that are committed all-or-nothing.
type Batch interface {
	Set(collection, id string, doc Document)
	Update(collection, id string, fields Document)
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Sub builds a sub-collection path such as Sub("lists", id, "scans").
func Sub(parts ...string) string {
	return strings.Join(parts, "/")
}

// WithID returns the snapshot data with the document id under "id".
func (s Snapshot) WithID() Document {
	out := make(Document, len(s.Data)+1)
	for k, v := range s.Data {
		out[k] = v
	}
	out["id"] = s.ID
	return out
}

// Decode unmarshals the snapshot (including its id) into v.
func (s Snapshot) Decode(v any) error {
	raw, err := json.Marshal(s.WithID())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Encode converts v into a Document through its JSON form.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type op struct {
	kind       opKind
	collection string
	id         string
	doc        Document
}

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

// ops is shared by the batch implementations.
type ops []op

func (o *ops) Set(collection, id string, doc Document) {
	*o = append(*o, op{kind: opSet, collection: collection, id: id, doc: doc})
}

func (o *ops) Update(collection, id string, fields Document) {
	*o = append(*o, op{kind: opUpdate, collection: collection, id: id, doc: fields})
}

func (o *ops) Delete(collection, id string) {
	*o = append(*o, op{kind: opDelete, collection: collection, id: id})
}

func (o *ops) Len() int { return len(*o) }

package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Documents are normalized through JSON on
// write, so numbers compare the same way they do in the Postgres backend.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document

	strictIndexes bool
	indexes       map[string]bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithIndex declares a composite index for ordered queries on collection
// filtered by filterField and ordered by orderField. Declaring any index
// makes ordered queries without one fail with ErrIndexRequired.
func WithIndex(collection, filterField, orderField string) MemoryOption {
	return func(m *Memory) {
		m.strictIndexes = true
		m.indexes[indexKey(collection, filterField, orderField)] = true
	}
}

// WithRequiredIndexes rejects every ordered query that has no declared index.
func WithRequiredIndexes() MemoryOption {
	return func(m *Memory) { m.strictIndexes = true }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		collections: make(map[string]map[string]Document),
		indexes:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func indexKey(collection, filterField, orderField string) string {
	return collection + "|" + filterField + "|" + orderField
}

// Get returns a copy of the stored document.
func (m *Memory) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Snapshot{ID: id, Data: clone(doc)}, nil
}

// All returns every document of a collection ordered by id.
func (m *Memory) All(ctx context.Context, collection string) ([]Snapshot, error) {
	return m.Find(ctx, collection, Query{})
}

// Find runs an equality query.
func (m *Memory) Find(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.OrderBy != "" && m.strictIndexes && !m.hasIndex(collection, q) {
		return nil, fmt.Errorf("%s ordered by %s: %w", collection, q.OrderBy, ErrIndexRequired)
	}
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		filters[i] = Filter{Field: f.Field, Value: normalize(f.Value)}
	}

	m.mu.RLock()
	var out []Snapshot
	for id, doc := range m.collections[collection] {
		if matches(doc, filters) {
			out = append(out, Snapshot{ID: id, Data: clone(doc)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) hasIndex(collection string, q Query) bool {
	if len(q.Filters) == 0 {
		return true
	}
	for _, f := range q.Filters {
		if !m.indexes[indexKey(collection, f.Field, q.OrderBy)] {
			return false
		}
	}
	return true
}

// Add stores doc under a generated id.
func (m *Memory) Add(ctx context.Context, collection string, doc Document) (string, error) {
	id := uuid.NewString()
	return id, m.Set(ctx, collection, id, doc)
}

// Set overwrites a document.
func (m *Memory) Set(ctx context.Context, collection, id string, doc Document) error {
	b := m.Batch()
	b.Set(collection, id, doc)
	return b.Commit(ctx)
}

// Update merges fields into an existing document.
func (m *Memory) Update(ctx context.Context, collection, id string, fields Document) error {
	b := m.Batch()
	b.Update(collection, id, fields)
	return b.Commit(ctx)
}

// Delete removes a document.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	b := m.Batch()
	b.Delete(collection, id)
	return b.Commit(ctx)
}

// Batch starts an atomic batch.
func (m *Memory) Batch() Batch {
	return &memoryBatch{store: m}
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

type memoryBatch struct {
	ops
	store *Memory
}

// Commit validates every update target before applying anything.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()

	exists := func(collection, id string) bool {
		_, ok := m.collections[collection][id]
		return ok
	}
	pending := map[string]bool{}
	for _, o := range b.ops {
		key := o.collection + "/" + o.id
		switch o.kind {
		case opSet:
			pending[key] = true
		case opDelete:
			pending[key] = false
		case opUpdate:
			present, seen := pending[key]
			if (seen && !present) || (!seen && !exists(o.collection, o.id)) {
				return fmt.Errorf("update %s: %w", key, ErrNotFound)
			}
		}
	}

	for _, o := range b.ops {
		coll := m.collections[o.collection]
		if coll == nil {
			coll = make(map[string]Document)
			m.collections[o.collection] = coll
		}
		switch o.kind {
		case opSet:
			coll[o.id] = normalizeDoc(o.doc)
		case opUpdate:
			doc := coll[o.id]
			for k, v := range normalizeDoc(o.doc) {
				doc[k] = v
			}
		case opDelete:
			delete(coll, o.id)
		}
	}
	return nil
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// normalize maps a Go value onto its JSON decoded form.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func normalizeDoc(doc Document) Document {
	out, ok := normalize(map[string]any(doc)).(map[string]any)
	if !ok || out == nil {
		return Document{}
	}
	return out
}

func clone(doc Document) Document {
	return normalizeDoc(doc)
}

// typeRank follows the jsonb ordering of value types.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 1
	case float64:
		return 2
	case bool:
		return 3
	case []any:
		return 4
	default:
		return 5
	}
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case bool:
		y := b.(bool)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
	}
	return 0
}

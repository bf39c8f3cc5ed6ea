package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"checkin/internal/docstore"
	"checkin/internal/queue"
)

var errInjected = errors.New("injected store failure")

// faultyStore wraps a store and fails selected calls.
type faultyStore struct {
	docstore.Store

	mu sync.Mutex
	// failSet maps a collection prefix to the number of Set calls that
	// fail; a negative count fails forever.
	failSet     map[string]int
	failOrdered bool
	failAll     map[string]bool
	failBatch   bool
	setCalls    map[string]int
}

func newFaultyStore(inner docstore.Store) *faultyStore {
	return &faultyStore{
		Store:    inner,
		failSet:  map[string]int{},
		failAll:  map[string]bool{},
		setCalls: map[string]int{},
	}
}

func (f *faultyStore) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	f.mu.Lock()
	f.setCalls[collection]++
	for prefix, n := range f.failSet {
		if !strings.HasPrefix(collection, prefix) || n == 0 {
			continue
		}
		if n > 0 {
			f.failSet[prefix] = n - 1
		}
		f.mu.Unlock()
		return errInjected
	}
	f.mu.Unlock()
	return f.Store.Set(ctx, collection, id, doc)
}

func (f *faultyStore) Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error) {
	if f.failOrdered && q.OrderBy != "" {
		return nil, errInjected
	}
	return f.Store.Find(ctx, collection, q)
}

func (f *faultyStore) All(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	f.mu.Lock()
	fail := false
	for prefix := range f.failAll {
		if strings.HasPrefix(collection, prefix) {
			fail = true
		}
	}
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.All(ctx, collection)
}

func (f *faultyStore) Batch() docstore.Batch {
	if f.failBatch {
		return &failingBatch{Batch: f.Store.Batch()}
	}
	return f.Store.Batch()
}

type failingBatch struct {
	docstore.Batch
}

func (b *failingBatch) Commit(context.Context) error { return errInjected }

type fixture struct {
	store       *docstore.Memory
	faults      *faultyStore
	repairs     *queue.InMemory
	resolver    *Resolver
	students    *Students
	recorder    *Recorder
	reader      *Reader
	maintenance *Maintenance
	deleter     *Deleter
	events      *Events
	errors      *ErrorLog
}

func newFixture(t *testing.T, opts ...docstore.MemoryOption) *fixture {
	t.Helper()
	mem := docstore.NewMemory(opts...)
	faults := newFaultyStore(mem)
	log := zerolog.New(io.Discard)

	f := &fixture{store: mem, faults: faults, repairs: queue.NewInMemory(16)}
	f.resolver = NewResolver(faults, time.Minute, log)
	f.students = NewStudents(faults)
	f.recorder = NewRecorder(faults, f.resolver, f.students, f.repairs, 2, log)
	f.recorder.backoff = time.Millisecond
	f.reader = NewReader(faults, f.resolver, log)
	f.maintenance = NewMaintenance(faults, f.resolver, f.students, log)
	f.deleter = NewDeleter(faults, f.resolver, log)
	f.events = NewEvents(faults, f.resolver, "", log)
	f.errors = NewErrorLog(faults, log)
	return f
}

func (f *fixture) seedEvent(t *testing.T, id string, number float64, name string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), EventsCollection, id, docstore.Document{
		"eventNumber": number,
		"name":        name,
	}))
}

func (f *fixture) seedStudent(t *testing.T, studentID, first, last, email string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), StudentsCollection, "stu-"+studentID, docstore.Document{
		"studentId": studentID,
		"firstName": first,
		"lastName":  last,
		"email":     email,
	}))
}

func (f *fixture) get(t *testing.T, collection, id string) docstore.Document {
	t.Helper()
	snap, err := f.store.Get(context.Background(), collection, id)
	require.NoError(t, err)
	return snap.Data
}

func (f *fixture) missing(t *testing.T, collection, id string) {
	t.Helper()
	_, err := f.store.Get(context.Background(), collection, id)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func (f *fixture) nextRepair(t *testing.T) RepairRequest {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := f.repairs.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		require.Equal(t, queue.TypeRepair, msg.Type)
		var req RepairRequest
		require.NoError(t, json.Unmarshal(msg.Body, &req))
		return req
	case <-ctx.Done():
		t.Fatal("no repair request published")
	}
	return RepairRequest{}
}

func scan(fields ...any) docstore.Document {
	doc := docstore.Document{}
	for i := 0; i+1 < len(fields); i += 2 {
		doc[fields[i].(string)] = fields[i+1]
	}
	return doc
}

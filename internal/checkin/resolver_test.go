package checkin

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/docstore"
)

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")

	tests := []struct {
		name string
		ref  string
		want string
		err  error
	}{
		{name: "event number", ref: "42", want: "E1"},
		{name: "padded number", ref: " 42 ", want: "E1"},
		{name: "float form", ref: "42.0", want: "E1"},
		{name: "internal id", ref: "E1", want: "E1"},
		{name: "opaque id", ref: "abc123", want: "abc123"},
		{name: "unknown number", ref: "7", err: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.resolver.Resolve(ctx, tt.ref)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveQueryFailureIsStoreError(t *testing.T) {
	mem := docstore.NewMemory()
	r := NewResolver(mem, 0, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "42")
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveCachesPositiveResults(t *testing.T) {
	mem := docstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, EventsCollection, "E1", docstore.Document{"eventNumber": 42}))
	r := NewResolver(mem, time.Minute, zerolog.New(io.Discard))

	id, err := r.Resolve(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "E1", id)

	require.NoError(t, mem.Delete(ctx, EventsCollection, "E1"))
	id, err = r.Resolve(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "E1", id)

	r.Forget(42)
	_, err = r.Resolve(ctx, "42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudentsLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedStudent(t, "12345", "Ana", "Lee", "ana@example.edu")

	st, err := f.students.Lookup(ctx, "12345")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "Ana Lee", st.FullName())

	st, err = f.students.Lookup(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, st)

	dir, err := f.students.Directory(ctx)
	require.NoError(t, err)
	assert.Contains(t, dir, "12345")

	doc, err := f.students.Get(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, "stu-12345", doc["id"])
	_, err = f.students.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.students.Get(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStudentsToleratesOddlyTypedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	require.NoError(t, f.store.Set(ctx, StudentsCollection, "stu-12345", docstore.Document{
		"studentId":      "12345",
		"firstName":      "Ana",
		"lastName":       "Lee",
		"email":          "ana@example.edu",
		"photoCheckedAt": "2025-09-01T10:00:00Z",
		"hasPhoto":       "yes",
	}))

	st, err := f.students.Lookup(ctx, "12345")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "Ana Lee", st.FullName())
	assert.Equal(t, Millis(0), st.PhotoCheckedAt)
	assert.False(t, st.HasPhoto)

	dir, err := f.students.Directory(ctx)
	require.NoError(t, err)
	assert.Contains(t, dir, "12345")

	_, err = f.recorder.Record(ctx, scan("id", "S1", "eventId", "E1", "code", "12345"))
	require.NoError(t, err)
	flat := f.get(t, ScansCollection, "S1")
	assert.Equal(t, "Ana Lee", flat["fullName"])
	assert.Equal(t, true, flat["verified"])

	require.NoError(t, f.store.Set(ctx, ScansCollection, "S2", docstore.Document{"listId": "E1", "code": "12345"}))
	res, err := f.maintenance.Enrich(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, res.EnrichedCount)
	assert.Equal(t, "Ana Lee", f.get(t, ScansCollection, "S2")["fullName"])
}

func TestResolveNumericInternalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, DefaultTestEventID, 1, "test")

	id, err := f.resolver.Resolve(ctx, DefaultTestEventID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTestEventID, id)

	res, err := f.recorder.Record(ctx, scan("id", "S1", "eventId", DefaultTestEventID))
	require.NoError(t, err)
	assert.Equal(t, DefaultTestEventID, res.EventID)
	f.get(t, NestedScans(DefaultTestEventID), "S1")

	scans, err := f.reader.List(ctx, DefaultTestEventID)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "S1", scans[0]["id"])

	// the event's own number still resolves by number
	id, err = f.resolver.Resolve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, DefaultTestEventID, id)

	_, err = f.resolver.Resolve(ctx, "99")
	assert.ErrorIs(t, err, ErrNotFound)
}

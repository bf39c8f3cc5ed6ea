package checkin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/docstore"
)

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d["id"].(string)
	}
	return out
}

func TestListMergesPreferringFlat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")

	require.NoError(t, f.store.Set(ctx, ScansCollection, "S1", docstore.Document{"listId": "E1", "timestamp": float64(100), "fullName": "flat copy"}))
	require.NoError(t, f.store.Set(ctx, NestedScans("E1"), "S1", docstore.Document{"eventId": "E1", "timestamp": float64(100), "fullName": "nested copy"}))
	require.NoError(t, f.store.Set(ctx, NestedScans("E1"), "S2", docstore.Document{"eventId": "E1", "timestamp": map[string]any{"seconds": float64(1)}}))
	require.NoError(t, f.store.Set(ctx, ScansCollection, "S3", docstore.Document{"listId": "E1", "timestamp": "50"}))
	require.NoError(t, f.store.Set(ctx, ScansCollection, "other", docstore.Document{"listId": "E2", "timestamp": float64(1e12)}))

	scans, err := f.reader.List(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"S2", "S1", "S3"}, ids(scans))
	assert.Equal(t, "flat copy", scans[1]["fullName"])
	assert.NotContains(t, scans[1], "source")
}

func TestListResolutionEquivalence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	for _, id := range []string{"S1", "S2"} {
		_, err := f.recorder.Record(ctx, scan("id", id, "eventId", "42", "code", id, "timestamp", float64(10)))
		require.NoError(t, err)
	}

	byNumber, err := f.reader.List(ctx, "42")
	require.NoError(t, err)
	byID, err := f.reader.List(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, byID, byNumber)
	assert.Equal(t, []string{"S1", "S2"}, ids(byNumber))
}

func TestListUnknownNumberIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.reader.List(context.Background(), "42")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.reader.List(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListFallsBackToRawReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	require.NoError(t, f.store.Set(ctx, ScansCollection, "old", docstore.Document{"listId": "42", "timestamp": float64(1)}))

	scans, err := f.reader.List(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids(scans))
}

func TestListOrderedQueryFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	for id, ts := range map[string]float64{"a": 300, "b": 100, "c": 200} {
		require.NoError(t, f.store.Set(ctx, ScansCollection, id, docstore.Document{"listId": "E1", "timestamp": ts}))
	}
	f.faults.failOrdered = true

	scans, err := f.reader.List(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(scans))
}

func TestListMissingIndexFallback(t *testing.T) {
	f := newFixture(t, docstore.WithRequiredIndexes())
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	require.NoError(t, f.store.Set(ctx, ScansCollection, "a", docstore.Document{"listId": "E1", "timestamp": float64(1)}))
	require.NoError(t, f.store.Set(ctx, ScansCollection, "b", docstore.Document{"listId": "E1", "timestamp": float64(2)}))

	scans, err := f.reader.List(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(scans))
}

func TestListIgnoresNestedFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, ScansCollection, "a", docstore.Document{"listId": "E1", "timestamp": float64(1)}))
	f.faults.failAll["lists/"] = true

	scans, err := f.reader.List(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(scans))
}

func TestSortScansMixedTimestamps(t *testing.T) {
	scans := []docstore.Document{
		{"id": "none"},
		{"id": "ms", "timestamp": float64(2_000_000)},
		{"id": "native", "timestamp": map[string]any{"_seconds": float64(3000), "_nanoseconds": float64(0)}},
		{"id": "str", "timestamp": "1000"},
		{"id": "garbage", "timestamp": true},
	}
	SortScans(scans)
	assert.Equal(t, []string{"native", "ms", "str", "garbage", "none"}, ids(scans))
}

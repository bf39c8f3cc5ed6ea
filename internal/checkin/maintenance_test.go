package checkin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/docstore"
)

func TestMigrateRepointsStaleScans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	require.NoError(t, f.store.Set(ctx, ScansCollection, "S1", docstore.Document{"listId": "42", "eventId": "42"}))
	require.NoError(t, f.store.Set(ctx, ScansCollection, "S2", docstore.Document{"listId": "42"}))
	require.NoError(t, f.store.Set(ctx, ScansCollection, "S3", docstore.Document{"listId": "E1"}))

	res, err := f.maintenance.Migrate(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, res.MigratedCount)
	assert.Equal(t, "E1", res.ActualEventID)

	stale, err := f.store.Find(ctx, ScansCollection, docstore.Where("listId", "42"))
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Equal(t, "E1", f.get(t, ScansCollection, "S2")["eventId"])

	again, err := f.maintenance.Migrate(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, again.MigratedCount)
}

func TestMigrateValidatesAndResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.maintenance.Migrate(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.maintenance.Migrate(ctx, "abc")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.maintenance.Migrate(ctx, "42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMigrateBatchFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	require.NoError(t, f.store.Set(ctx, ScansCollection, "S1", docstore.Document{"listId": "42"}))
	f.faults.failBatch = true

	_, err := f.maintenance.Migrate(ctx, "42")
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, "42", f.get(t, ScansCollection, "S1")["listId"])
}

func TestEnrichBackfillsBothCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	f.seedStudent(t, "12345", "Ana", "Lee", "ana@example.edu")

	require.NoError(t, f.store.Set(ctx, ScansCollection, "S1", docstore.Document{"listId": "E1", "code": "12345", "verified": false}))
	require.NoError(t, f.store.Set(ctx, NestedScans("E1"), "S1", docstore.Document{"eventId": "E1", "code": "12345", "verified": false}))
	require.NoError(t, f.store.Set(ctx, ScansCollection, "S2", docstore.Document{"listId": "E1", "code": "unknown"}))

	res, err := f.maintenance.Enrich(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalScans)
	assert.Equal(t, 1, res.EnrichedCount)

	flat := f.get(t, ScansCollection, "S1")
	nested := f.get(t, NestedScans("E1"), "S1")
	for _, doc := range []docstore.Document{flat, nested} {
		assert.Equal(t, true, doc["verified"])
		assert.Equal(t, true, doc["processed"])
		assert.Equal(t, "Ana Lee", doc["fullName"])
		assert.Equal(t, "12345", doc["studentId"])
		assert.Equal(t, "E1", doc["eventId"])
	}
	assert.NotContains(t, nested, "listId")
	assert.NotContains(t, f.get(t, ScansCollection, "S2"), "verified")

	// a second run rewrites identical values
	again, err := f.maintenance.Enrich(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, res.EnrichedCount, again.EnrichedCount)
	assert.Equal(t, flat, f.get(t, ScansCollection, "S1"))
	assert.Equal(t, nested, f.get(t, NestedScans("E1"), "S1"))
}

func TestRepairRejectsIncompleteRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.maintenance.Repair(context.Background(), RepairRequest{ScanID: "S1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.maintenance.Repair(context.Background(), RepairRequest{
		ScanID: "S1", EventID: "E1", Nested: docstore.Document{}, Flat: docstore.Document{}, Failed: []string{"index"},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRepairAfterDeleteDoesNotResurrect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	f.faults.failSet[ScansCollection] = -1

	_, err := f.recorder.Record(ctx, scan("id", "S1", "eventId", "E1", "code", "12345"))
	require.ErrorIs(t, err, ErrWrite)
	req := f.nextRepair(t)
	f.faults.failSet[ScansCollection] = 0

	_, err = f.deleter.Delete(ctx, "S1", "E1")
	require.NoError(t, err)

	applied, err := f.maintenance.Repair(ctx, req)
	require.NoError(t, err)
	assert.False(t, applied)
	f.missing(t, ScansCollection, "S1")
	f.missing(t, NestedScans("E1"), "S1")
}

func TestRepairSkipsNewerRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	f.faults.failSet["lists/"] = -1

	_, err := f.recorder.Record(ctx, scan("id", "S1", "eventId", "E1", "deviceId", "old", "timestamp", float64(1000)))
	require.ErrorIs(t, err, ErrWrite)
	req := f.nextRepair(t)
	f.faults.failSet["lists/"] = 0

	_, err = f.recorder.Record(ctx, scan("id", "S1", "eventId", "E1", "deviceId", "new", "timestamp", float64(2000)))
	require.NoError(t, err)

	applied, err := f.maintenance.Repair(ctx, req)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "new", f.get(t, NestedScans("E1"), "S1")["deviceId"])
	assert.Equal(t, "new", f.get(t, ScansCollection, "S1")["deviceId"])
}

func TestRepairRewritesOnlyFailedSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")

	_, err := f.recorder.Record(ctx, scan("id", "S1", "eventId", "E1", "deviceId", "v1", "timestamp", float64(1000)))
	require.NoError(t, err)

	// the replay reaches the nested log but not the flat index
	f.faults.failSet[ScansCollection] = -1
	_, err = f.recorder.Record(ctx, scan("id", "S1", "eventId", "E1", "deviceId", "v2", "timestamp", float64(1000)))
	require.ErrorIs(t, err, ErrWrite)
	req := f.nextRepair(t)
	f.faults.failSet[ScansCollection] = 0
	assert.Equal(t, "v1", f.get(t, ScansCollection, "S1")["deviceId"])

	applied, err := f.maintenance.Repair(ctx, req)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "v2", f.get(t, ScansCollection, "S1")["deviceId"])
	assert.Equal(t, "v2", f.get(t, NestedScans("E1"), "S1")["deviceId"])
}

func TestRepairWritesBothWhenBothFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "E1", 42, "Fall Gala")
	f.faults.failSet[""] = -1

	_, err := f.recorder.Record(ctx, scan("id", "S1", "eventId", "E1"))
	require.ErrorIs(t, err, ErrWrite)
	req := f.nextRepair(t)
	assert.ElementsMatch(t, []string{"nested", "flat"}, req.Failed)
	f.faults.failSet[""] = 0

	applied, err := f.maintenance.Repair(ctx, req)
	require.NoError(t, err)
	assert.True(t, applied)
	f.get(t, ScansCollection, "S1")
	f.get(t, NestedScans("E1"), "S1")
}

package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"checkin/internal/docstore"
	"checkin/internal/metrics"
)

// MigrateResult reports a migration run.
type MigrateResult struct {
	Success       bool   `json:"success"`
	EventNumber   any    `json:"eventNumber"`
	ActualEventID string `json:"actualEventId"`
	MigratedCount int    `json:"migratedCount"`
}

// EnrichResult reports an enrichment run.
type EnrichResult struct {
	Success       bool   `json:"success"`
	EventNumber   any    `json:"eventNumber"`
	ActualEventID string `json:"actualEventId"`
	TotalScans    int    `json:"totalScans"`
	EnrichedCount int    `json:"enrichedCount"`
}

// Maintenance holds the re-runnable reconciliation jobs. Each run commits its
// writes as one batch.
type Maintenance struct {
	store    docstore.Store
	resolver *Resolver
	students *Students
	log      zerolog.Logger
}

// NewMaintenance creates the maintenance jobs.
func NewMaintenance(store docstore.Store, resolver *Resolver, students *Students, log zerolog.Logger) *Maintenance {
	return &Maintenance{store: store, resolver: resolver, students: students, log: log.With().Str("component", "maintenance").Logger()}
}

// resolveNumber validates a human-facing event number and resolves it.
func (m *Maintenance) resolveNumber(ctx context.Context, eventNumber string) (float64, string, error) {
	if eventNumber == "" {
		return 0, "", validationf("eventNumber is required")
	}
	n, ok := ParseEventNumber(eventNumber)
	if !ok {
		return 0, "", validationf("eventNumber must be a number")
	}
	id, err := m.resolver.Resolve(ctx, eventNumber)
	if err != nil {
		return 0, "", err
	}
	return n, id, nil
}

// Migrate repoints flat scans still filed under the raw event number to the
// event's internal id. A second run finds nothing to migrate.
func (m *Maintenance) Migrate(ctx context.Context, eventNumber string) (MigrateResult, error) {
	n, eventID, err := m.resolveNumber(ctx, eventNumber)
	if err != nil {
		return MigrateResult{}, err
	}
	stale := formatNumber(n)

	snaps, err := m.store.Find(ctx, ScansCollection, docstore.Where("listId", stale))
	if err != nil {
		return MigrateResult{}, storeErr("Failed to migrate scan records", err)
	}

	batch := m.store.Batch()
	for _, s := range snaps {
		m.log.Debug().Str("scanId", s.ID).Str("from", stale).Str("to", eventID).Msg("migrating scan")
		batch.Update(ScansCollection, s.ID, docstore.Document{"listId": eventID, "eventId": eventID})
	}
	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			return MigrateResult{}, storeErr("Failed to migrate scan records", err)
		}
		metrics.MaintenanceUpdates.WithLabelValues("migrate").Add(float64(batch.Len()))
	}

	m.log.Info().Str("eventNumber", stale).Str("eventId", eventID).Int("migrated", len(snaps)).Msg("migration finished")
	return MigrateResult{Success: true, EventNumber: n, ActualEventID: eventID, MigratedCount: len(snaps)}, nil
}

// Enrich backfills student fields on an event's flat scans, and on their
// nested copies where those exist. Re-running rewrites identical values.
func (m *Maintenance) Enrich(ctx context.Context, eventNumber string) (EnrichResult, error) {
	n, eventID, err := m.resolveNumber(ctx, eventNumber)
	if err != nil {
		return EnrichResult{}, err
	}

	dir, err := m.students.Directory(ctx)
	if err != nil {
		return EnrichResult{}, err
	}
	snaps, err := m.store.Find(ctx, ScansCollection, docstore.Where("listId", eventID))
	if err != nil {
		return EnrichResult{}, storeErr("Failed to enrich scan records", err)
	}
	nestedSnaps, err := m.store.All(ctx, NestedScans(eventID))
	if err != nil {
		return EnrichResult{}, storeErr("Failed to enrich scan records", err)
	}
	nested := make(map[string]bool, len(nestedSnaps))
	for _, s := range nestedSnaps {
		nested[s.ID] = true
	}

	batch := m.store.Batch()
	enriched := 0
	for _, s := range snaps {
		code := asString(s.Data["studentId"])
		if code == "" {
			code = asString(s.Data["code"])
		}
		st, ok := dir[code]
		if !ok {
			continue
		}
		fields := docstore.Document{
			"verified":  true,
			"processed": true,
			"firstName": st.FirstName,
			"lastName":  st.LastName,
			"email":     st.Email,
			"fullName":  st.FullName(),
			"studentId": code,
			"listId":    eventID,
			"eventId":   eventID,
		}
		batch.Update(ScansCollection, s.ID, fields)
		if nested[s.ID] {
			nestedFields := make(docstore.Document, len(fields))
			for k, v := range fields {
				nestedFields[k] = v
			}
			delete(nestedFields, "listId")
			batch.Update(NestedScans(eventID), s.ID, nestedFields)
		}
		enriched++
	}
	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			return EnrichResult{}, storeErr("Failed to enrich scan records", err)
		}
		metrics.MaintenanceUpdates.WithLabelValues("enrich").Add(float64(batch.Len()))
	}

	m.log.Info().Str("eventId", eventID).Int("total", len(snaps)).Int("enriched", enriched).Msg("enrichment finished")
	return EnrichResult{Success: true, EventNumber: n, ActualEventID: eventID, TotalScans: len(snaps), EnrichedCount: enriched}, nil
}

// Repair rewrites the representations a partially recorded scan is missing.
// A failed side is written only while the side that did get written still
// holds exactly what the recorder wrote; a delete or a newer record of the
// same id since then makes the repair obsolete and it is dropped. When both
// sides failed they are written only if neither exists yet. Repair reports
// whether anything was written.
func (m *Maintenance) Repair(ctx context.Context, req RepairRequest) (bool, error) {
	if req.ScanID == "" || req.EventID == "" || req.Nested == nil || req.Flat == nil || len(req.Failed) == 0 {
		return false, validationf("repair request for scan %q is incomplete", req.ScanID)
	}
	sides := map[string]struct {
		collection string
		doc        docstore.Document
	}{
		"nested": {NestedScans(req.EventID), req.Nested},
		"flat":   {ScansCollection, req.Flat},
	}
	failed := make(map[string]bool, len(req.Failed))
	for _, name := range req.Failed {
		if _, ok := sides[name]; !ok {
			return false, validationf("repair request for scan %q names unknown representation %q", req.ScanID, name)
		}
		failed[name] = true
	}
	log := m.log.With().Str("scanId", req.ScanID).Str("eventId", req.EventID).Strs("failed", req.Failed).Logger()

	for name, side := range sides {
		current, err := m.store.Get(ctx, side.collection, req.ScanID)
		exists := true
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			exists = false
		case err != nil:
			return false, storeErr("repair scan "+req.ScanID, err)
		}
		if failed[name] {
			if exists && len(failed) == len(sides) {
				log.Info().Str("present", name).Msg("scan written since the failed record, repair dropped")
				return false, nil
			}
			continue
		}
		if !exists {
			log.Info().Str("missing", name).Msg("scan deleted since the failed record, repair dropped")
			return false, nil
		}
		if !sameDocument(current.Data, side.doc) {
			log.Info().Str("changed", name).Msg("scan rewritten since the failed record, repair dropped")
			return false, nil
		}
	}

	batch := m.store.Batch()
	for _, name := range req.Failed {
		batch.Set(sides[name].collection, req.ScanID, sides[name].doc)
	}
	if err := batch.Commit(ctx); err != nil {
		return false, storeErr("repair scan "+req.ScanID, err)
	}
	log.Info().Msg("scan repaired")
	return true, nil
}

// sameDocument compares documents by their JSON encoding, which is how both
// store backends and the repair queue hold them.
func sameDocument(a, b docstore.Document) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

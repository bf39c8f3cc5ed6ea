package checkin

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"checkin/internal/docstore"
)

// DeleteResult reports a removed scan.
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ScanID  string `json:"scanId"`
	EventID string `json:"eventId,omitempty"`
}

// BulkDeleteResult reports a bulk removal. Per-record failures are listed in
// Errors and do not fail the call.
type BulkDeleteResult struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message"`
	DeletedCount   int         `json:"deletedCount"`
	TotalRequested int         `json:"totalRequested"`
	Errors         []ItemError `json:"errors,omitempty"`
}

// Deleter removes scans from both representations.
type Deleter struct {
	store    docstore.Store
	resolver *Resolver
	log      zerolog.Logger
}

// NewDeleter creates a scan deleter.
func NewDeleter(store docstore.Store, resolver *Resolver, log zerolog.Logger) *Deleter {
	return &Deleter{store: store, resolver: resolver, log: log.With().Str("component", "deleter").Logger()}
}

// Delete removes one scan. The event comes from eventRef when given, else
// from the flat copy. A scan with neither copy present is ErrNotFound.
func (d *Deleter) Delete(ctx context.Context, scanID, eventRef string) (DeleteResult, error) {
	if scanID == "" {
		return DeleteResult{}, validationf("scanId is required")
	}

	var candidates []string
	if eventRef != "" {
		id, err := d.resolver.Resolve(ctx, eventRef)
		if err != nil {
			return DeleteResult{}, err
		}
		candidates = append(candidates, id)
	}

	flatFound := true
	flat, err := d.store.Get(ctx, ScansCollection, scanID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		flatFound = false
	case err != nil:
		return DeleteResult{}, storeErr("Failed to delete scan record", err)
	default:
		candidates = appendUnique(candidates, asString(flat.Data["listId"]))
		candidates = appendUnique(candidates, asString(flat.Data["eventId"]))
	}

	batch := d.store.Batch()
	if flatFound {
		batch.Delete(ScansCollection, scanID)
	}
	nestedFound := false
	for _, eventID := range candidates {
		_, err := d.store.Get(ctx, NestedScans(eventID), scanID)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return DeleteResult{}, storeErr("Failed to delete scan record", err)
		}
		nestedFound = true
		batch.Delete(NestedScans(eventID), scanID)
	}
	if !flatFound && !nestedFound {
		return DeleteResult{}, notFoundf("Scan record not found")
	}
	if err := batch.Commit(ctx); err != nil {
		return DeleteResult{}, storeErr("Failed to delete scan record", err)
	}

	eventID := ""
	if len(candidates) > 0 {
		eventID = candidates[0]
	}
	d.log.Info().Str("scanId", scanID).Str("eventId", eventID).Bool("flat", flatFound).Bool("nested", nestedFound).Msg("scan deleted")
	return DeleteResult{Success: true, Message: "Scan record deleted successfully", ScanID: scanID, EventID: eventID}, nil
}

// BulkDelete removes each listed scan from both representations under the
// given event. It continues past failures and reports them per record.
func (d *Deleter) BulkDelete(ctx context.Context, recordIDs []string, eventRef string) (BulkDeleteResult, error) {
	if len(recordIDs) == 0 {
		return BulkDeleteResult{}, validationf("recordIds array is required")
	}
	if eventRef == "" {
		return BulkDeleteResult{}, validationf("eventId is required")
	}
	eventID, err := d.resolver.Resolve(ctx, eventRef)
	if err != nil {
		return BulkDeleteResult{}, err
	}

	res := BulkDeleteResult{Success: true, TotalRequested: len(recordIDs)}
	for _, id := range recordIDs {
		if id == "" {
			res.Errors = append(res.Errors, ItemError{RecordID: id, Error: "recordId is empty"})
			continue
		}
		batch := d.store.Batch()
		batch.Delete(ScansCollection, id)
		batch.Delete(NestedScans(eventID), id)
		if err := batch.Commit(ctx); err != nil {
			d.log.Error().Err(err).Str("recordId", id).Msg("bulk delete item failed")
			res.Errors = append(res.Errors, ItemError{RecordID: id, Error: err.Error()})
			continue
		}
		res.DeletedCount++
	}
	res.Message = fmt.Sprintf("Successfully deleted %d of %d records", res.DeletedCount, res.TotalRequested)
	d.log.Info().Str("eventId", eventID).Int("deleted", res.DeletedCount).Int("requested", res.TotalRequested).Msg("bulk delete finished")
	return res, nil
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

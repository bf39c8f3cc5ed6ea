package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"checkin/internal/docstore"
)

// DefaultTestEventID is the leftover test event removed by DeleteTestEvent.
const DefaultTestEventID = "1756647674290"

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// updatableEventFields are the fields a partial update may change.
var updatableEventFields = []string{
	"eventNumber", "name", "description", "location", "date",
	"isActive", "isCompleted", "completedAt", "exportFormat",
	"customColumns", "staticValues",
}

// Events manages the event catalogue.
type Events struct {
	store       docstore.Store
	resolver    *Resolver
	testEventID string
	log         zerolog.Logger
	now         func() time.Time
}

// NewEvents creates the event catalogue. An empty testEventID uses
// DefaultTestEventID.
func NewEvents(store docstore.Store, resolver *Resolver, testEventID string, log zerolog.Logger) *Events {
	if testEventID == "" {
		testEventID = DefaultTestEventID
	}
	return &Events{
		store:       store,
		resolver:    resolver,
		testEventID: testEventID,
		log:         log.With().Str("component", "events").Logger(),
		now:         time.Now,
	}
}

// List returns every event with its id.
func (e *Events) List(ctx context.Context) ([]docstore.Document, error) {
	snaps, err := e.store.All(ctx, EventsCollection)
	if err != nil {
		return nil, storeErr("Failed to get events", err)
	}
	out := make([]docstore.Document, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.WithID())
	}
	return out, nil
}

// Create stores a new event after checking its number is unused.
func (e *Events) Create(ctx context.Context, body docstore.Document) (docstore.Document, error) {
	name := asString(body["name"])
	n, ok := ParseEventNumber(asString(body["eventNumber"]))
	if name == "" || !ok || n == 0 {
		return nil, validationf("Event name and eventNumber are required")
	}
	if err := e.ensureUnique(ctx, n); err != nil {
		return nil, err
	}

	now := e.now().UTC().Format(isoMillis)
	doc := docstore.Document{
		"eventNumber":   n,
		"name":          name,
		"description":   stringOr(body, "description", ""),
		"date":          stringOr(body, "date", now),
		"location":      stringOr(body, "location", ""),
		"isActive":      true,
		"isCompleted":   false,
		"completedAt":   nil,
		"createdAt":     now,
		"createdBy":     stringOr(body, "createdBy", "mobile_app"),
		"customColumns": []any{},
		"staticValues":  map[string]any{},
		"exportFormat":  stringOr(body, "exportFormat", "TEXT_DELIMITED"),
	}
	if v, ok := body["isActive"].(bool); ok {
		doc["isActive"] = v
	}
	if v, ok := body["customColumns"].([]any); ok {
		doc["customColumns"] = v
	}
	if v := mapField(body, "staticValues"); len(v) > 0 {
		doc["staticValues"] = v
	}

	id, err := e.store.Add(ctx, EventsCollection, doc)
	if err != nil {
		return nil, storeErr("Failed to create event", err)
	}
	e.log.Info().Str("eventId", id).Str("eventNumber", formatNumber(n)).Str("name", name).Msg("event created")
	return docstore.Snapshot{ID: id, Data: doc}.WithID(), nil
}

// Update applies a partial update. Absent fields are left alone;
// completedAt may be cleared with null.
func (e *Events) Update(ctx context.Context, patch docstore.Document) (docstore.Document, error) {
	id := asString(patch["id"])
	if id == "" {
		return nil, validationf("Event ID is required")
	}
	current, err := e.store.Get(ctx, EventsCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundf("Event not found")
	}
	if err != nil {
		return nil, storeErr("Failed to update event", err)
	}

	fields := docstore.Document{}
	for _, k := range updatableEventFields {
		if v, ok := patch[k]; ok {
			fields[k] = v
		}
	}
	if raw, ok := fields["eventNumber"]; ok {
		n, valid := ParseEventNumber(asString(raw))
		if !valid {
			return nil, validationf("eventNumber must be a number")
		}
		fields["eventNumber"] = n
		old, hadOld := ParseEventNumber(asString(current.Data["eventNumber"]))
		if !hadOld || old != n {
			if err := e.ensureUnique(ctx, n); err != nil {
				return nil, err
			}
			if hadOld {
				e.resolver.Forget(old)
			}
		}
	}
	fields["updatedAt"] = e.now().UTC().Format(isoMillis)

	if err := e.store.Update(ctx, EventsCollection, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, notFoundf("Event not found")
		}
		return nil, storeErr("Failed to update event", err)
	}
	updated, err := e.store.Get(ctx, EventsCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundf("Event not found after update")
	}
	if err != nil {
		return nil, storeErr("Failed to update event", err)
	}
	e.log.Info().Str("eventId", id).Int("fields", len(fields)).Msg("event updated")
	return updated.WithID(), nil
}

// DeleteTestEvent removes the configured test event. Deleting it again is
// not an error.
func (e *Events) DeleteTestEvent(ctx context.Context) error {
	current, err := e.store.Get(ctx, EventsCollection, e.testEventID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
	case err != nil:
		return storeErr("Failed to delete test event", err)
	}
	if err := e.store.Delete(ctx, EventsCollection, e.testEventID); err != nil {
		return storeErr("Failed to delete test event", err)
	}
	if n, ok := ParseEventNumber(asString(current.Data["eventNumber"])); ok {
		e.resolver.Forget(n)
	}
	if n, ok := ParseEventNumber(e.testEventID); ok {
		e.resolver.Forget(n)
	}
	e.log.Warn().Str("eventId", e.testEventID).Msg("test event deleted")
	return nil
}

func (e *Events) ensureUnique(ctx context.Context, n float64) error {
	snaps, err := e.store.Find(ctx, EventsCollection, docstore.Where("eventNumber", n).Take(1))
	if err != nil {
		return storeErr("check event number", err)
	}
	if len(snaps) > 0 {
		return &ConflictError{Field: "eventNumber", Value: formatNumber(n)}
	}
	return nil
}

func stringOr(doc docstore.Document, key, fallback string) string {
	if s, ok := doc[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

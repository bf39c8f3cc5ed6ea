package checkin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"checkin/internal/docstore"
)

// Collection names.
const (
	EventsCollection   = "events"
	StudentsCollection = "students"
	ScansCollection    = "scans"
	ErrorsCollection   = "errors"
	listsCollection    = "lists"
)

// NestedScans is the per-event scan sub-collection.
func NestedScans(eventID string) string {
	return docstore.Sub(listsCollection, eventID, ScansCollection)
}

// Resolver maps human-facing event numbers to internal event ids.
type Resolver struct {
	store docstore.Store
	cache *cache.Cache
	log   zerolog.Logger
}

// NewResolver creates a resolver. A ttl of zero disables caching.
func NewResolver(store docstore.Store, ttl time.Duration, log zerolog.Logger) *Resolver {
	r := &Resolver{store: store, log: log.With().Str("component", "resolver").Logger()}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns the internal event id for ref. Non-numeric references are
// already internal ids and come back unchanged. A number matching no
// eventNumber still resolves when an event is stored under that literal id;
// otherwise it is ErrNotFound. A failed lookup is ErrStore.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	n, ok := ParseEventNumber(ref)
	if !ok {
		return ref, nil
	}
	key := formatNumber(n)
	if r.cache != nil {
		if id, found := r.cache.Get(key); found {
			return id.(string), nil
		}
	}

	snaps, err := r.store.Find(ctx, EventsCollection, docstore.Where("eventNumber", n).Take(1))
	if err != nil {
		return "", storeErr("lookup event number "+key, err)
	}
	var id string
	if len(snaps) > 0 {
		id = snaps[0].ID
	} else {
		// some internal ids are numeric, such as the test event's
		raw := strings.TrimSpace(ref)
		_, err := r.store.Get(ctx, EventsCollection, raw)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			r.log.Debug().Str("eventNumber", key).Msg("no event for event number")
			return "", notFoundf("No event found with eventNumber: %s", key)
		case err != nil:
			return "", storeErr("lookup event "+raw, err)
		}
		id = raw
	}
	r.log.Debug().Str("eventNumber", key).Str("eventId", id).Msg("resolved event number")
	if r.cache != nil {
		r.cache.SetDefault(key, id)
	}
	return id, nil
}

// Forget drops a cached resolution, used when an event's number changes.
func (r *Resolver) Forget(number float64) {
	if r.cache != nil {
		r.cache.Delete(formatNumber(number))
	}
}

package checkin

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"checkin/internal/docstore"
	"checkin/internal/metrics"
)

// Reader lists an event's scans from both representations.
type Reader struct {
	store    docstore.Store
	resolver *Resolver
	log      zerolog.Logger
}

// NewReader creates a scan reader.
func NewReader(store docstore.Store, resolver *Resolver, log zerolog.Logger) *Reader {
	return &Reader{store: store, resolver: resolver, log: log.With().Str("component", "reader").Logger()}
}

// List returns every scan of the referenced event, newest first. Flat copies
// win over nested copies with the same id. When nothing is stored under the
// resolved id, records filed under the raw reference are returned instead.
func (r *Reader) List(ctx context.Context, ref string) ([]docstore.Document, error) {
	if ref == "" {
		return nil, validationf("eventNumber or eventId is required")
	}
	eventID, err := r.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	scans, err := r.collect(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 && ref != eventID {
		r.log.Debug().Str("ref", ref).Str("eventId", eventID).Msg("no scans under resolved id, trying raw reference")
		if scans, err = r.collect(ctx, ref); err != nil {
			return nil, err
		}
	}

	SortScans(scans)
	r.log.Debug().Str("ref", ref).Str("eventId", eventID).Int("count", len(scans)).Msg("listed scans")
	return scans, nil
}

func (r *Reader) collect(ctx context.Context, eventID string) ([]docstore.Document, error) {
	var flat, nested []docstore.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		flat, err = r.flat(gctx, eventID)
		return err
	})
	g.Go(func() error {
		var err error
		nested, err = r.store.All(gctx, NestedScans(eventID))
		if err != nil {
			r.log.Warn().Err(err).Str("eventId", eventID).Msg("nested scan query failed, using flat copies only")
			nested = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeScans(flat, nested), nil
}

// flat prefers the store's ordered query and falls back to an unordered one,
// for instance when the sort index is missing.
func (r *Reader) flat(ctx context.Context, eventID string) ([]docstore.Snapshot, error) {
	q := docstore.Where("listId", eventID)
	snaps, err := r.store.Find(ctx, ScansCollection, q.OrderDesc("timestamp"))
	if err == nil {
		return snaps, nil
	}
	r.log.Warn().Err(err).Str("eventId", eventID).Msg("ordered scan query failed, sorting in memory")
	metrics.ReadFallbacks.Inc()
	snaps, err = r.store.Find(ctx, ScansCollection, q)
	if err != nil {
		return nil, storeErr("Failed to get scan records", err)
	}
	return snaps, nil
}

func mergeScans(flat, nested []docstore.Snapshot) []docstore.Document {
	byID := make(map[string]docstore.Document, len(flat)+len(nested))
	order := make([]string, 0, len(flat)+len(nested))
	for _, s := range nested {
		if _, seen := byID[s.ID]; !seen {
			order = append(order, s.ID)
		}
		byID[s.ID] = s.WithID()
	}
	for _, s := range flat {
		if _, seen := byID[s.ID]; !seen {
			order = append(order, s.ID)
		}
		byID[s.ID] = s.WithID()
	}
	out := make([]docstore.Document, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// SortScans orders scans by timestamp, newest first, then by id. Numeric,
// string and store-native timestamps compare as epoch milliseconds.
func SortScans(scans []docstore.Document) {
	sort.SliceStable(scans, func(i, j int) bool {
		ti, tj := ToMillis(scans[i]["timestamp"]), ToMillis(scans[j]["timestamp"])
		if ti != tj {
			return ti > tj
		}
		return asString(scans[i]["id"]) < asString(scans[j]["id"])
	})
}

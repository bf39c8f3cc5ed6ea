package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"checkin/internal/docstore"
	"checkin/internal/metrics"
	"checkin/internal/queue"
)

// DefaultSymbology is stored when a scan does not name its barcode type.
const DefaultSymbology = "QR_CODE"

// Publisher hands repair messages to the repair queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// RecordResult is returned for a stored scan.
type RecordResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	ListID  string `json:"listId"`
	EventID string `json:"eventId"`
}

// RepairRequest carries both representations of a scan whose dual write
// did not complete.
type RepairRequest struct {
	ScanID  string            `json:"scanId"`
	EventID string            `json:"eventId"`
	Nested  docstore.Document `json:"nested"`
	Flat    docstore.Document `json:"flat"`
	Failed  []string          `json:"failed"`
}

// Recorder writes scans to the nested per-event log and the flat index.
type Recorder struct {
	store    docstore.Store
	resolver *Resolver
	students *Students
	repairs  Publisher
	retries  int
	backoff  time.Duration
	log      zerolog.Logger
}

// NewRecorder creates a recorder. Each representation is written up to
// retries+1 times; repairs may be nil.
func NewRecorder(store docstore.Store, resolver *Resolver, students *Students, repairs Publisher, retries int, log zerolog.Logger) *Recorder {
	if retries < 0 {
		retries = 0
	}
	return &Recorder{
		store:    store,
		resolver: resolver,
		students: students,
		repairs:  repairs,
		retries:  retries,
		backoff:  50 * time.Millisecond,
		log:      log.With().Str("component", "recorder").Logger(),
	}
}

// Record resolves the scan's event, enriches it from the roster and sets both
// representations under the scan id. Replays overwrite.
func (r *Recorder) Record(ctx context.Context, scan docstore.Document) (RecordResult, error) {
	scanID := asString(scan["id"])
	ref := asString(scan["eventId"])
	if scanID == "" || ref == "" {
		return RecordResult{}, validationf("Scan record must have id and eventId")
	}

	eventID, err := r.resolver.Resolve(ctx, ref)
	if err != nil {
		return RecordResult{}, err
	}

	code := asString(scan["studentId"])
	if code == "" {
		code = asString(scan["code"])
	}
	student, err := r.students.Lookup(ctx, code)
	if err != nil {
		r.log.Warn().Err(err).Str("scanId", scanID).Str("code", code).Msg("student lookup failed, storing scan without enrichment")
		student = nil
	}

	nested, flat := BuildRecords(scan, eventID, student)
	log := r.log.With().Str("scanId", scanID).Str("eventId", eventID).Logger()

	var failed []string
	var errs []error
	if err := r.write(ctx, NestedScans(eventID), scanID, nested); err != nil {
		metrics.WriteFailures.WithLabelValues("nested").Inc()
		failed = append(failed, "nested")
		errs = append(errs, err)
	}
	if err := r.write(ctx, ScansCollection, scanID, flat); err != nil {
		metrics.WriteFailures.WithLabelValues("flat").Inc()
		failed = append(failed, "flat")
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		log.Error().Err(errors.Join(errs...)).Strs("failed", failed).Msg("scan write incomplete")
		r.enqueueRepair(ctx, RepairRequest{ScanID: scanID, EventID: eventID, Nested: nested, Flat: flat, Failed: failed}, log)
		return RecordResult{}, writeErr("Failed to add scan record", errors.Join(errs...))
	}

	metrics.ScansRecorded.Inc()
	log.Info().Bool("enriched", student != nil).Msg("scan recorded")
	return RecordResult{Success: true, ID: scanID, ListID: eventID, EventID: eventID}, nil
}

func (r *Recorder) write(ctx context.Context, collection, id string, doc docstore.Document) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * r.backoff):
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			}
		}
		if err = r.store.Set(ctx, collection, id, doc); err == nil {
			return nil
		}
		r.log.Debug().Err(err).Str("collection", collection).Str("scanId", id).Int("attempt", attempt+1).Msg("scan write failed")
	}
	return err
}

func (r *Recorder) enqueueRepair(ctx context.Context, req RepairRequest, log zerolog.Logger) {
	if r.repairs == nil {
		log.Error().Msg("no repair queue configured, representations may diverge")
		return
	}
	body, err := json.Marshal(req)
	if err != nil {
		log.Error().Err(err).Msg("encode repair request")
		return
	}
	// the repair must outlive a cancelled request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.repairs.Publish(ctx, queue.Message{Type: queue.TypeRepair, Body: body}); err != nil {
		log.Error().Err(err).Msg("publish repair request")
		return
	}
	metrics.RepairsEnqueued.Inc()
	log.Warn().Msg("repair request enqueued")
}

// BuildRecords derives the nested and flat documents for a scan stored under
// eventID. The nested copy keeps every submitted field and the original
// timestamp; the flat copy holds the indexed fields with the timestamp in
// epoch milliseconds. Both carry identical enrichment.
func BuildRecords(scan docstore.Document, eventID string, student *Student) (nested, flat docstore.Document) {
	code := asString(scan["studentId"])
	if code == "" {
		code = asString(scan["code"])
	}

	shared := docstore.Document{
		"eventId":   eventID,
		"symbology": DefaultSymbology,
		"studentId": code,
		"deviceId":  "",
		"synced":    boolField(scan, "synced"),
		"processed": boolField(scan, "processed"),
		"verified":  boolField(scan, "verified"),
		"firstName": "",
		"lastName":  "",
		"email":     "",
		"fullName":  "",
		"metadata":  mapField(scan, "metadata"),
	}
	if s := asString(scan["symbology"]); s != "" {
		shared["symbology"] = s
	}
	if d := asString(scan["deviceId"]); d != "" {
		shared["deviceId"] = d
	}
	if student != nil {
		shared["processed"] = true
		shared["verified"] = true
		shared["firstName"] = student.FirstName
		shared["lastName"] = student.LastName
		shared["email"] = student.Email
		shared["fullName"] = student.FullName()
	}

	ts, hasTS := scan["timestamp"]
	if !hasTS || ts == nil {
		ts = int64(Now())
	}

	nested = make(docstore.Document, len(scan)+len(shared))
	for k, v := range scan {
		nested[k] = v
	}
	delete(nested, "id")
	for k, v := range shared {
		nested[k] = v
	}
	nested["timestamp"] = ts
	if _, ok := scan["listId"]; ok {
		nested["listId"] = eventID
	}

	flat = make(docstore.Document, len(shared)+3)
	for k, v := range shared {
		flat[k] = v
	}
	flat["listId"] = eventID
	flat["code"] = asString(scan["code"])
	flat["timestamp"] = int64(ToMillis(ts))
	return nested, flat
}

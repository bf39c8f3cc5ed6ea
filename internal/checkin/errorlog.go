package checkin

import (
	"context"

	"github.com/rs/zerolog"

	"checkin/internal/docstore"
)

// ErrorLog stores error reports sent by capture devices.
type ErrorLog struct {
	store docstore.Store
	log   zerolog.Logger
}

// NewErrorLog creates an error log.
func NewErrorLog(store docstore.Store, log zerolog.Logger) *ErrorLog {
	return &ErrorLog{store: store, log: log.With().Str("component", "errorlog").Logger()}
}

// Record stores the payload under a generated id with the server time,
// which replaces any client supplied timestamp.
func (l *ErrorLog) Record(ctx context.Context, payload docstore.Document) (string, error) {
	doc := make(docstore.Document, len(payload)+1)
	for k, v := range payload {
		doc[k] = v
	}
	doc["timestamp"] = int64(Now())
	id, err := l.store.Add(ctx, ErrorsCollection, doc)
	if err != nil {
		return "", storeErr("Failed to add error record", err)
	}
	l.log.Info().Str("errorId", id).Msg("client error recorded")
	return id, nil
}

package checkin

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; the HTTP layer maps each
// kind to a status code.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store failure")
	ErrWrite      = errors.New("write failed")
)

// kindError carries a client-facing message and unwraps to its kind.
type kindError struct {
	kind error
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() []error {
	if e.err != nil {
		return []error{e.kind, e.err}
	}
	return []error{e.kind}
}

func validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func storeErr(op string, err error) error {
	return &kindError{kind: ErrStore, msg: op, err: err}
}

func writeErr(op string, err error) error {
	return &kindError{kind: ErrWrite, msg: op, err: err}
}

// ConflictError reports a duplicate unique key.
type ConflictError struct {
	Field string
	Value any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Event number %v already exists", e.Value)
}

// Is makes ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ItemError is one failed item of a bulk operation.
type ItemError struct {
	RecordID string `json:"recordId"`
	Error    string `json:"error"`
}

package checkin

import (
	"context"
	"strings"

	"checkin/internal/docstore"
)

// Student is a roster entry.
type Student struct {
	ID             string `json:"id"`
	StudentID      string `json:"studentId"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	PhotoURL       string `json:"photoUrl,omitempty"`
	HasPhoto       bool   `json:"hasPhoto,omitempty"`
	PhotoCheckedAt Millis `json:"photoCheckedAt,omitempty"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Students reads the roster. It never writes student records.
type Students struct {
	store docstore.Store
}

// NewStudents creates a roster reader.
func NewStudents(store docstore.Store) *Students {
	return &Students{store: store}
}

// Lookup finds the student whose studentId equals code. A missing student
// is (nil, nil).
func (s *Students) Lookup(ctx context.Context, code string) (*Student, error) {
	if code == "" {
		return nil, nil
	}
	snaps, err := s.store.Find(ctx, StudentsCollection, docstore.Where("studentId", code).Take(1))
	if err != nil {
		return nil, storeErr("lookup student "+code, err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	st := StudentFromSnapshot(snaps[0])
	return &st, nil
}

// Directory loads the whole roster keyed by studentId, for bulk enrichment.
func (s *Students) Directory(ctx context.Context) (map[string]Student, error) {
	snaps, err := s.store.All(ctx, StudentsCollection)
	if err != nil {
		return nil, storeErr("load students", err)
	}
	dir := make(map[string]Student, len(snaps))
	for _, snap := range snaps {
		st := StudentFromSnapshot(snap)
		if st.StudentID == "" {
			continue
		}
		dir[st.StudentID] = st
	}
	return dir, nil
}

// List returns every student document.
func (s *Students) List(ctx context.Context) ([]docstore.Document, error) {
	snaps, err := s.store.All(ctx, StudentsCollection)
	if err != nil {
		return nil, storeErr("list students", err)
	}
	out := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.WithID())
	}
	return out, nil
}

// Get returns the student document with the given roster id.
func (s *Students) Get(ctx context.Context, studentID string) (docstore.Document, error) {
	if studentID == "" {
		return nil, validationf("studentId is required")
	}
	snaps, err := s.store.Find(ctx, StudentsCollection, docstore.Where("studentId", studentID).Take(1))
	if err != nil {
		return nil, storeErr("get student "+studentID, err)
	}
	if len(snaps) == 0 {
		return nil, notFoundf("Student not found")
	}
	return snaps[0].WithID(), nil
}

// StudentFromSnapshot reads the roster fields of a student document. Fields
// of unexpected types read as their zero value, so a malformed unrelated
// field never hides a roster match.
func StudentFromSnapshot(snap docstore.Snapshot) Student {
	d := snap.Data
	return Student{
		ID:             snap.ID,
		StudentID:      asString(d["studentId"]),
		FirstName:      asString(d["firstName"]),
		LastName:       asString(d["lastName"]),
		Email:          asString(d["email"]),
		PhotoURL:       asString(d["photoUrl"]),
		HasPhoto:       boolField(d, "hasPhoto"),
		PhotoCheckedAt: ToMillis(d["photoCheckedAt"]),
	}
}

// Package photos links roster entries to their Cloudinary photos, stored as
// "{studentId}-photo" in the configured folder.
package photos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"checkin/internal/checkin"
	"checkin/internal/cloudinary"
	"checkin/internal/docstore"
)

// ImageStore is the subset of the Cloudinary client the checker uses.
type ImageStore interface {
	PublicID(name string) string
	Resource(ctx context.Context, publicID string) (*cloudinary.Resource, error)
	UploadBase64(ctx context.Context, data, name string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, filename, name string) (*cloudinary.UploadResult, error)
}

// Summary aggregates a photo check run.
type Summary struct {
	TotalStudents  int    `json:"totalStudents"`
	PhotosFound    int    `json:"photosFound"`
	PhotosNotFound int    `json:"photosNotFound"`
	RecordsUpdated int    `json:"recordsUpdated"`
	Timestamp      string `json:"timestamp"`
}

// Result is the outcome for one student.
type Result struct {
	StudentID        string `json:"studentId"`
	Name             string `json:"name"`
	HasPhoto         bool   `json:"hasPhoto"`
	ExpectedFileName string `json:"expectedFileName"`
	PhotoURL         string `json:"photoUrl,omitempty"`
}

// Report is returned by Check. Results is only filled when details are
// requested.
type Report struct {
	Success bool     `json:"success"`
	Summary Summary  `json:"summary"`
	Results []Result `json:"results,omitempty"`
}

// Checker verifies student photos and records the outcome on the roster.
type Checker struct {
	store       docstore.Store
	images      ImageStore
	concurrency int
	log         zerolog.Logger
	now         func() time.Time
}

// NewChecker creates a photo checker.
func NewChecker(store docstore.Store, images ImageStore, log zerolog.Logger) *Checker {
	return &Checker{
		store:       store,
		images:      images,
		concurrency: 8,
		log:         log.With().Str("component", "photos").Logger(),
		now:         time.Now,
	}
}

// PhotoName is the image name expected for a student.
func PhotoName(studentID string) string {
	return studentID + "-photo"
}

// Check looks up every student's photo and updates hasPhoto, photoUrl and
// photoCheckedAt on records whose photo state changed.
func (c *Checker) Check(ctx context.Context, includeDetails bool) (Report, error) {
	snaps, err := c.store.All(ctx, checkin.StudentsCollection)
	if err != nil {
		return Report{}, fmt.Errorf("load students: %w", err)
	}

	results := make([]Result, len(snaps))
	changed := make([]bool, len(snaps))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, snap := range snaps {
		st := checkin.StudentFromSnapshot(snap)
		if st.StudentID == "" {
			results[i] = Result{StudentID: st.StudentID, Name: st.FullName()}
			continue
		}
		i := i // per-iteration copy; go directive is 1.21 (pre-loopvar)
		g.Go(func() error {
			res, err := c.images.Resource(gctx, c.images.PublicID(PhotoName(st.StudentID)))
			r := Result{
				StudentID:        st.StudentID,
				Name:             st.FullName(),
				ExpectedFileName: PhotoName(st.StudentID) + ".jpg",
			}
			switch {
			case errors.Is(err, cloudinary.ErrNotFound):
			case err != nil:
				return fmt.Errorf("look up photo for %s: %w", st.StudentID, err)
			default:
				r.HasPhoto = true
				r.PhotoURL = res.SecureURL
			}
			mu.Lock()
			results[i] = r
			changed[i] = r.HasPhoto != st.HasPhoto || r.PhotoURL != st.PhotoURL
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	now := c.now()
	summary := Summary{TotalStudents: len(snaps), Timestamp: now.UTC().Format(time.RFC3339)}
	batch := c.store.Batch()
	for i, r := range results {
		if r.HasPhoto {
			summary.PhotosFound++
		} else {
			summary.PhotosNotFound++
		}
		if changed[i] {
			batch.Update(checkin.StudentsCollection, snaps[i].ID, docstore.Document{
				"hasPhoto":       r.HasPhoto,
				"photoUrl":       r.PhotoURL,
				"photoCheckedAt": now.UnixMilli(),
			})
		}
	}
	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			return Report{}, fmt.Errorf("update students: %w", err)
		}
	}
	summary.RecordsUpdated = batch.Len()

	c.log.Info().
		Int("students", summary.TotalStudents).
		Int("found", summary.PhotosFound).
		Int("updated", summary.RecordsUpdated).
		Msg("photo check finished")

	report := Report{Success: true, Summary: summary}
	if includeDetails {
		report.Results = results
	}
	return report, nil
}

// Upload stores a student's photo and marks the roster entry when it exists.
// Exactly one of dataURL or file must be set.
func (c *Checker) Upload(ctx context.Context, studentID, dataURL string, file []byte, filename string) (*cloudinary.UploadResult, error) {
	if studentID == "" {
		return nil, errors.New("studentId is required")
	}
	var (
		res *cloudinary.UploadResult
		err error
	)
	if file != nil {
		res, err = c.images.UploadBytes(ctx, file, filename, PhotoName(studentID))
	} else {
		res, err = c.images.UploadBase64(ctx, dataURL, PhotoName(studentID))
	}
	if err != nil {
		return nil, err
	}

	snaps, err := c.store.Find(ctx, checkin.StudentsCollection, docstore.Where("studentId", studentID).Take(1))
	if err != nil {
		return nil, fmt.Errorf("find student %s: %w", studentID, err)
	}
	if len(snaps) > 0 {
		err := c.store.Update(ctx, checkin.StudentsCollection, snaps[0].ID, docstore.Document{
			"hasPhoto":       true,
			"photoUrl":       res.SecureURL,
			"photoCheckedAt": c.now().UnixMilli(),
		})
		if err != nil {
			return nil, fmt.Errorf("update student %s: %w", studentID, err)
		}
	}
	c.log.Info().Str("studentId", studentID).Str("publicId", res.PublicID).Bool("linked", len(snaps) > 0).Msg("photo uploaded")
	return res, nil
}

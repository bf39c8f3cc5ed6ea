package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"checkin/internal/auth"
	"checkin/internal/checkin"
	"checkin/internal/docstore"
)

const maxPhotoBytes = 10 << 20

func (h *handler) listEvents(c *gin.Context) {
	events, err := h.svc.Events.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get events")
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *handler) listStudents(c *gin.Context) {
	students, err := h.svc.Students.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get students")
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *handler) getStudent(c *gin.Context) {
	student, err := h.svc.Students.Get(c.Request.Context(), strings.TrimSpace(c.Query("studentId")))
	if err != nil {
		h.fail(c, err, "Failed to get student")
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *handler) listScans(c *gin.Context) {
	ref := strings.TrimSpace(c.Query("eventNumber"))
	if ref == "" {
		ref = strings.TrimSpace(c.Query("eventId"))
	}
	scans, err := h.svc.Reader.List(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, err, "Failed to get scan records")
		return
	}
	c.JSON(http.StatusOK, scans)
}

func (h *handler) recordScan(c *gin.Context) {
	var body docstore.Document
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.svc.Recorder.Record(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err, "Failed to add scan record")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) recordError(c *gin.Context) {
	var body docstore.Document
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	if _, err := h.svc.ErrorLog.Record(c.Request.Context(), body); err != nil {
		h.fail(c, err, "Failed to add error record")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handler) createEvent(c *gin.Context) {
	var body docstore.Document
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	event, err := h.svc.Events.Create(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err, "Failed to create event")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"event":   event,
		"message": "Event created successfully",
	})
}

func (h *handler) updateEvent(c *gin.Context) {
	var body docstore.Document
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	event, err := h.svc.Events.Update(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err, "Failed to update event")
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *handler) deleteScan(c *gin.Context) {
	var req struct {
		ScanID  any `json:"scanId"`
		EventID any `json:"eventId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.svc.Deleter.Delete(c.Request.Context(), checkin.AsString(req.ScanID), checkin.AsString(req.EventID))
	if err != nil {
		h.fail(c, err, "Failed to delete scan record")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) bulkDeleteScans(c *gin.Context) {
	var req struct {
		RecordIDs []string `json:"recordIds" binding:"max=500"`
		EventID   any      `json:"eventId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.log.Info().Str("operator", auth.Operator(c)).Int("records", len(req.RecordIDs)).Msg("bulk delete requested")
	res, err := h.svc.Deleter.BulkDelete(c.Request.Context(), req.RecordIDs, checkin.AsString(req.EventID))
	if err != nil {
		h.fail(c, err, "Failed to delete scan records")
		return
	}
	c.JSON(http.StatusOK, res)
}

type eventNumberRequest struct {
	EventNumber any `json:"eventNumber"`
}

func (h *handler) migrateScans(c *gin.Context) {
	var req eventNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.log.Info().Str("operator", auth.Operator(c)).Interface("eventNumber", req.EventNumber).Msg("migration requested")
	res, err := h.svc.Maintenance.Migrate(c.Request.Context(), checkin.AsString(req.EventNumber))
	if err != nil {
		h.fail(c, err, "Failed to migrate scan records")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) enrichScans(c *gin.Context) {
	var req eventNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.log.Info().Str("operator", auth.Operator(c)).Interface("eventNumber", req.EventNumber).Msg("enrichment requested")
	res, err := h.svc.Maintenance.Enrich(c.Request.Context(), checkin.AsString(req.EventNumber))
	if err != nil {
		h.fail(c, err, "Failed to enrich scan records")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) deleteTestEvent(c *gin.Context) {
	if err := h.svc.Events.DeleteTestEvent(c.Request.Context()); err != nil {
		h.fail(c, err, "Failed to delete test event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test event deleted"})
}

func (h *handler) checkPhotos(c *gin.Context) {
	if h.svc.Photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Photo storage is not configured"})
		return
	}
	report, err := h.svc.Photos.Check(c.Request.Context(), c.Query("includeDetails") == "true")
	if err != nil {
		h.log.Error().Err(err).Msg("photo check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to check student photos"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) uploadPhoto(c *gin.Context) {
	if h.svc.Photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Photo storage is not configured"})
		return
	}

	var (
		studentID, dataURL, filename string
		file                         []byte
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		studentID = strings.TrimSpace(c.PostForm("studentId"))
		f, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer f.Close()
		file, err = io.ReadAll(io.LimitReader(f, maxPhotoBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		filename = header.Filename
	} else {
		var body struct {
			StudentID string `json:"studentId" binding:"required"`
			Data      string `json:"data" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, err)
			return
		}
		studentID, dataURL = strings.TrimSpace(body.StudentID), body.Data
	}
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "studentId is required"})
		return
	}

	res, err := h.svc.Photos.Upload(c.Request.Context(), studentID, dataURL, file, filename)
	if err != nil {
		h.log.Error().Err(err).Str("studentId", studentID).Msg("photo upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"studentId": studentID,
		"url":       res.SecureURL,
		"publicId":  res.PublicID,
	})
}

package reportclient

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{
  "success": true,
  "summary": {"totalStudents": 2, "photosFound": 1, "photosNotFound": 1, "recordsUpdated": 1, "timestamp": "2025-09-01T12:00:00Z"},
  "results": [
    {"studentId": "1", "name": "Ana Lee", "hasPhoto": true, "expectedFileName": "1-photo.jpg"},
    {"studentId": "2", "name": "Bo Kim", "hasPhoto": false, "expectedFileName": "2-photo.jpg"}
  ]
}`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New("http://checkin.local/", "tok", 5*time.Second)
	httpmock.ActivateNonDefault(c.HTTP)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestCheckPhotosWithDetails(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, "http://checkin.local/checkStudentPhotos", "includeDetails=true",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK, okBody), nil
		})

	resp, err := c.CheckPhotos(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Summary.TotalStudents)
	require.Len(t, resp.Results, 2)

	var out bytes.Buffer
	WriteReport(&out, resp, true)
	text := out.String()
	assert.Contains(t, text, "Total students: 2")
	assert.Contains(t, text, "Students WITH photos (1):")
	assert.Contains(t, text, "2 - Bo Kim (expected: 2-photo.jpg)")
	assert.Contains(t, text, "Tips:")
}

func TestCheckPhotosFailure(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://checkin.local/checkStudentPhotos",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `{"error":"Photo storage is not configured"}`))

	_, err := c.CheckPhotos(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Photo storage is not configured")
}

func TestCheckPhotosUnsuccessfulBody(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://checkin.local/checkStudentPhotos",
		httpmock.NewStringResponder(http.StatusOK, `{"success":false}`))

	_, err := c.CheckPhotos(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown error")
}

func TestCheckPhotosBadJSON(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://checkin.local/checkStudentPhotos",
		httpmock.NewStringResponder(http.StatusOK, `<html>`))

	_, err := c.CheckPhotos(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestWriteReportWithoutDetails(t *testing.T) {
	var out bytes.Buffer
	WriteReport(&out, &Response{}, false)
	assert.NotContains(t, out.String(), "Detailed Results")
}

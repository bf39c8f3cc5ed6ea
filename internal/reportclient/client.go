// Package reportclient calls the photo check endpoint and renders its
// report for operators.
package reportclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkin/internal/photos"
)

// Response is the body returned by the photo check endpoint.
type Response struct {
	photos.Report
	Error string `json:"error,omitempty"`
}

// Client calls the check-in API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with configurable timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CheckPhotos issues one GET to /checkStudentPhotos. A report with
// success=false is returned as an error.
func (c *Client) CheckPhotos(ctx context.Context, includeDetails bool) (*Response, error) {
	endpoint := c.BaseURL + "/checkStudentPhotos"
	if includeDetails {
		endpoint += "?" + url.Values{"includeDetails": {"true"}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("photo check request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.StatusCode >= 300 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return &out, fmt.Errorf("photo check failed (%s): %s", resp.Status, msg)
	}
	return &out, nil
}

// WriteReport prints the summary, the per-student lists when present, and
// operator tips.
func WriteReport(w io.Writer, r *Response, details bool) {
	s := r.Summary
	fmt.Fprintln(w, "Photo check completed successfully!")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "   Total students: %d\n", s.TotalStudents)
	fmt.Fprintf(w, "   Photos found: %d\n", s.PhotosFound)
	fmt.Fprintf(w, "   Photos not found: %d\n", s.PhotosNotFound)
	fmt.Fprintf(w, "   Records updated: %d\n", s.RecordsUpdated)
	fmt.Fprintf(w, "   Timestamp: %s\n\n", s.Timestamp)

	if details && len(r.Results) > 0 {
		var with, without []photos.Result
		for _, res := range r.Results {
			if res.HasPhoto {
				with = append(with, res)
			} else {
				without = append(without, res)
			}
		}
		fmt.Fprintln(w, "Detailed Results:")
		fmt.Fprintln(w)
		if len(with) > 0 {
			fmt.Fprintf(w, "Students WITH photos (%d):\n", len(with))
			for _, res := range with {
				fmt.Fprintf(w, "   %s - %s\n", res.StudentID, res.Name)
			}
			fmt.Fprintln(w)
		}
		if len(without) > 0 {
			fmt.Fprintf(w, "Students WITHOUT photos (%d):\n", len(without))
			for _, res := range without {
				fmt.Fprintf(w, "   %s - %s (expected: %s)\n", res.StudentID, res.Name, res.ExpectedFileName)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w, "Tips:")
	fmt.Fprintln(w, "   - Upload photos named {StudentID}-photo to the photo folder")
	fmt.Fprintln(w, "   - Photos are linked to student records automatically")
	fmt.Fprintln(w, "   - Filter on hasPhoto in the admin portal to find students without photos")
	fmt.Fprintln(w, "   - Run this command again after uploading new photos")
}

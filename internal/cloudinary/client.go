package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Cloudinary REST endpoint.
const DefaultBaseURL = "https://api.cloudinary.com/v1_1"

// ErrNotFound is returned when a resource does not exist.
var ErrNotFound = errors.New("cloudinary: resource not found")

// Client uploads and looks up images using the Cloudinary REST API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   DefaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

// Resource is an uploaded image as reported by the Admin API.
type Resource struct {
	PublicID  string    `json:"public_id"`
	SecureURL string    `json:"secure_url"`
	Format    string    `json:"format"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicID places name inside the configured folder.
func (c *Client) PublicID(name string) string {
	if c.Folder == "" {
		return name
	}
	return strings.TrimSuffix(c.Folder, "/") + "/" + name
}

// UploadBase64 uploads a data URL ("data:image/jpeg;base64,...") or raw
// base64 image under name, replacing any previous image with that name.
func (c *Client) UploadBase64(ctx context.Context, data, name string) (*UploadResult, error) {
	return c.upload(ctx, name, func(w *multipart.Writer) error {
		return w.WriteField("file", data)
	})
}

// UploadBytes uploads raw image bytes under name.
func (c *Client) UploadBytes(ctx context.Context, data []byte, filename, name string) (*UploadResult, error) {
	return c.upload(ctx, name, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return fmt.Errorf("cloudinary: create form file failed: %w", err)
		}
		if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("cloudinary: write file failed: %w", err)
		}
		return nil
	})
}

func (c *Client) upload(ctx context.Context, name string, writeFile func(*multipart.Writer) error) (*UploadResult, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if name != "" {
		params["public_id"] = c.PublicID(name)
		params["overwrite"] = "true"
	} else if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	if err := writeFile(w); err != nil {
		return nil, err
	}
	w.Close()

	endpoint := fmt.Sprintf("%s/%s/image/upload", c.BaseURL, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Resource looks up an uploaded image by public id. A missing image is
// ErrNotFound.
func (c *Client) Resource(ctx context.Context, publicID string) (*Resource, error) {
	endpoint := fmt.Sprintf("%s/%s/resources/image/upload/%s", c.BaseURL, c.CloudName, escapePath(publicID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.SetBasicAuth(c.APIKey, c.APISecret)

	var res Resource
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudinary: %s failed (%d): %s", req.Method, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return nil
}

func escapePath(publicID string) string {
	parts := strings.Split(publicID, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// sign computes the Cloudinary API signature from the given params.
// api_key and file are excluded from the signature.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/cochaviz/apkforge/internal/archive"
	"github.com/cochaviz/apkforge/internal/build"
)

// StatusError is returned when the daemon answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon request failed: %s", http.StatusText(e.Code))
	}
	return fmt.Sprintf("daemon request failed (%d): %s", e.Code, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient talks to the daemon at baseURL. token is sent as a bearer token
// when non-empty.
func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAddress
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &StatusError{Code: resp.StatusCode, Message: failure.Error}
	}

	if response == nil {
		return nil
	}
	if w, ok := response.(io.Writer); ok {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, RouteHealth, "", nil, nil)
}

func (c *Client) Status(ctx context.Context) (build.Snapshot, error) {
	var snapshot build.Snapshot
	if err := c.send(ctx, http.MethodGet, RouteBuild, "", nil, &snapshot); err != nil {
		return build.Snapshot{}, err
	}
	return snapshot, nil
}

// Start submits a build. A conflict with a running build surfaces as a
// *StatusError with code 409.
func (c *Client) Start(ctx context.Context, req StartRequest) (build.Snapshot, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := map[string]string{
		FieldAppName:     req.AppName,
		FieldPackageID:   req.PackageID,
		FieldEnableAdMob: strconv.FormatBool(req.EnableAdMob),
		FieldAdMobID:     req.AdMobID,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return build.Snapshot{}, fmt.Errorf("encode %s: %w", name, err)
		}
	}
	if err := writeFormFile(form, FieldArchive, req.Archive); err != nil {
		return build.Snapshot{}, err
	}
	if err := writeFormFile(form, FieldIcon, req.Icon); err != nil {
		return build.Snapshot{}, err
	}
	if err := form.Close(); err != nil {
		return build.Snapshot{}, fmt.Errorf("encode form: %w", err)
	}

	var snapshot build.Snapshot
	if err := c.send(ctx, http.MethodPost, RouteBuild, form.FormDataContentType(), &body, &snapshot); err != nil {
		return build.Snapshot{}, err
	}
	return snapshot, nil
}

func (c *Client) Cancel(ctx context.Context) (build.Snapshot, error) {
	var snapshot build.Snapshot
	if err := c.send(ctx, http.MethodPost, RouteCancel, "", nil, &snapshot); err != nil {
		return build.Snapshot{}, err
	}
	return snapshot, nil
}

func (c *Client) Clear(ctx context.Context) (build.Snapshot, error) {
	var snapshot build.Snapshot
	if err := c.send(ctx, http.MethodPost, RouteClear, "", nil, &snapshot); err != nil {
		return build.Snapshot{}, err
	}
	return snapshot, nil
}

// DownloadArtifact copies the completed build's payload into w.
func (c *Client) DownloadArtifact(ctx context.Context, w io.Writer) error {
	if w == nil {
		return errors.New("nil writer")
	}
	return c.send(ctx, http.MethodGet, RouteArtifact, "", nil, w)
}

func writeFormFile(form *multipart.Writer, field string, file *archive.File) error {
	if file == nil {
		return nil
	}

	// Parts without a filename are parsed as plain values on the server.
	filename := file.Name
	if filename == "" {
		filename = field
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     field,
		"filename": filename,
	}))
	if file.ContentType != "" {
		header.Set("Content-Type", file.ContentType)
	}

	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	return nil
}

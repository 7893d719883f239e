// Package client is the Go client for the audit service HTTP API. It is what
// the auditctl command and the form wizard submit through.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"auditmgt/models"
	"auditmgt/validation"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
	Details    []validation.FieldError
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Message, validation.Errors(e.Details).Error())
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

// ErrUnreachable wraps transport failures.
var ErrUnreachable = errors.New("audit service unreachable")

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsUnauthorized(err error) bool { return StatusCode(err) == http.StatusUnauthorized }

func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }

// IsConflict reports a failed If-Match precondition.
func IsConflict(err error) bool { return StatusCode(err) == http.StatusPreconditionFailed }

type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8080.
	BaseURL string
	Token   string
	// Timeout bounds JSON calls. Uploads use UploadTimeout.
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration

	mu    sync.RWMutex
	token string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    &http.Client{},
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		token:         cfg.Token,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL is the service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// AuthResult is the register/login answer.
type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates an account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/register", validation.RegisterRequest{
		Name: name, Email: email, Password: password,
	}, &out, nil)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", validation.LoginRequest{
		Email: email, Password: password,
	}, &out, nil)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ListAudits returns the caller's audits, newest first. An empty status
// lists all of them.
func (c *Client) ListAudits(ctx context.Context, status models.Status) ([]models.Audit, error) {
	path := "/api/audits"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Audits []models.Audit `json:"audits"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Audits, nil
}

func (c *Client) CreateAudit(ctx context.Context, req validation.CreateAuditRequest) (*models.Audit, error) {
	var out struct {
		Audit models.Audit `json:"audit"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/audits", req, &out, nil); err != nil {
		return nil, err
	}
	return &out.Audit, nil
}

func (c *Client) GetAudit(ctx context.Context, id string) (*models.Audit, error) {
	var out struct {
		Audit models.Audit `json:"audit"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/audits/"+url.PathEscape(id), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out.Audit, nil
}

// UpdateAudit applies a partial update. A non-nil version makes it
// conditional; a stale version fails with IsConflict.
func (c *Client) UpdateAudit(ctx context.Context, id string, req validation.UpdateAuditRequest, version *int64) (*models.Audit, error) {
	var header http.Header
	if version != nil {
		header = http.Header{"If-Match": {`"` + strconv.FormatInt(*version, 10) + `"`}}
	}
	var out struct {
		Audit models.Audit `json:"audit"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/audits/"+url.PathEscape(id), req, &out, header); err != nil {
		return nil, err
	}
	return &out.Audit, nil
}

func (c *Client) DeleteAudit(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/audits/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) Stats(ctx context.Context) (models.AuditStats, error) {
	var out struct {
		Stats models.AuditStats `json:"stats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/audits/stats", nil, &out, nil)
	return out.Stats, err
}

// Upload sends one file to /api/upload as multipart field "file".
func (c *Client) Upload(ctx context.Context, name, contentType string, body io.Reader) (*models.UploadedFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Success bool                `json:"success"`
		File    models.UploadedFile `json:"file"`
	}
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out.File, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, header http.Header) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string                  `json:"error"`
			Details []validation.FieldError `json:"details"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Details = payload.Details
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, r)
	r.Close()
}

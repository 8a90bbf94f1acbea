package upload

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grovetools/tracker/errors"
)

const (
	DefaultAuthorizeTimeout = 30 * time.Second
	DefaultTransferTimeout  = 60 * time.Second

	maxErrorBody = 4 << 10
)

// AuthorizeRequest asks the authority for a presigned destination.
type AuthorizeRequest struct {
	Kind          string `json:"kind"`
	Key           string `json:"key"`
	FileName      string `json:"fileName"`
	ContentType   string `json:"contentType"`
	ContentLength int64  `json:"contentLength"`
	TenantID      string `json:"tenantId"`
	ProjectID     string `json:"projectId"`
	SessionID     string `json:"sessionId"`
}

// Authorization is a short-lived write grant.
type Authorization struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key,omitempty"`
}

// PutResult is the response of the byte transfer.
type PutResult struct {
	Status int
	Header http.Header
}

// Authority is the remote side of an upload: authorize, then put.
type Authority interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Put(ctx context.Context, uploadURL string, body io.Reader, length int64, contentType string) (*PutResult, error)
}

// HTTPAuthority talks to `POST {endpoint}/uploads/authorize` and PUTs bytes
// to the returned URL. Each leg has its own timeout.
type HTTPAuthority struct {
	endpoint         string
	token            string
	client           *http.Client
	authorizeTimeout time.Duration
	transferTimeout  time.Duration
}

var _ Authority = (*HTTPAuthority)(nil)

// Option configures an HTTPAuthority.
type Option func(*HTTPAuthority)

// WithToken sets the bearer token sent on authorize requests.
func WithToken(token string) Option {
	return func(a *HTTPAuthority) { a.token = token }
}

// WithTimeouts overrides the per-leg timeouts. Zero keeps the default.
func WithTimeouts(authorize, transfer time.Duration) Option {
	return func(a *HTTPAuthority) {
		if authorize > 0 {
			a.authorizeTimeout = authorize
		}
		if transfer > 0 {
			a.transferTimeout = transfer
		}
	}
}

// WithHTTPClient replaces the transport. Redirects are never followed.
func WithHTTPClient(c *http.Client) Option {
	return func(a *HTTPAuthority) { a.client = c }
}

// NewHTTPAuthority creates an authority client for endpoint.
func NewHTTPAuthority(endpoint string, opts ...Option) *HTTPAuthority {
	a := &HTTPAuthority{
		endpoint:         strings.TrimRight(endpoint, "/"),
		client:           &http.Client{},
		authorizeTimeout: DefaultAuthorizeTimeout,
		transferTimeout:  DefaultTransferTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	// A 301 on PUT must surface, not be chased as a GET.
	client := *a.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	a.client = &client
	return a
}

// Authorize requests a presigned upload URL.
func (a *HTTPAuthority) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, a.authorizeTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode authorize request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/uploads/authorize", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid upload endpoint")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err, "authorize", a.authorizeTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.UploadFailed("authorize", resp.StatusCode, readSnippet(resp.Body))
	}

	var auth Authorization
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUploadFailed, "invalid authorize response")
	}
	if auth.UploadURL == "" {
		return nil, errors.New(errors.ErrCodeUploadFailed, "authorize response has no uploadUrl")
	}
	return &auth, nil
}

// Put transfers body to uploadURL. A non-2xx status is returned as an error
// together with the result.
func (a *HTTPAuthority) Put(ctx context.Context, uploadURL string, body io.Reader, length int64, contentType string) (*PutResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.transferTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUploadFailed, "invalid upload URL")
	}
	httpReq.ContentLength = length
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err, "put", a.transferTimeout)
	}
	defer resp.Body.Close()

	result := &PutResult{Status: resp.StatusCode, Header: resp.Header}
	switch {
	case resp.StatusCode == http.StatusMovedPermanently:
		return result, errors.New(errors.ErrCodeUploadRegionMismatch,
			"storage endpoint answered 301; the authorization targets the wrong region").
			WithDetail("status", resp.StatusCode).
			WithDetail("location", resp.Header.Get("Location")).
			WithDetail("body", readSnippet(resp.Body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return result, errors.UploadFailed("put", resp.StatusCode, readSnippet(resp.Body))
	}
	io.Copy(io.Discard, resp.Body)
	return result, nil
}

func transportError(ctx context.Context, err error, stage string, timeout time.Duration) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrCodeUploadTimeout, stage+" timed out").
			WithDetail("stage", stage).
			WithDetail("timeout", timeout.String())
	}
	return errors.Wrap(err, errors.ErrCodeUploadFailed, stage+" request failed").
		WithDetail("stage", stage)
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}

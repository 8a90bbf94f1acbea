// Package upload moves local artifacts to remote object storage in two legs:
// a write authorization from the coordinating API, then a direct PUT.
//
// There is no retry: a failed upload is reported to the caller and the
// artifact stays on local disk.
package upload

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grovetools/tracker/errors"
)

// Content types used for tracker artifacts.
const (
	ContentTypePNG  = "image/png"
	ContentTypeDiff = "text/x-diff"
	ContentTypeJSON = "application/json"
)

// Correlation ids namespace remote artifacts.
type Correlation struct {
	TenantID  string `json:"tenantId"`
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether every id is set. Uploads require all three.
func (c Correlation) Complete() bool {
	return c.TenantID != "" && c.ProjectID != "" && c.SessionID != ""
}

// Result describes a finished upload.
type Result struct {
	RemoteKey string        `json:"remoteKey"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"`
}

// Uploader is the artifact upload contract the engine depends on.
type Uploader interface {
	Upload(ctx context.Context, localPath, logicalKey, contentType string, corr Correlation) (*Result, error)
}

// Client implements Uploader on top of an Authority.
type Client struct {
	authority Authority
}

var _ Uploader = (*Client)(nil)

// New creates an upload Client.
func New(authority Authority) *Client {
	return &Client{authority: authority}
}

// Upload authorizes and transfers localPath. The local file is never removed.
func (c *Client) Upload(ctx context.Context, localPath, logicalKey, contentType string, corr Correlation) (*Result, error) {
	start := time.Now()
	if !corr.Complete() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "upload requires tenant, project and session ids")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUploadFailed, "cannot open artifact").
			WithDetail("path", localPath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUploadFailed, "cannot stat artifact").
			WithDetail("path", localPath)
	}

	auth, err := c.authority.Authorize(ctx, AuthorizeRequest{
		Kind:          KindFor(contentType),
		Key:           logicalKey,
		FileName:      filepath.Base(localPath),
		ContentType:   contentType,
		ContentLength: info.Size(),
		TenantID:      corr.TenantID,
		ProjectID:     corr.ProjectID,
		SessionID:     corr.SessionID,
	})
	if err != nil {
		return nil, err
	}

	put, err := c.authority.Put(ctx, auth.UploadURL, f, info.Size(), contentType)
	if err != nil {
		return nil, err
	}

	return &Result{
		RemoteKey: remoteKey(put, auth.UploadURL),
		Bytes:     info.Size(),
		Duration:  time.Since(start),
	}, nil
}

// KindFor maps a content type to the authority's artifact kind.
func KindFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "screenshot"
	case contentType == ContentTypeDiff:
		return "diff"
	case contentType == ContentTypeJSON:
		return "metadata"
	}
	return "file"
}

// remoteKey prefers the storage request id, falling back to the object path.
func remoteKey(put *PutResult, uploadURL string) string {
	if put != nil && put.Header != nil {
		for _, h := range []string{"x-amz-request-id", "x-request-id"} {
			if v := put.Header.Get(h); v != "" {
				return v
			}
		}
	}
	if u, err := url.Parse(uploadURL); err == nil {
		return strings.TrimPrefix(u.Path, "/")
	}
	return uploadURL
}

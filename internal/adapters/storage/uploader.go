package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// Uploader implements ports.ObjectStore against an S3-compatible HTTP
// object store. Objects are PUT to <endpoint>/<bucket>/<path> and served
// from <publicBase>/<path>.
type Uploader struct {
	endpoint   string
	bucket     string
	publicBase string
	token      string
	client     *http.Client
}

// New creates an Uploader with a 30 second request timeout.
func New(endpoint, bucket, publicBase, token string) *Uploader {
	return &Uploader{
		endpoint:   strings.TrimRight(endpoint, "/"),
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		token:      token,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload stores a single object and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, path string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", u.endpoint, u.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		// Transport failures (DNS, refused, timeout) carry wording the
		// retry classifier recognizes as transient.
		return "", fmt.Errorf("upload %s: network error: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classifyStatus(resp.StatusCode, path, string(body))
	}

	return fmt.Sprintf("%s/%s", u.publicBase, path), nil
}

// classifyStatus maps HTTP failures onto domain errors so the upload
// pipeline can decide whether to retry.
func classifyStatus(status int, path, body string) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("upload %s: %w", path, domain.ErrBucketMissing)
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return fmt.Errorf("upload %s: %w", path, domain.ErrPermissionDenied)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("upload %s: store timeout or overload (status %d): %s", path, status, strings.TrimSpace(body))
	default:
		return fmt.Errorf("upload %s rejected (status %d): %s", path, status, strings.TrimSpace(body))
	}
}

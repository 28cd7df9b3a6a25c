package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/canopylabs/canopy/internal/core/domain"
)

func TestUpload_ReturnsPublicURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := New(srv.URL, "photos", "https://cdn.example.com", "secret")
	url, err := u.Upload(context.Background(), "proj-1/123-leaf.jpg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example.com/proj-1/123-leaf.jpg" {
		t.Errorf("unexpected public URL %q", url)
	}
	if gotPath != "/photos/proj-1/123-leaf.jpg" {
		t.Errorf("unexpected object path %q", gotPath)
	}
}

func TestUpload_MissingBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	u := New(srv.URL, "photos", srv.URL, "")
	_, err := u.Upload(context.Background(), "p/x.jpg", nil)
	if !errors.Is(err, domain.ErrBucketMissing) {
		t.Errorf("expected ErrBucketMissing, got %v", err)
	}
	if domain.IsTransient(err) {
		t.Error("missing bucket must not be retried")
	}
}

func TestUpload_PermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	u := New(srv.URL, "photos", srv.URL, "")
	_, err := u.Upload(context.Background(), "p/x.jpg", nil)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestUpload_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u := New(srv.URL, "photos", srv.URL, "")
	_, err := u.Upload(context.Background(), "p/x.jpg", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsTransient(err) {
		t.Errorf("5xx should be transient, got %v", err)
	}
}

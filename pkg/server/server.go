// Package server implements the S3-compatible HTTP surface over a
// single virtual bucket backed by a storage.Backend.
package server

import (
	"net/http"
	"strings"

	"github.com/wzshiming/s3gw/pkg/storage"
)

// S3Handler serves the S3 API for one virtual bucket. Requests naming
// any other bucket get NoSuchBucket.
type S3Handler struct {
	storage storage.Backend
	bucket  string
}

// NewS3Handler creates a handler serving bucket from the given backend.
func NewS3Handler(backend storage.Backend, bucket string) *S3Handler {
	return &S3Handler{
		storage: backend,
		bucket:  bucket,
	}
}

// ServeHTTP routes all S3 requests.
func (s *S3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(path, "/", 2)

	bucket := parts[0]
	var key string
	if len(parts) > 1 {
		key = parts[1]
	}

	if bucket != s.bucket {
		s.noSuchBucket(w, r)
		return
	}

	if key == "" {
		switch r.Method {
		case http.MethodGet:
			s.handleListObjects(w, r)
		case http.MethodHead:
			s.handleHeadBucket(w, r)
		default:
			s.noSuchBucket(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetObject(w, r, key)
	case http.MethodHead:
		s.handleHeadObject(w, r, key)
	case http.MethodPut:
		s.handlePutObject(w, r, key)
	case http.MethodDelete:
		s.handleDeleteObject(w, r, key)
	default:
		s.noSuchBucket(w, r)
	}
}

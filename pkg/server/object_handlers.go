package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/wzshiming/s3gw/pkg/storage"
)

func objectHeaders(w http.ResponseWriter, info storage.ObjectInfo) {
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("ETag", info.ETag)
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
}

// handleGetObject handles GET /{bucket}/{key}
func (s *S3Handler) handleGetObject(w http.ResponseWriter, r *http.Request, key string) {
	body, info, err := s.storage.GetObject(r.Context(), key)
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	defer body.Close()

	objectHeaders(w, info)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, body)
}

// handleHeadObject handles HEAD /{bucket}/{key}
func (s *S3Handler) handleHeadObject(w http.ResponseWriter, r *http.Request, key string) {
	info, err := s.storage.HeadObject(r.Context(), key)
	if err != nil {
		s.storageError(w, r, err)
		return
	}

	objectHeaders(w, info)
	w.WriteHeader(http.StatusOK)
}

// handlePutObject handles PUT /{bucket}/{key}
func (s *S3Handler) handlePutObject(w http.ResponseWriter, r *http.Request, key string) {
	etag, err := s.storage.PutObject(r.Context(), key, r.Body)
	if err != nil {
		s.storageError(w, r, err)
		return
	}

	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

// handleDeleteObject handles DELETE /{bucket}/{key}
func (s *S3Handler) handleDeleteObject(w http.ResponseWriter, r *http.Request, key string) {
	if err := s.storage.DeleteObject(r.Context(), key); err != nil {
		s.storageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package server

import (
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/wzshiming/s3gw/pkg/storage"
)

// xmlResponse writes an XML response
func (s *S3Handler) xmlResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(data); err != nil {
		return
	}
}

// errorResponse writes an S3 error response
func (s *S3Handler) errorResponse(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	s.xmlResponse(w, Error{
		Code:      code,
		Message:   message,
		RequestId: uuid.NewString(),
	}, status)
}

func (s *S3Handler) noSuchBucket(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, "NoSuchBucket", "The specified bucket does not exist", http.StatusNotFound)
}

// storageError maps a backend failure onto the S3 error taxonomy.
func (s *S3Handler) storageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNoSuchKey):
		s.errorResponse(w, r, "NoSuchKey", "The specified key does not exist", http.StatusNotFound)
	case errors.Is(err, storage.ErrNoSuchBucket):
		s.noSuchBucket(w, r)
	default:
		s.errorResponse(w, r, "InternalError", "We encountered an internal error. Please try again.", http.StatusInternalServerError)
	}
}

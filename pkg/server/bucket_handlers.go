package server

import (
	"net/http"
	"strconv"

	"github.com/wzshiming/s3gw/pkg/storage"
)

// handleHeadBucket handles HEAD /{bucket}
func (s *S3Handler) handleHeadBucket(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.HeadBucket(r.Context()); err != nil {
		s.storageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleListObjects handles GET /{bucket}?list-type=2
func (s *S3Handler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	prefix := query.Get("prefix")

	maxKeys := storage.MaxListKeys
	if raw := query.Get("max-keys"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.errorResponse(w, r, "InvalidArgument", "Invalid max-keys value", http.StatusBadRequest)
			return
		}
		maxKeys = parsed
	}
	maxKeys = storage.ClampMaxKeys(maxKeys)

	objects, err := s.storage.ListObjects(r.Context(), prefix, maxKeys)
	if err != nil {
		s.storageError(w, r, err)
		return
	}

	contents := make([]Object, 0, len(objects))
	for _, obj := range objects {
		contents = append(contents, Object{
			Key:          obj.Key,
			LastModified: obj.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
			ETag:         obj.ETag,
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}

	s.xmlResponse(w, ListBucketResult{
		Name:        s.bucket,
		Prefix:      prefix,
		KeyCount:    len(contents),
		MaxKeys:     maxKeys,
		IsTruncated: false,
		Contents:    contents,
	}, http.StatusOK)
}

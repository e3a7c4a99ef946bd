// Package storage defines the backend contract the gateway replicates
// across, and the concrete memory, bolt and S3 backends.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNoSuchKey    = errors.New("no such key")
	ErrNoSuchBucket = errors.New("no such bucket")
)

// DefaultContentType is assigned to objects stored without an explicit
// content type.
const DefaultContentType = "binary/octet-stream"

// MaxListKeys is the upper bound on a single list page.
const MaxListKeys = 1000

// ObjectInfo contains metadata about an object
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// Backend is the capability set every store implements. The replication
// engine implements it too, so engines can be layered like any other
// backend.
//
// GetObject streams are single-consumption: the caller owns the returned
// ReadCloser and must close it. PutObject consumes the body; a nil error
// means the object is durable and readable on that backend. DeleteObject
// is idempotent: deleting a missing key succeeds.
type Backend interface {
	Name() string
	HeadBucket(ctx context.Context) error
	ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error)
	HeadObject(ctx context.Context, key string) (ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	PutObject(ctx context.Context, key string, body io.Reader) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// ClampMaxKeys bounds a client-supplied max-keys value to [0, MaxListKeys].
func ClampMaxKeys(maxKeys int) int {
	if maxKeys < 0 {
		return 0
	}
	if maxKeys > MaxListKeys {
		return MaxListKeys
	}
	return maxKeys
}

// ContentETag computes the backend-assigned ETag for object content:
// the hex SHA-256 of the bytes, quoted.
func ContentETag(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:]))
}

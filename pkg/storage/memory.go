package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is the in-process reference implementation of Backend.
// Objects live in a map guarded by a single reader-writer lock; reads
// take the shared lock, writes the exclusive one.
type MemoryBackend struct {
	name string

	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data []byte
	info ObjectInfo
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{
		name:    name,
		objects: make(map[string]memObject),
	}
}

func (m *MemoryBackend) Name() string {
	return m.name
}

func (m *MemoryBackend) HeadBucket(ctx context.Context) error {
	return nil
}

func (m *MemoryBackend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	maxKeys = ClampMaxKeys(maxKeys)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		results = append(results, obj.info)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	if len(results) > maxKeys {
		results = results[:maxKeys]
	}
	return results, nil
}

func (m *MemoryBackend) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNoSuchKey
	}
	return obj.info, nil
}

func (m *MemoryBackend) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrNoSuchKey
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info, nil
}

func (m *MemoryBackend) PutObject(ctx context.Context, key string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	etag := ContentETag(data)
	obj := memObject{
		data: data,
		info: ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			ETag:         etag,
			LastModified: time.Now().UTC().Truncate(time.Second),
			ContentType:  DefaultContentType,
		},
	}

	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()

	return etag, nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()

	// Deleting a missing key is a success.
	return nil
}

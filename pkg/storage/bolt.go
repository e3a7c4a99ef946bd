package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltDataBucket = []byte("objects")
	boltMetaBucket = []byte("meta")
)

// BoltBackend is a persistent local backend over a bbolt database file.
// Object bytes and JSON-encoded metadata live in separate bbolt buckets
// under the same key, so metadata reads never touch the blob.
type BoltBackend struct {
	name string
	db   *bolt.DB
}

type boltMeta struct {
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType"`
}

// NewBoltBackend opens (or creates) the database file at path.
func NewBoltBackend(name, path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDataBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boltMetaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltBackend{name: name, db: db}, nil
}

// Close releases the underlying database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func (b *BoltBackend) Name() string {
	return b.name
}

func (b *BoltBackend) HeadBucket(ctx context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(boltDataBucket) == nil {
			return ErrNoSuchBucket
		}
		return nil
	})
}

func (b *BoltBackend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	maxKeys = ClampMaxKeys(maxKeys)

	var results []ObjectInfo
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltMetaBucket).Cursor()
		pfx := []byte(prefix)
		for k, v := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
			if len(results) >= maxKeys {
				break
			}
			var meta boltMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			results = append(results, metaToInfo(string(k), meta))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (b *BoltBackend) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltMetaBucket).Get([]byte(key))
		if raw == nil {
			return ErrNoSuchKey
		}
		var meta boltMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return err
		}
		info = metaToInfo(key, meta)
		return nil
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

func (b *BoltBackend) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	var (
		info ObjectInfo
		data []byte
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltMetaBucket).Get([]byte(key))
		if raw == nil {
			return ErrNoSuchKey
		}
		var meta boltMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return err
		}
		info = metaToInfo(key, meta)

		// Values are only valid inside the transaction; copy out.
		stored := tx.Bucket(boltDataBucket).Get([]byte(key))
		data = make([]byte, len(stored))
		copy(data, stored)
		return nil
	})
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (b *BoltBackend) PutObject(ctx context.Context, key string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	etag := ContentETag(data)
	meta := boltMeta{
		Size:         int64(len(data)),
		ETag:         etag,
		LastModified: time.Now().UTC().Truncate(time.Second),
		ContentType:  DefaultContentType,
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(boltDataBucket).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(boltMetaBucket).Put([]byte(key), rawMeta)
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

func (b *BoltBackend) DeleteObject(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(boltDataBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(boltMetaBucket).Delete([]byte(key))
	})
}

func metaToInfo(key string, meta boltMeta) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         meta.Size,
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
		ContentType:  meta.ContentType,
	}
}

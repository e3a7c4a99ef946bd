package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

// backendFactories lists the locally testable backends so they share one
// behavior suite.
func backendFactories(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend("mem")
		},
		"bolt": func(t *testing.T) Backend {
			path := filepath.Join(t.TempDir(), "objects.db")
			b, err := NewBoltBackend("bolt", path)
			if err != nil {
				t.Fatalf("NewBoltBackend() error = %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
}

func TestBackendPutGetRoundtrip(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)

			content := "hello backend"
			etag, err := b.PutObject(ctx, "dir/file.txt", strings.NewReader(content))
			if err != nil {
				t.Fatalf("PutObject() error = %v", err)
			}
			if want := ContentETag([]byte(content)); etag != want {
				t.Errorf("PutObject() etag = %q, want %q", etag, want)
			}

			body, info, err := b.GetObject(ctx, "dir/file.txt")
			if err != nil {
				t.Fatalf("GetObject() error = %v", err)
			}
			defer body.Close()

			data, err := io.ReadAll(body)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(data) != content {
				t.Errorf("GetObject() body = %q, want %q", data, content)
			}
			if info.Size != int64(len(content)) {
				t.Errorf("GetObject() size = %d, want %d", info.Size, len(content))
			}
			if info.ETag != etag {
				t.Errorf("GetObject() etag = %q, want %q", info.ETag, etag)
			}
			if info.ContentType != DefaultContentType {
				t.Errorf("GetObject() content type = %q, want %q", info.ContentType, DefaultContentType)
			}
		})
	}
}

func TestBackendHeadObject(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)

			if _, err := b.HeadObject(ctx, "missing"); !errors.Is(err, ErrNoSuchKey) {
				t.Fatalf("HeadObject(missing) error = %v, want ErrNoSuchKey", err)
			}

			if _, err := b.PutObject(ctx, "present", strings.NewReader("x")); err != nil {
				t.Fatalf("PutObject() error = %v", err)
			}
			info, err := b.HeadObject(ctx, "present")
			if err != nil {
				t.Fatalf("HeadObject(present) error = %v", err)
			}
			if info.Key != "present" || info.Size != 1 {
				t.Errorf("HeadObject() = %+v, want key %q size 1", info, "present")
			}
		})
	}
}

func TestBackendGetMissingKey(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			if _, _, err := b.GetObject(context.Background(), "missing"); !errors.Is(err, ErrNoSuchKey) {
				t.Fatalf("GetObject(missing) error = %v, want ErrNoSuchKey", err)
			}
		})
	}
}

func TestBackendListObjects(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)

			for _, key := range []string{"logs/a", "logs/b", "data/c"} {
				if _, err := b.PutObject(ctx, key, strings.NewReader(key)); err != nil {
					t.Fatalf("PutObject(%q) error = %v", key, err)
				}
			}

			all, err := b.ListObjects(ctx, "", MaxListKeys)
			if err != nil {
				t.Fatalf("ListObjects() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("ListObjects() returned %d objects, want 3", len(all))
			}
			for i := 1; i < len(all); i++ {
				if all[i-1].Key >= all[i].Key {
					t.Errorf("ListObjects() not sorted: %q before %q", all[i-1].Key, all[i].Key)
				}
			}

			logs, err := b.ListObjects(ctx, "logs/", MaxListKeys)
			if err != nil {
				t.Fatalf("ListObjects(logs/) error = %v", err)
			}
			if len(logs) != 2 {
				t.Fatalf("ListObjects(logs/) returned %d objects, want 2", len(logs))
			}

			limited, err := b.ListObjects(ctx, "", 1)
			if err != nil {
				t.Fatalf("ListObjects(maxKeys=1) error = %v", err)
			}
			if len(limited) != 1 {
				t.Fatalf("ListObjects(maxKeys=1) returned %d objects, want 1", len(limited))
			}
		})
	}
}

func TestBackendDeleteIdempotent(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)

			if _, err := b.PutObject(ctx, "k", strings.NewReader("v")); err != nil {
				t.Fatalf("PutObject() error = %v", err)
			}
			if err := b.DeleteObject(ctx, "k"); err != nil {
				t.Fatalf("DeleteObject() error = %v", err)
			}
			if _, err := b.HeadObject(ctx, "k"); !errors.Is(err, ErrNoSuchKey) {
				t.Fatalf("HeadObject after delete error = %v, want ErrNoSuchKey", err)
			}
			// Deleting again is still a success.
			if err := b.DeleteObject(ctx, "k"); err != nil {
				t.Fatalf("DeleteObject(missing) error = %v", err)
			}
		})
	}
}

func TestBackendOverwrite(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)

			if _, err := b.PutObject(ctx, "k", strings.NewReader("old")); err != nil {
				t.Fatalf("PutObject() error = %v", err)
			}
			etag, err := b.PutObject(ctx, "k", strings.NewReader("new"))
			if err != nil {
				t.Fatalf("PutObject(overwrite) error = %v", err)
			}

			body, info, err := b.GetObject(ctx, "k")
			if err != nil {
				t.Fatalf("GetObject() error = %v", err)
			}
			defer body.Close()
			data, _ := io.ReadAll(body)
			if string(data) != "new" {
				t.Errorf("GetObject() body = %q, want %q", data, "new")
			}
			if info.ETag != etag {
				t.Errorf("GetObject() etag = %q, want %q", info.ETag, etag)
			}
		})
	}
}

func TestClampMaxKeys(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{10, 10},
		{MaxListKeys, MaxListKeys},
		{MaxListKeys + 1, MaxListKeys},
	}
	for _, tt := range tests {
		if got := ClampMaxKeys(tt.in); got != tt.want {
			t.Errorf("ClampMaxKeys(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

package replicate

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/wzshiming/s3gw/pkg/storage"
)

func (e *Engine) PutObject(ctx context.Context, key string, body io.Reader) (string, error) {
	if e.writeMode == MultiSync {
		return e.putMultiSync(ctx, key, body)
	}
	return e.putAsync(ctx, key, body)
}

func (e *Engine) DeleteObject(ctx context.Context, key string) error {
	if e.writeMode == MultiSync {
		return e.deleteMultiSync(ctx, key)
	}
	return e.deleteAsync(ctx, key)
}

// putMultiSync streams the body to every backend at once and requires
// every write to succeed. Writes that already landed are not rolled
// back on failure.
func (e *Engine) putMultiSync(ctx context.Context, key string, body io.Reader) (string, error) {
	readers := newBroadcast(body, len(e.backends))

	etags := make([]string, len(e.backends))
	errs := make([]error, len(e.backends))

	var wg sync.WaitGroup
	for i, b := range e.backends {
		wg.Add(1)
		go func(i int, b storage.Backend, r io.Reader) {
			defer wg.Done()
			etags[i], errs[i] = b.PutObject(ctx, key, r)
			if errs[i] != nil {
				// Keep draining so the broadcast pump never stalls on
				// this consumer's queue.
				io.Copy(io.Discard, r)
			}
		}(i, b, readers[i])
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			e.logger.Error("synchronous write failed",
				"backend", e.backends[i].Name(), "key", key, "error", err)
			return "", fmt.Errorf("put object on %s: %w", e.backends[i].Name(), err)
		}
	}
	return etags[e.primary], nil
}

// putAsync writes to the primary synchronously, then replicates to the
// remaining backends in the background. Replication reads the object
// back from the primary so the response never waits on the replicas.
func (e *Engine) putAsync(ctx context.Context, key string, body io.Reader) (string, error) {
	etag, err := e.Primary().PutObject(ctx, key, body)
	if err != nil {
		return "", fmt.Errorf("put object on %s: %w", e.Primary().Name(), err)
	}

	if len(e.backends) > 1 {
		go e.replicateObject(context.WithoutCancel(ctx), key)
	}
	return etag, nil
}

// replicateObject copies one object from the primary to every other
// backend. Failures are logged, not retried.
func (e *Engine) replicateObject(ctx context.Context, key string) {
	body, _, err := e.Primary().GetObject(ctx, key)
	if err != nil {
		e.logger.Error("replication read-back failed",
			"backend", e.Primary().Name(), "key", key, "error", err)
		return
	}
	defer body.Close()

	replicas := make([]storage.Backend, 0, len(e.backends)-1)
	for i, b := range e.backends {
		if i != e.primary {
			replicas = append(replicas, b)
		}
	}

	readers := newBroadcast(body, len(replicas))

	var wg sync.WaitGroup
	for i, b := range replicas {
		wg.Add(1)
		go func(b storage.Backend, r io.Reader) {
			defer wg.Done()
			if _, err := b.PutObject(ctx, key, r); err != nil {
				e.logger.Error("replication write failed",
					"backend", b.Name(), "key", key, "error", err)
				io.Copy(io.Discard, r)
				return
			}
			e.logger.Debug("replicated object",
				"backend", b.Name(), "key", key)
		}(b, readers[i])
	}
	wg.Wait()
}

func (e *Engine) deleteMultiSync(ctx context.Context, key string) error {
	errs := make([]error, len(e.backends))

	var wg sync.WaitGroup
	for i, b := range e.backends {
		wg.Add(1)
		go func(i int, b storage.Backend) {
			defer wg.Done()
			errs[i] = b.DeleteObject(ctx, key)
		}(i, b)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			e.logger.Error("synchronous delete failed",
				"backend", e.backends[i].Name(), "key", key, "error", err)
			return fmt.Errorf("delete object on %s: %w", e.backends[i].Name(), err)
		}
	}
	return nil
}

func (e *Engine) deleteAsync(ctx context.Context, key string) error {
	if err := e.Primary().DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("delete object on %s: %w", e.Primary().Name(), err)
	}

	if len(e.backends) > 1 {
		go func(ctx context.Context) {
			for i, b := range e.backends {
				if i == e.primary {
					continue
				}
				if err := b.DeleteObject(ctx, key); err != nil {
					e.logger.Error("replication delete failed",
						"backend", b.Name(), "key", key, "error", err)
				}
			}
		}(context.WithoutCancel(ctx))
	}
	return nil
}

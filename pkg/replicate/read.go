package replicate

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/wzshiming/s3gw/pkg/storage"
)

// readOp describes one read operation so every strategy can run it
// generically.
type readOp[T any] struct {
	// name labels the operation in logs and wrapped errors.
	name string
	// run performs the operation against one backend.
	run func(ctx context.Context, b storage.Backend) (T, error)
	// notFound is the sentinel returned when every backend failed
	// transiently; nil for operations without a not-found concept.
	notFound error
	// equal compares two results for AllConsistent.
	equal func(a, b T) bool
	// discard releases an unused result; nil when results hold no
	// resources.
	discard func(v T)
	// attach ties a cancel function to the winning result of a race.
	// When nil, the race cancels the winner's context immediately
	// after run returns.
	attach func(v T, cancel context.CancelFunc) T
}

func (e *Engine) HeadBucket(ctx context.Context) error {
	_, err := readAny(ctx, e, readOp[struct{}]{
		name: "head bucket",
		run: func(ctx context.Context, b storage.Backend) (struct{}, error) {
			return struct{}{}, b.HeadBucket(ctx)
		},
		notFound: storage.ErrNoSuchBucket,
		equal:    func(a, b struct{}) bool { return true },
	})
	return err
}

func (e *Engine) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	return readAny(ctx, e, readOp[[]storage.ObjectInfo]{
		name: "list objects",
		run: func(ctx context.Context, b storage.Backend) ([]storage.ObjectInfo, error) {
			return b.ListObjects(ctx, prefix, maxKeys)
		},
		equal: sameListing,
	})
}

func (e *Engine) HeadObject(ctx context.Context, key string) (storage.ObjectInfo, error) {
	return readAny(ctx, e, readOp[storage.ObjectInfo]{
		name: "head object",
		run: func(ctx context.Context, b storage.Backend) (storage.ObjectInfo, error) {
			return b.HeadObject(ctx, key)
		},
		notFound: storage.ErrNoSuchKey,
		equal: func(a, b storage.ObjectInfo) bool {
			return a.ETag == b.ETag
		},
	})
}

// getResult pairs an object stream with its metadata.
type getResult struct {
	body io.ReadCloser
	info storage.ObjectInfo
}

func (e *Engine) GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	res, err := readAny(ctx, e, readOp[getResult]{
		name: "get object",
		run: func(ctx context.Context, b storage.Backend) (getResult, error) {
			body, info, err := b.GetObject(ctx, key)
			return getResult{body: body, info: info}, err
		},
		notFound: storage.ErrNoSuchKey,
		equal: func(a, b getResult) bool {
			return a.info.ETag == b.info.ETag
		},
		discard: func(v getResult) {
			if v.body != nil {
				v.body.Close()
			}
		},
		attach: func(v getResult, cancel context.CancelFunc) getResult {
			v.body = &cancelOnClose{ReadCloser: v.body, cancel: cancel}
			return v
		},
	})
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return res.body, res.info, nil
}

// cancelOnClose keeps a race winner's context alive until its stream is
// consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// readAny dispatches a read to the strategy selected at construction.
func readAny[T any](ctx context.Context, e *Engine, op readOp[T]) (T, error) {
	switch e.readMode {
	case PrimaryFallback:
		return readFallback(ctx, e, op)
	case BestEffort:
		return readRace(ctx, e, op)
	case AllConsistent:
		return readAll(ctx, e, op)
	default:
		return op.run(ctx, e.Primary())
	}
}

// readFallback tries the primary first, then the remaining backends in
// order. Only the primary's not-found is authoritative; the fallback
// scan keeps going past a replica that does not hold the key.
func readFallback[T any](ctx context.Context, e *Engine, op readOp[T]) (T, error) {
	v, err := op.run(ctx, e.Primary())
	if err == nil || isNotFound(err) {
		return v, err
	}
	e.logger.Warn("primary read failed, falling back",
		"op", op.name, "backend", e.Primary().Name(), "error", err)

	lastErr := err
	for i, b := range e.backends {
		if i == e.primary {
			continue
		}
		v, err := op.run(ctx, b)
		if err == nil {
			return v, nil
		}
		if isNotFound(err) {
			e.logger.Debug("fallback read not found",
				"op", op.name, "backend", b.Name())
			continue
		}
		e.logger.Warn("fallback read failed",
			"op", op.name, "backend", b.Name(), "error", err)
		lastErr = err
	}

	var zero T
	if op.notFound != nil {
		return zero, op.notFound
	}
	return zero, lastErr
}

type raceResult[T any] struct {
	value T
	err   error
	index int
}

// readRace runs the operation on every backend concurrently and takes
// the first definitive answer. Losers are canceled and their results
// discarded.
func readRace[T any](ctx context.Context, e *Engine, op readOp[T]) (T, error) {
	results := make(chan raceResult[T], len(e.backends))
	cancels := make([]context.CancelFunc, len(e.backends))
	for i, b := range e.backends {
		rctx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		go func(i int, b storage.Backend) {
			v, err := op.run(rctx, b)
			results <- raceResult[T]{value: v, err: err, index: i}
		}(i, b)
	}

	var lastErr error
	for received := 1; received <= len(e.backends); received++ {
		res := <-results
		if res.err != nil && !isNotFound(res.err) {
			e.logger.Warn("racing read failed",
				"op", op.name, "backend", e.backends[res.index].Name(), "error", res.err)
			lastErr = res.err
			cancels[res.index]()
			continue
		}

		// Definitive answer; shut the rest down.
		for j, cancel := range cancels {
			if j != res.index {
				cancel()
			}
		}
		go drainRace(results, len(e.backends)-received, op.discard)

		if res.err != nil {
			cancels[res.index]()
			var zero T
			return zero, res.err
		}
		if op.attach != nil {
			return op.attach(res.value, cancels[res.index]), nil
		}
		cancels[res.index]()
		return res.value, nil
	}

	var zero T
	return zero, lastErr
}

func drainRace[T any](results <-chan raceResult[T], pending int, discard func(T)) {
	for i := 0; i < pending; i++ {
		res := <-results
		if res.err == nil && discard != nil {
			discard(res.value)
		}
	}
}

// readAll runs the operation on every backend and requires unanimous,
// matching results. The primary's result is the one returned.
func readAll[T any](ctx context.Context, e *Engine, op readOp[T]) (T, error) {
	values := make([]T, len(e.backends))
	errs := make([]error, len(e.backends))

	var wg sync.WaitGroup
	for i, b := range e.backends {
		wg.Add(1)
		go func(i int, b storage.Backend) {
			defer wg.Done()
			values[i], errs[i] = op.run(ctx, b)
		}(i, b)
	}
	wg.Wait()

	discardAll := func() {
		if op.discard == nil {
			return
		}
		for i := range values {
			if errs[i] == nil {
				op.discard(values[i])
			}
		}
	}

	// A unanimous not-found is a not-found, not an inconsistency.
	if op.notFound != nil {
		allMissing := true
		for _, err := range errs {
			if !isNotFound(err) {
				allMissing = false
				break
			}
		}
		if allMissing {
			var zero T
			return zero, op.notFound
		}
	}

	// Wrap with %v so a replica's not-found cannot satisfy errors.Is
	// checks upstream; a partial miss is a failure here, not a 404.
	var zero T
	for i, err := range errs {
		if err != nil {
			discardAll()
			return zero, fmt.Errorf("%s on %s: %v", op.name, e.backends[i].Name(), err)
		}
	}

	for i := range values {
		if i == e.primary {
			continue
		}
		if !op.equal(values[e.primary], values[i]) {
			e.logger.Error("replicas disagree",
				"op", op.name, "primary", e.Primary().Name(), "backend", e.backends[i].Name())
			discardAll()
			return zero, ErrInconsistent
		}
	}

	for i := range values {
		if i != e.primary && op.discard != nil {
			op.discard(values[i])
		}
	}
	return values[e.primary], nil
}

// sameListing compares two listings by their key to ETag mapping.
func sameListing(a, b []storage.ObjectInfo) bool {
	if len(a) != len(b) {
		return false
	}
	etags := make(map[string]string, len(a))
	for _, obj := range a {
		etags[obj.Key] = obj.ETag
	}
	for _, obj := range b {
		etag, ok := etags[obj.Key]
		if !ok || etag != obj.ETag {
			return false
		}
	}
	return true
}

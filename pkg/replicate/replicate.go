// Package replicate fans a single logical bucket out to multiple
// storage backends, applying a configurable read and write strategy.
// The engine implements storage.Backend itself, so handlers talk to a
// replicated set the same way they talk to a single store.
package replicate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wzshiming/s3gw/pkg/storage"
)

// ReadMode selects how reads are spread across backends.
type ReadMode int

const (
	// PrimaryOnly reads from the primary backend only.
	PrimaryOnly ReadMode = iota
	// PrimaryFallback reads from the primary and falls back to the
	// remaining backends in order when the primary fails. Only the
	// primary's not-found is authoritative; the scan continues past
	// replicas that do not hold the key and returns the first success.
	PrimaryFallback
	// BestEffort races all backends and returns the first result,
	// success or not-found. Losing reads are canceled.
	BestEffort
	// AllConsistent reads from every backend and fails unless they
	// all succeed and agree.
	AllConsistent
)

// WriteMode selects how writes propagate across backends.
type WriteMode int

const (
	// AsyncReplication writes to the primary synchronously and
	// replicates to the remaining backends in the background.
	AsyncReplication WriteMode = iota
	// MultiSync writes to every backend concurrently and fails if any
	// write fails. There is no rollback of the writes that succeeded.
	MultiSync
)

// ErrInconsistent is returned by AllConsistent reads when backends
// disagree about an object.
var ErrInconsistent = errors.New("replicas are inconsistent")

// Options configures an Engine.
type Options struct {
	Backends  []storage.Backend
	Primary   int
	ReadMode  ReadMode
	WriteMode WriteMode
	Logger    *slog.Logger
}

// Engine replicates storage operations across a fixed set of backends.
type Engine struct {
	backends  []storage.Backend
	primary   int
	readMode  ReadMode
	writeMode WriteMode
	logger    *slog.Logger
}

var _ storage.Backend = (*Engine)(nil)

// New creates an Engine over the given backends.
func New(opts Options) (*Engine, error) {
	if len(opts.Backends) == 0 {
		return nil, errors.New("replicate: no backends")
	}
	if opts.Primary < 0 || opts.Primary >= len(opts.Backends) {
		return nil, fmt.Errorf("replicate: primary index %d out of range", opts.Primary)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		backends:  opts.Backends,
		primary:   opts.Primary,
		readMode:  opts.ReadMode,
		writeMode: opts.WriteMode,
		logger:    logger,
	}, nil
}

// Name identifies the engine in logs when it is layered like a backend.
func (e *Engine) Name() string {
	return "replicate"
}

// Primary returns the primary backend.
func (e *Engine) Primary() storage.Backend {
	return e.backends[e.primary]
}

// isNotFound reports whether err is an authoritative not-found rather
// than a transient failure.
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNoSuchKey) || errors.Is(err, storage.ErrNoSuchBucket)
}

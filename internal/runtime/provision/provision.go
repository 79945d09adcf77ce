// Package provision creates storage resources lazily, once per process, and
// remembers which ones already exist.
package provision

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/logging"
)

// Resource kinds used in cache keys.
const (
	KindTable = "table"
	KindQueue = "queue"
)

// Backend creates a named resource and hands out a usable handle for it.
// CreateIfNotExists must succeed when the resource is already present.
type Backend[H any] interface {
	CreateIfNotExists(ctx context.Context, name string) error
	Handle(name string) H
}

// Cache is the set of resource keys known to be provisioned. Implementations
// must be safe for concurrent use.
type Cache interface {
	Contains(ctx context.Context, key string) (bool, error)
	Add(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
}

// DefaultCreateTimeout bounds a create call shared by concurrent callers.
const DefaultCreateTimeout = 30 * time.Second

// Provisioner ensures resources of a single kind exist before use.
type Provisioner[H any] struct {
	kind          string
	backend       Backend[H]
	cache         Cache
	logger        logging.ServiceLogger
	group         singleflight.Group
	createTimeout time.Duration
}

// New returns a provisioner for kind. A nil cache gets a fresh MemoryCache.
func New[H any](kind string, backend Backend[H], cache Cache, logger logging.ServiceLogger) *Provisioner[H] {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Provisioner[H]{
		kind:          kind,
		backend:       backend,
		cache:         cache,
		logger:        logger.With(logging.LogFields{"resource_kind": kind}),
		createTimeout: DefaultCreateTimeout,
	}
}

// Key is the cache key for a resource name.
func Key(kind, name string) string {
	return kind + ":" + name
}

// Ensure returns a handle to the named resource, creating it first unless
// the cache says it already exists.
//
// Concurrent callers for one name share a single create call. That call is
// detached from every caller's cancellation and bounded by its own timeout;
// each caller stops waiting when its own ctx is done.
func (p *Provisioner[H]) Ensure(ctx context.Context, name string) (H, error) {
	var zero H
	if name == "" {
		return zero, errspkg.ErrResourceNameRequired
	}

	key := Key(p.kind, name)
	if p.cached(ctx, key) {
		return p.backend.Handle(name), nil
	}

	ch := p.group.DoChan(key, func() (any, error) {
		createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.createTimeout)
		defer cancel()

		if p.cached(createCtx, key) {
			return nil, nil
		}
		if err := p.backend.CreateIfNotExists(createCtx, name); err != nil {
			return nil, err
		}
		if err := p.cache.Add(createCtx, key); err != nil {
			p.logger.Error("Failed to record provisioned resource", err, logging.LogFields{"resource": name})
		}
		p.logger.Debug("Resource provisioned", logging.LogFields{"resource": name})
		return nil, nil
	})

	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		var provErr *errspkg.ProvisionError
		if errors.As(err, &provErr) {
			return zero, err
		}
		return zero, &errspkg.ProvisionError{Kind: p.kind, Name: name, Err: err}
	}
	return p.backend.Handle(name), nil
}

// Invalidate forgets that name was provisioned, so the next Ensure creates
// it again.
func (p *Provisioner[H]) Invalidate(ctx context.Context, name string) {
	key := Key(p.kind, name)
	if err := p.cache.Remove(ctx, key); err != nil {
		p.logger.Error("Failed to drop provisioned resource", err, logging.LogFields{"key": key})
	}
}

// Use runs fn with a handle to name. When fn fails with an error for which
// missing reports true, the cached entry was stale: the resource is
// provisioned again and fn retried once. Provisioning failures come back as
// *errors.ProvisionError and fn's error is returned unchanged.
func (p *Provisioner[H]) Use(ctx context.Context, name string, missing func(error) bool, fn func(H) error) error {
	handle, err := p.Ensure(ctx, name)
	if err != nil {
		return err
	}
	err = fn(handle)
	if err == nil || missing == nil || !missing(err) {
		return err
	}

	p.logger.Info("Provisioned resource disappeared, creating it again", logging.LogFields{"resource": name})
	p.Invalidate(ctx, name)
	if handle, err = p.Ensure(ctx, name); err != nil {
		return err
	}
	return fn(handle)
}

func (p *Provisioner[H]) cached(ctx context.Context, key string) bool {
	ok, err := p.cache.Contains(ctx, key)
	if err != nil {
		p.logger.Error("Provisioning cache lookup failed", err, logging.LogFields{"key": key})
		return false
	}
	return ok
}

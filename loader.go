package tuneup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ciclofficina/tuneup/internal/store"
	"golang.org/x/sync/errgroup"
)

// LoaderFunc produces the value for a key on demand. It runs on the
// caller's goroutine and should honor ctx; the result is shared across
// callers, so it must be safe for concurrent use.
type LoaderFunc func(ctx context.Context, key string) (any, error)

// Well-known resource kinds with their own TTL defaults.
const (
	KindQuery = "query"
	KindAsset = "asset"
	KindUI    = "ui"
)

type loadOptions struct {
	ttl   time.Duration
	size  int64
	sizer func(any) int64
}

// LoadOption adjusts how a loaded value is stored.
type LoadOption func(*loadOptions)

// WithTTL overrides the configured TTL for this load. Zero keeps the
// entry alive until it is invalidated or evicted.
func WithTTL(ttl time.Duration) LoadOption {
	return func(o *loadOptions) { o.ttl = ttl }
}

// WithSize fixes the stored size estimate, in capacity units.
func WithSize(size int64) LoadOption {
	return func(o *loadOptions) { o.size = size }
}

// WithSizer derives the size estimate from the loaded value.
func WithSizer(fn func(v any) int64) LoadOption {
	return func(o *loadOptions) { o.sizer = fn }
}

// weigh is the default sizer: byte and string payloads weigh their
// length, everything else one unit.
func weigh(v any) int64 {
	switch v := v.(type) {
	case []byte:
		return max(int64(len(v)), 1)
	case string:
		return max(int64(len(v)), 1)
	default:
		return 1
	}
}

// GetOrLoad returns the cached value for key, invoking load on a miss.
// Concurrent callers of the same key share a single load. A recent
// failure is returned as the cached *LoadError without running the
// loader again until the negative entry expires.
func (e *Engine) GetOrLoad(ctx context.Context, key string, load LoaderFunc, opts ...LoadOption) (any, error) {
	if entry, ok := e.store.Get(key); ok {
		if entry.Status == store.StatusNegative {
			return nil, entry.Err
		}
		return entry.Value, nil
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		// Re-check under the flight: the previous winner may have stored
		// the value between our miss and this execution.
		if entry, ok := e.store.Peek(key); ok {
			if entry.Status == store.StatusNegative {
				return nil, entry.Err
			}
			return entry.Value, nil
		}
		return e.loadAndStore(ctx, key, load, opts)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// loadAndStore runs the loader and records its outcome: values are stored
// Valid with the effective TTL, failures Negative with the negative TTL.
func (e *Engine) loadAndStore(ctx context.Context, key string, load LoaderFunc, opts []LoadOption) (any, error) {
	o := loadOptions{ttl: e.cfg.DefaultTTL, sizer: weigh}
	for _, opt := range opts {
		opt(&o)
	}

	e.logger.Debug("loading resource", "key", key)
	e.loads.Add(1)

	value, err := load(ctx, key)
	if err != nil {
		e.loadFailures.Add(1)
		lerr := &LoadError{Key: key, Err: err}
		// A canceled or expired context says nothing about the resource,
		// so it must not suppress loads for later callers.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, lerr
		}
		if perr := e.store.PutNegative(key, lerr, e.negTTL, 1); perr != nil {
			e.logger.Warn("failed to record load failure", "key", key, "error", perr)
		}
		e.logger.Error("resource load failed", "key", key, "error", err)
		return nil, lerr
	}

	size := o.size
	if size <= 0 {
		size = o.sizer(value)
	}
	if err := e.store.Put(key, value, o.ttl, size); err != nil {
		return nil, fmt.Errorf("cache %q: %w", key, err)
	}
	return value, nil
}

// Resolve is the typed form of GetOrLoad.
func Resolve[T any](ctx context.Context, e *Engine, key string, load func(ctx context.Context, key string) (T, error), opts ...LoadOption) (T, error) {
	v, err := e.GetOrLoad(ctx, key, func(ctx context.Context, key string) (any, error) {
		return load(ctx, key)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cached value for %q is %T, not the requested type", key, v)
	}
	return t, nil
}

// Preload warms the cache for keys that are not yet present, running at
// most Config.PreloadConcurrency loads at a time. Failures are cached
// negatively and logged; the return value is the number of keys this
// call made resident.
func (e *Engine) Preload(ctx context.Context, keys []string, load LoaderFunc, opts ...LoadOption) int {
	var g errgroup.Group
	g.SetLimit(e.cfg.PreloadConcurrency)

	var loaded atomic.Int64
	for _, key := range keys {
		if e.store.Contains(key) {
			continue
		}
		g.Go(func() error {
			if _, err := e.GetOrLoad(ctx, key, load, opts...); err != nil {
				e.logger.Debug("preload skipped", "key", key, "error", err)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(loaded.Load())
}

// HashKey derives a stable cache key from arbitrary parts, useful when
// the natural key is a query statement plus its parameters.
func HashKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:16])
}

// KindCache is a namespaced view of the engine for one resource kind.
// Keys are prefixed with the kind name and loads default to the kind's
// TTL from Config.KindTTLs.
type KindCache struct {
	engine *Engine
	name   string
	ttl    time.Duration
}

// Kind returns the view for the named resource kind. Kinds without a
// configured TTL fall back to DefaultTTL.
func (e *Engine) Kind(name string) *KindCache {
	ttl := e.cfg.DefaultTTL
	if t, ok := e.cfg.KindTTLs[name]; ok {
		ttl = t
	}
	return &KindCache{engine: e, name: name, ttl: ttl}
}

// Key returns the engine-wide key for a kind-local key.
func (k *KindCache) Key(key string) string {
	return k.name + "/" + key
}

// GetOrLoad is Engine.GetOrLoad scoped to this kind; the loader receives
// the kind-local key.
func (k *KindCache) GetOrLoad(ctx context.Context, key string, load LoaderFunc, opts ...LoadOption) (any, error) {
	opts = append([]LoadOption{WithTTL(k.ttl)}, opts...)
	return k.engine.GetOrLoad(ctx, k.Key(key), func(ctx context.Context, _ string) (any, error) {
		return load(ctx, key)
	}, opts...)
}

// Preload warms this kind for the given kind-local keys.
func (k *KindCache) Preload(ctx context.Context, keys []string, load LoaderFunc, opts ...LoadOption) int {
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = k.Key(key)
	}
	opts = append([]LoadOption{WithTTL(k.ttl)}, opts...)
	return k.engine.Preload(ctx, full, func(ctx context.Context, key string) (any, error) {
		return load(ctx, strings.TrimPrefix(key, k.name+"/"))
	}, opts...)
}

// Invalidate removes one kind-local key, reporting whether it was present.
func (k *KindCache) Invalidate(key string) bool {
	return k.engine.Invalidate(k.Key(key))
}

// InvalidateAll drops every entry of this kind and returns the number
// removed.
func (k *KindCache) InvalidateAll() int {
	return k.engine.InvalidatePrefix(k.name + "/")
}

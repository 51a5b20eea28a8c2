// Package cache stores transform results by derived key with a TTL.
//
// Backends implement Store and report their own failures. The orchestrator
// talks to ResultCache, which bounds every call with a timeout and turns
// backend failures into misses so that a cache outage only costs recompute.
package cache

import (
	"context"
	"errors"
	"time"

	"imagegen/logger"
	"imagegen/metrics"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("cache store closed")

// Store is a TTL key/value backend. Implementations must be safe for
// concurrent use; a Get after expiry reports absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options for ResultCache.
type Options struct {
	TTL       time.Duration // advertised to clients; stores apply their own copy
	OpTimeout time.Duration // upper bound for a single Get or Set
	Metrics   *metrics.Metrics
}

// ResultCache is the failure-tolerant facade over a Store.
type ResultCache struct {
	store   Store
	opts    Options
	metrics *metrics.Metrics
}

func NewResultCache(store Store, opts Options) *ResultCache {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 500 * time.Millisecond
	}
	return &ResultCache{store: store, opts: opts, metrics: opts.Metrics}
}

// Get returns the stored payload for key. Backend errors and timeouts are
// logged and reported as a miss.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	payload, ok, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Warnf("cache get failed for %s, treating as miss: %v", key, err)
		c.metrics.CacheError("get")
		c.metrics.CacheMiss()
		return nil, false
	}
	if !ok {
		c.metrics.CacheMiss()
		return nil, false
	}
	c.metrics.CacheHit()
	return payload, true
}

// Set stores payload under key. Failures are logged and swallowed. The write
// is detached from ctx cancellation so a client hanging up does not drop it.
func (c *ResultCache) Set(ctx context.Context, key string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.OpTimeout)
	defer cancel()

	if err := c.store.Set(ctx, key, payload); err != nil {
		logger.Warnf("cache set failed for %s: %v", key, err)
		c.metrics.CacheError("set")
		return
	}
	c.metrics.CacheSet()
}

// TTL is the configured entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.opts.TTL
}

// Ping checks the backend when it supports it.
func (c *ResultCache) Ping(ctx context.Context) error {
	if p, ok := c.store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
		defer cancel()
		return p.Ping(ctx)
	}
	return nil
}

func (c *ResultCache) Close() error {
	return c.store.Close()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

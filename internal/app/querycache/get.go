package querycache

import (
	"context"
	"fmt"
	"time"

	"github.com/drivelane/datalayer/internal/app/fetch"
	"github.com/drivelane/datalayer/internal/errors"
)

// Get reads key through the cache. Fresh entries are served directly. Stale
// entries are served immediately while a background refetch runs
// (connectivity permitting). A key with no cached value fetches through the
// producer; concurrent callers for the same key share the single in-flight
// fetch rather than issuing redundant requests.
//
// A given key must always be read with the same result type.
func Get[T any](ctx context.Context, c *Cache, key Key, producer fetch.Producer[T], opts Options) (T, error) {
	var zero T
	erased := func(ctx context.Context) (any, error) { return producer(ctx) }
	v, err := c.get(ctx, key, erased, opts)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("querycache: key %q holds %T, requested %T", key, v, zero)
	}
	return tv, nil
}

// Mutate runs a side-effecting operation through the cache's retry and
// instrumentation policy. Mutations retry at most once, and on success the
// listed query keys are invalidated so the next read refetches. That is the
// only cross-entity consistency mechanism: invalidate and let the next read
// catch up.
func Mutate[T any](ctx context.Context, c *Cache, name string, op fetch.Producer[T], invalidates ...Key) (T, error) {
	var zero T
	start := time.Now()
	value, err := c.withRetry(ctx, mutationRetryLimit, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	c.emit("mutation", name, time.Since(start), err)
	if err != nil {
		c.log.WithError(err).WithField("mutation", name).Error("mutation failed")
		return zero, err
	}
	if len(invalidates) > 0 {
		c.Invalidate(invalidates...)
	}
	tv, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("querycache: mutation %q produced %T, requested %T", name, value, zero)
	}
	return tv, nil
}

func (c *Cache) get(ctx context.Context, key Key, fetcher func(context.Context) (any, error), opts Options) (any, error) {
	opts = c.normalize(opts)

	c.mu.Lock()
	e := c.entries[key]
	if e == nil {
		e = &entry{key: key}
		c.entries[key] = e
	}
	e.opts = opts
	e.fetcher = fetcher
	now := time.Now()

	// Fresh hit.
	if e.hasData && now.Before(e.staleAt) {
		v := e.data
		c.mu.Unlock()
		c.emitHit(key, true)
		return v, nil
	}

	// Stale hit: serve immediately, revalidate in the background.
	if e.hasData {
		v := e.data
		idle := e.pending == nil
		online := c.online
		c.mu.Unlock()
		c.emitHit(key, true)
		if idle && online {
			c.backgroundRefetch(e)
		}
		return v, nil
	}

	// Miss with a fetch already in flight: join it.
	if e.pending != nil {
		ch := e.pending
		c.mu.Unlock()
		c.emitHit(key, false)
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		v, hasData, err := e.data, e.hasData, e.err
		c.mu.Unlock()
		if hasData {
			return v, nil
		}
		return nil, err
	}

	// Miss: this caller fetches.
	ch := make(chan struct{})
	e.pending = ch
	c.mu.Unlock()
	c.emitHit(key, false)

	return c.runFetch(ctx, e, opts)
}

// runFetch executes the entry's fetcher with the retry policy and settles
// the entry. e.pending must have been armed by the caller.
func (c *Cache) runFetch(ctx context.Context, e *entry, opts Options) (any, error) {
	start := time.Now()
	value, err := c.withRetry(ctx, opts.RetryLimit, e.fetcher)

	c.mu.Lock()
	now := time.Now()
	if err == nil {
		e.data = value
		e.hasData = true
		e.err = nil
		e.fetchedAt = now
		e.staleAt = now.Add(opts.StaleTime)
	} else {
		e.err = err
	}
	if e.observers == 0 {
		// Nobody is holding the entry; start the eviction clock now so
		// one-shot reads do not pin the entry forever.
		e.expiresAt = now.Add(c.cacheTime(opts))
	}
	close(e.pending)
	e.pending = nil
	c.mu.Unlock()

	c.emit("query", string(e.key), time.Since(start), err)
	if err != nil {
		c.log.WithError(err).WithField("key", e.key).Error("query fetch failed")
	}
	return value, err
}

// Refresh forces a background revalidation of key if a fetcher is known for
// it, regardless of observer count. No-op while offline.
func (c *Cache) Refresh(key Key) {
	c.mu.Lock()
	e := c.entries[key]
	if e == nil || e.fetcher == nil || !c.online {
		c.mu.Unlock()
		return
	}
	e.staleAt = time.Now()
	c.mu.Unlock()

	c.backgroundRefetch(e)
}

// backgroundRefetch revalidates an entry off the caller's path. Errors keep
// the stale value in place; the next read serves it and tries again.
func (c *Cache) backgroundRefetch(e *entry) {
	c.mu.Lock()
	if e.pending != nil || e.fetcher == nil {
		c.mu.Unlock()
		return
	}
	e.pending = make(chan struct{})
	opts := e.opts
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c.runFetch(ctx, e, opts)
	}()
}

// withRetry runs fn, retrying up to limit times with exponential backoff
// capped at the configured maximum. Errors classified as non-retryable
// (missing entities, auth failures) fail immediately.
func (c *Cache) withRetry(ctx context.Context, limit int, fn func(context.Context) (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if attempt >= limit || !errors.IsRetryable(err) {
			return nil, lastErr
		}

		delay := c.retryBase << attempt
		if delay > c.retryMax || delay <= 0 {
			delay = c.retryMax
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

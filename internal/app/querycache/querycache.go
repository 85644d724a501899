// Package querycache implements the shared, key-addressed query cache that
// sits between the fetch primitives and the backend. Identical queries issued
// from different screens share one cached result and one in-flight request.
// Entries carry stale-time and cache-time policies, failed fetches retry with
// exponential backoff, and connectivity and foreground transitions drive
// background refetching of stale entries.
//
// The cache is constructed once at application start and injected wherever a
// shared cache is wanted; per-screen state that must not be shared stays on
// the fetch primitives.
package querycache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/drivelane/datalayer/internal/app/system"
	"github.com/drivelane/datalayer/pkg/logger"
)

// Key is the serialized identity of a query: logical name plus parameters,
// e.g. "cars:list:page=0:size=10:q=corolla".
type Key string

// Priority tunes an entry's freshness policy. Higher priority shrinks the
// stale and cache windows to favor fresh reads over cache hits.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityLow
)

// Freshness presets applied when Options leave the windows unset.
const (
	normalStaleTime = 5 * time.Minute
	normalCacheTime = 10 * time.Minute
	highStaleTime   = 30 * time.Second
	highCacheTime   = 5 * time.Minute
	lowStaleTime    = 15 * time.Minute
	lowCacheTime    = 30 * time.Minute

	defaultRetryLimit = 3
	mutationRetryLimit = 1
)

// Options configure one query's cache behavior.
type Options struct {
	// StaleTime is how long a fetched value counts as fresh. Zero selects
	// the preset for the entry's Priority.
	StaleTime time.Duration
	// CacheTime is how long an unobserved entry survives before eviction.
	// Zero selects the priority preset.
	CacheTime time.Duration
	// RetryLimit caps retries after a failed fetch. Zero means the default
	// of 3; negative disables retries.
	RetryLimit int
	// RefetchOnFocus opts the entry into a background refetch when the app
	// returns to the foreground while the entry is stale.
	RefetchOnFocus bool
	// Priority selects the freshness presets.
	Priority Priority
}

// Config configures the cache.
type Config struct {
	Log  *logger.Logger
	Sink Sink
	// SweepInterval is how often unobserved expired entries are evicted.
	// Defaults to one minute.
	SweepInterval time.Duration
	// RetryBaseDelay is the first retry backoff step. Defaults to one
	// second; tests shrink it.
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff. Defaults to thirty seconds.
	RetryMaxDelay time.Duration
	// FocusLimiter bounds the burst of background refetches caused by
	// rapid foreground transitions. Defaults to one every two seconds
	// with a burst of four.
	FocusLimiter *rate.Limiter
}

type entry struct {
	key     Key
	opts    Options
	fetcher func(ctx context.Context) (any, error)

	data      any
	hasData   bool
	err       error
	fetchedAt time.Time
	staleAt   time.Time

	observers int
	// expiresAt is the eviction deadline, armed when the observer count
	// drops to zero and when a fetch settles with no observers attached.
	expiresAt time.Time

	// pending is non-nil while a fetch for this key is in flight and is
	// closed on settlement. Joiners wait on it instead of fetching.
	pending chan struct{}
}

// Cache is the process-wide query cache. It implements system.Service for
// its eviction sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry

	log  *logger.Logger
	sink Sink

	online       bool
	sweepEvery   time.Duration
	retryBase    time.Duration
	retryMax     time.Duration
	focusLimiter *rate.Limiter

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Cache)(nil)

// New constructs a query cache. The zero Config is usable.
func New(cfg Config) *Cache {
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault("querycache")
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.FocusLimiter == nil {
		cfg.FocusLimiter = rate.NewLimiter(rate.Every(2*time.Second), 4)
	}
	return &Cache{
		entries:      make(map[Key]*entry),
		log:          cfg.Log,
		sink:         cfg.Sink,
		online:       true,
		sweepEvery:   cfg.SweepInterval,
		retryBase:    cfg.RetryBaseDelay,
		retryMax:     cfg.RetryMaxDelay,
		focusLimiter: cfg.FocusLimiter,
	}
}

// Observe registers interest in key so its entry is kept past CacheTime.
// The returned release function detaches the observer; when the count drops
// to zero the eviction clock starts.
func (c *Cache) Observe(key Key) (release func()) {
	c.mu.Lock()
	e := c.entries[key]
	if e == nil {
		e = &entry{key: key, opts: c.normalize(Options{})}
		c.entries[key] = e
	}
	e.observers++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.observers--
			if e.observers <= 0 {
				e.observers = 0
				e.expiresAt = time.Now().Add(c.cacheTime(e.opts))
			}
			c.mu.Unlock()
		})
	}
}

// Invalidate marks the given entries stale. Observed entries refetch in the
// background immediately (connectivity permitting); unobserved ones refetch
// on their next read.
func (c *Cache) Invalidate(keys ...Key) {
	var refetch []*entry
	c.mu.Lock()
	online := c.online
	for _, key := range keys {
		e := c.entries[key]
		if e == nil {
			continue
		}
		e.staleAt = time.Now()
		if e.observers > 0 && e.fetcher != nil && online {
			refetch = append(refetch, e)
		}
	}
	c.mu.Unlock()

	for _, e := range refetch {
		c.backgroundRefetch(e)
	}
}

// SetOnline records a connectivity transition. While offline, background
// refetching is suspended; coming back online refetches stale observed
// entries.
func (c *Cache) SetOnline(online bool) {
	var refetch []*entry
	c.mu.Lock()
	was := c.online
	c.online = online
	if online && !was {
		refetch = c.staleObservedLocked(false)
	}
	c.mu.Unlock()

	if !online {
		c.log.Info("connectivity lost, background refetch suspended")
		return
	}
	for _, e := range refetch {
		c.backgroundRefetch(e)
	}
}

// Online reports the last known connectivity state.
func (c *Cache) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// OnFocus handles a background-to-foreground transition: stale observed
// entries that opted into RefetchOnFocus are refetched, bounded by the focus
// limiter so rapid app switching cannot stampede the backend.
func (c *Cache) OnFocus() {
	c.mu.Lock()
	if !c.online {
		c.mu.Unlock()
		return
	}
	stale := c.staleObservedLocked(true)
	c.mu.Unlock()

	for _, e := range stale {
		if !c.focusLimiter.Allow() {
			c.log.Warn("focus refetch throttled")
			return
		}
		c.backgroundRefetch(e)
	}
}

// staleObservedLocked collects observed stale entries that can refetch.
// focusOnly restricts to entries with RefetchOnFocus set. Caller holds c.mu.
func (c *Cache) staleObservedLocked(focusOnly bool) []*entry {
	now := time.Now()
	var out []*entry
	for _, e := range c.entries {
		if e.observers == 0 || e.fetcher == nil || !e.hasData {
			continue
		}
		if focusOnly && !e.opts.RefetchOnFocus {
			continue
		}
		if now.Before(e.staleAt) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Name() string { return "querycache" }

// Start launches the eviction sweeper.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()

	c.log.Info("query cache sweeper started")
	return nil
}

// Stop halts the sweeper.
func (c *Cache) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Sweep evicts unobserved entries whose cache time has elapsed. Exposed for
// tests; the sweeper calls it on a ticker.
func (c *Cache) Sweep() {
	now := time.Now()
	evicted := 0
	c.mu.Lock()
	for key, e := range c.entries {
		if e.observers > 0 || e.pending != nil {
			continue
		}
		if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
			continue
		}
		delete(c.entries, key)
		evicted++
	}
	c.mu.Unlock()

	if evicted > 0 {
		c.log.WithField("evicted", evicted).Debug("query cache sweep")
	}
}

func (c *Cache) normalize(opts Options) Options {
	if opts.StaleTime <= 0 {
		switch opts.Priority {
		case PriorityHigh:
			opts.StaleTime = highStaleTime
		case PriorityLow:
			opts.StaleTime = lowStaleTime
		default:
			opts.StaleTime = normalStaleTime
		}
	}
	if opts.CacheTime <= 0 {
		switch opts.Priority {
		case PriorityHigh:
			opts.CacheTime = highCacheTime
		case PriorityLow:
			opts.CacheTime = lowCacheTime
		default:
			opts.CacheTime = normalCacheTime
		}
	}
	if opts.RetryLimit == 0 {
		opts.RetryLimit = defaultRetryLimit
	} else if opts.RetryLimit < 0 {
		opts.RetryLimit = 0
	}
	return opts
}

func (c *Cache) cacheTime(opts Options) time.Duration {
	if opts.CacheTime > 0 {
		return opts.CacheTime
	}
	return normalCacheTime
}

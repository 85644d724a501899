package fetch

import (
	"context"
	"sync"

	"github.com/drivelane/datalayer/pkg/logger"
)

// ListState is the render-ready result of a paginated fetch.
type ListState[T any] struct {
	// Items holds every page loaded so far, page order preserved, no two
	// items sharing an identity.
	Items []T
	// Err is a display-safe message from the most recent failed fetch.
	Err string
	// Loading is true only during the initial (or post-failure reset) load.
	Loading bool
	// Refreshing is true during a user-initiated full refresh.
	Refreshing bool
	// LoadingMore is true while a subsequent page is being appended.
	LoadingMore bool
	// HasMore reports whether the last page came back full, i.e. another
	// page may exist.
	HasMore bool
	// Page is the zero-based index of the last successfully loaded page.
	Page int
}

type fetchMode int

const (
	modeInitial fetchMode = iota
	modeRefresh
	modeMore
)

// PagerConfig configures a Pager.
type PagerConfig[T any] struct {
	// FetchPage loads one page of items. Required.
	FetchPage PageFunc[T]
	// Key extracts the identity used to deduplicate across pages. Required.
	Key KeyFunc[T]
	// PageSize is the number of items requested per page. Defaults to 10.
	PageSize int
	// Seed pre-populates the list until the initial load replaces it.
	Seed []T
	// Disabled suppresses the initial load until SetEnabled(true).
	Disabled bool
	// Log receives one error-level line per failed fetch.
	Log *logger.Logger
}

// Pager accumulates pages of items from a paginated data source. It follows
// the state machine Idle -> Loading -> Loaded <-> LoadingMore, with
// Refreshing and Err as overlays on Loaded. A fetch superseded by a newer
// trigger, or outliving Close, never mutates state.
type Pager[T any] struct {
	mu        sync.Mutex
	fetchPage PageFunc[T]
	key       KeyFunc[T]
	pageSize  int
	log       *logger.Logger

	items []T
	seen  map[string]struct{}
	state ListState[T]

	enabled     bool
	initialDone bool
	lastPage    int
	lastMode    fetchMode

	gen         uint64
	cancelFetch context.CancelFunc
	closed      bool
	wg          sync.WaitGroup
	subs        subscribers
}

// NewPager constructs a Pager and, unless disabled, triggers the initial
// load of page 0.
func NewPager[T any](cfg PagerConfig[T]) *Pager[T] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault("fetch-pager")
	}
	p := &Pager[T]{
		fetchPage: cfg.FetchPage,
		key:       cfg.Key,
		pageSize:  cfg.PageSize,
		log:       cfg.Log,
		seen:      make(map[string]struct{}),
		enabled:   !cfg.Disabled,
	}
	p.state.HasMore = true
	for _, item := range cfg.Seed {
		k := p.key(item)
		if _, dup := p.seen[k]; dup {
			continue
		}
		p.seen[k] = struct{}{}
		p.items = append(p.items, item)
	}

	var notify func()
	p.mu.Lock()
	if p.enabled {
		notify = p.start(0, modeInitial)
	}
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
	return p
}

// LoadMore fetches and appends the next page. It is a no-op while disabled,
// before the initial load has completed, while any fetch is in flight, or
// once the source is exhausted. Calls during an in-flight LoadMore are
// dropped, not queued.
func (p *Pager[T]) LoadMore() {
	p.mu.Lock()
	if p.closed || !p.enabled || !p.initialDone || !p.state.HasMore || p.busy() {
		p.mu.Unlock()
		return
	}
	notify := p.start(p.state.Page+1, modeMore)
	p.mu.Unlock()
	notify()
}

// Refresh discards the accumulated list and reloads page 0, superseding any
// fetch already in flight.
func (p *Pager[T]) Refresh() {
	p.mu.Lock()
	if p.closed || !p.enabled || p.state.Refreshing {
		p.mu.Unlock()
		return
	}
	notify := p.start(0, modeRefresh)
	p.mu.Unlock()
	notify()
}

// Retry re-issues the most recently failed fetch: the initial load if it
// never completed, otherwise the page that failed, without touching the
// items accumulated so far.
func (p *Pager[T]) Retry() {
	p.mu.Lock()
	if p.closed || !p.enabled || p.busy() {
		p.mu.Unlock()
		return
	}
	var notify func()
	if !p.initialDone {
		notify = p.start(0, modeInitial)
	} else {
		notify = p.start(p.lastPage, p.lastMode)
	}
	p.mu.Unlock()
	notify()
}

// SetEnabled gates fetching. Enabling a pager whose initial load never
// completed triggers exactly one fresh initial load; disabling cancels any
// fetch in flight.
func (p *Pager[T]) SetEnabled(enabled bool) {
	p.mu.Lock()
	if p.closed || p.enabled == enabled {
		p.mu.Unlock()
		return
	}
	p.enabled = enabled

	var notify func()
	if enabled {
		if !p.initialDone {
			notify = p.start(0, modeInitial)
		}
	} else {
		p.gen++
		if p.cancelFetch != nil {
			p.cancelFetch()
			p.cancelFetch = nil
		}
		p.state.Loading = false
		p.state.Refreshing = false
		p.state.LoadingMore = false
		fns := p.subs.snapshot()
		notify = func() {
			for _, fn := range fns {
				fn()
			}
		}
	}
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Snapshot returns a copy of the current list state. The Items slice is
// copied so callers may hold it across further mutations.
func (p *Pager[T]) Snapshot() ListState[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.state
	out.Items = append([]T(nil), p.items...)
	return out
}

// Subscribe registers fn to run after every state transition.
func (p *Pager[T]) Subscribe(fn func()) (unsubscribe func()) {
	p.mu.Lock()
	remove := p.subs.add(fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		remove()
		p.mu.Unlock()
	}
}

// Close cancels any in-flight fetch; settlements arriving afterwards are
// discarded.
func (p *Pager[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	cancel := p.cancelFetch
	p.cancelFetch = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// busy reports whether any fetch is in flight. Caller holds p.mu.
func (p *Pager[T]) busy() bool {
	return p.state.Loading || p.state.Refreshing || p.state.LoadingMore
}

// start begins a fetch of page in the given mode, superseding any in-flight
// fetch. Caller holds p.mu; the returned func notifies subscribers and must
// run after unlocking.
func (p *Pager[T]) start(page int, mode fetchMode) func() {
	p.gen++
	gen := p.gen
	if p.cancelFetch != nil {
		p.cancelFetch()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelFetch = cancel

	p.lastPage = page
	p.lastMode = mode
	p.state.Err = ""
	p.state.Loading = false
	p.state.Refreshing = false
	p.state.LoadingMore = false
	switch mode {
	case modeInitial:
		p.state.Loading = true
	case modeRefresh:
		p.state.Refreshing = true
		p.items = nil
		p.seen = make(map[string]struct{})
		p.state.HasMore = true
	case modeMore:
		p.state.LoadingMore = true
	}
	fns := p.subs.snapshot()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		results, err := p.fetchPage(ctx, page, p.pageSize)

		p.mu.Lock()
		if p.closed || gen != p.gen {
			p.mu.Unlock()
			return
		}
		if err != nil {
			p.settleError(mode, err)
		} else {
			p.settleSuccess(page, mode, results)
		}
		done := p.subs.snapshot()
		p.mu.Unlock()

		for _, fn := range done {
			fn()
		}
	}()

	return func() {
		for _, fn := range fns {
			fn()
		}
	}
}

// settleSuccess merges results into the list. Caller holds p.mu.
func (p *Pager[T]) settleSuccess(page int, mode fetchMode, results []T) {
	if mode != modeMore {
		p.items = nil
		p.seen = make(map[string]struct{})
	}
	for _, item := range results {
		k := p.key(item)
		if _, dup := p.seen[k]; dup {
			continue
		}
		p.seen[k] = struct{}{}
		p.items = append(p.items, item)
	}
	p.state.Page = page
	// Exhaustion is judged on the raw page size, before deduplication.
	p.state.HasMore = len(results) == p.pageSize
	p.state.Err = ""
	p.state.Loading = false
	p.state.Refreshing = false
	p.state.LoadingMore = false
	p.initialDone = true
}

// settleError records a failure. A failed append keeps the accumulated
// items; a failed reset clears them so the UI can show a full-screen error.
// Caller holds p.mu.
func (p *Pager[T]) settleError(mode fetchMode, err error) {
	if mode != modeMore {
		p.items = nil
		p.seen = make(map[string]struct{})
		p.state.Page = 0
		p.state.HasMore = true
		p.initialDone = false
	}
	p.state.Err = Classify(err)
	p.state.Loading = false
	p.state.Refreshing = false
	p.state.LoadingMore = false
	p.log.WithError(err).Error("page fetch failed")
}

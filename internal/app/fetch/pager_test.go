package fetch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// makeItems builds a page of distinct items with IDs derived from the page.
func makeItems(page, count int) []item {
	out := make([]item, count)
	for i := range out {
		out[i] = item{ID: fmt.Sprintf("p%d-%d", page, i)}
	}
	return out
}

func settled(p *Pager[item]) func() bool {
	return func() bool {
		st := p.Snapshot()
		return !st.Loading && !st.Refreshing && !st.LoadingMore
	}
}

func TestPager_InitialLoad(t *testing.T) {
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			return makeItems(page, pageSize), nil
		},
		Key: itemKey,
		Log: testLogger(),
	})
	defer p.Close()

	waitFor(t, "initial load", settled(p))

	st := p.Snapshot()
	if len(st.Items) != 10 {
		t.Fatalf("len(Items) = %d, want default page size 10", len(st.Items))
	}
	if !st.HasMore || st.Page != 0 || st.Err != "" {
		t.Fatalf("unexpected state after initial load: %+v", st)
	}
}

func TestPager_LoadMoreAndExhaustion(t *testing.T) {
	var calls int32
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			atomic.AddInt32(&calls, 1)
			if page == 0 {
				return makeItems(0, 10), nil
			}
			return makeItems(1, 4), nil
		},
		Key:      itemKey,
		PageSize: 10,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "initial load", settled(p))

	p.LoadMore()
	waitFor(t, "load more", settled(p))

	st := p.Snapshot()
	if len(st.Items) != 14 {
		t.Fatalf("len(Items) = %d, want 14", len(st.Items))
	}
	if st.HasMore {
		t.Fatal("HasMore should be false after a short page")
	}
	if st.Page != 1 {
		t.Fatalf("Page = %d, want 1", st.Page)
	}

	// Exhausted: further LoadMore calls must not hit the source.
	p.LoadMore()
	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("LoadMore after exhaustion fetched: %d calls", n)
	}
}

func TestPager_FullPageKeepsHasMore(t *testing.T) {
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 5,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "initial load", settled(p))

	p.LoadMore()
	waitFor(t, "load more", settled(p))

	st := p.Snapshot()
	if !st.HasMore {
		t.Fatal("a page of exactly pageSize items must keep HasMore true")
	}
	if len(st.Items) != 10 {
		t.Fatalf("len(Items) = %d, want 10", len(st.Items))
	}
}

func TestPager_DeduplicatesAcrossPages(t *testing.T) {
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			if page == 0 {
				return []item{{ID: "a"}, {ID: "b"}}, nil
			}
			return []item{{ID: "a"}, {ID: "c"}}, nil
		},
		Key:      itemKey,
		PageSize: 2,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "initial load", settled(p))

	p.LoadMore()
	waitFor(t, "load more", settled(p))

	st := p.Snapshot()
	want := []string{"a", "b", "c"}
	if len(st.Items) != len(want) {
		t.Fatalf("len(Items) = %d, want %d (%+v)", len(st.Items), len(want), st.Items)
	}
	for i, id := range want {
		if st.Items[i].ID != id {
			t.Fatalf("Items[%d].ID = %q, want %q (order must be preserved)", i, st.Items[i].ID, id)
		}
	}
}

func TestPager_LoadMoreWhileInFlightIsDropped(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			if atomic.AddInt32(&calls, 1) > 1 {
				<-release
			}
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 3,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "initial load", settled(p))

	p.LoadMore()
	p.LoadMore() // in flight: dropped, not queued
	p.LoadMore()
	close(release)
	waitFor(t, "load more", settled(p))

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("fetch calls = %d, want 2 (concurrent LoadMore must no-op)", n)
	}
}

func TestPager_LoadMoreBeforeInitialLoadIsDropped(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 3,
		Log:      testLogger(),
	})
	defer p.Close()

	p.LoadMore() // initial load still in flight
	close(release)
	waitFor(t, "initial load", settled(p))

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestPager_RefreshReplaces(t *testing.T) {
	var refreshed atomic.Bool
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			if refreshed.Load() {
				return []item{{ID: "fresh-1"}, {ID: "fresh-2"}}, nil
			}
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 4,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "initial load", settled(p))

	p.LoadMore()
	waitFor(t, "load more", settled(p))
	if st := p.Snapshot(); len(st.Items) != 8 {
		t.Fatalf("len(Items) = %d, want 8 before refresh", len(st.Items))
	}

	refreshed.Store(true)
	p.Refresh()
	waitFor(t, "refresh", settled(p))

	st := p.Snapshot()
	if len(st.Items) != 2 || st.Items[0].ID != "fresh-1" {
		t.Fatalf("refresh must replace, not append: %+v", st.Items)
	}
	if st.Page != 0 {
		t.Fatalf("Page = %d, want 0 after refresh", st.Page)
	}
	if st.HasMore {
		t.Fatal("HasMore should be false after a short refresh page")
	}
}

func TestPager_RefreshMidLoadMore(t *testing.T) {
	blockMore := make(chan struct{})
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			if page > 0 {
				<-blockMore
				return makeItems(page, pageSize), nil
			}
			return []item{{ID: fmt.Sprintf("r%d", time.Now().UnixNano())}, {ID: "base"}}, nil
		},
		Key:      itemKey,
		PageSize: 2,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "initial load", settled(p))

	p.LoadMore()
	p.Refresh() // supersedes the in-flight LoadMore

	close(blockMore)
	waitFor(t, "refresh", settled(p))

	st := p.Snapshot()
	if st.Page != 0 {
		t.Fatalf("Page = %d, want 0 (refresh wins over the stale append)", st.Page)
	}
	if len(st.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2 (stale append must be discarded)", len(st.Items))
	}
}

func TestPager_FailedLoadMorePreservesItems(t *testing.T) {
	var fail atomic.Bool
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			if page > 0 && fail.Load() {
				return nil, fmt.Errorf("connection reset")
			}
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 6,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "initial load", settled(p))

	fail.Store(true)
	p.LoadMore()
	waitFor(t, "failed load more", settled(p))

	st := p.Snapshot()
	if len(st.Items) != 6 {
		t.Fatalf("failed LoadMore must preserve items, got %d", len(st.Items))
	}
	if st.Err != "connection reset" {
		t.Fatalf("Err = %q, want %q", st.Err, "connection reset")
	}

	fail.Store(false)
	p.Retry()
	waitFor(t, "retry", settled(p))

	st = p.Snapshot()
	if st.Err != "" || len(st.Items) != 12 || st.Page != 1 {
		t.Fatalf("unexpected state after retry: err=%q items=%d page=%d", st.Err, len(st.Items), st.Page)
	}
}

func TestPager_FailedInitialLoadClears(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			if fail.Load() {
				return nil, fmt.Errorf("backend unreachable")
			}
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 5,
		Log:      testLogger(),
	})
	defer p.Close()
	waitFor(t, "failed initial load", settled(p))

	st := p.Snapshot()
	if len(st.Items) != 0 || st.Err == "" {
		t.Fatalf("failed initial load must clear to an empty errored list: %+v", st)
	}

	// LoadMore cannot race ahead of a completed initial load.
	p.LoadMore()
	time.Sleep(10 * time.Millisecond)
	if st := p.Snapshot(); st.LoadingMore {
		t.Fatal("LoadMore before initial completion must be a no-op")
	}

	fail.Store(false)
	p.Retry()
	waitFor(t, "retried initial load", func() bool {
		st := p.Snapshot()
		return !st.Loading && len(st.Items) == 5
	})
	if st := p.Snapshot(); st.Err != "" {
		t.Fatalf("Err = %q, want cleared", st.Err)
	}
}

func TestPager_DisabledUntilEnabled(t *testing.T) {
	var calls int32
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			atomic.AddInt32(&calls, 1)
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 3,
		Disabled: true,
		Log:      testLogger(),
	})
	defer p.Close()

	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("disabled pager fetched %d times", n)
	}

	p.SetEnabled(true)
	waitFor(t, "initial load after enable", settled(p))
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("enable must trigger exactly one initial load, got %d", n)
	}

	p.SetEnabled(true) // no-op
	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("re-enabling triggered another load: %d calls", n)
	}
}

func TestPager_SeedVisibleBeforeInitialLoad(t *testing.T) {
	release := make(chan struct{})
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			<-release
			return makeItems(page, pageSize), nil
		},
		Key:      itemKey,
		PageSize: 3,
		Seed:     []item{{ID: "seed-1"}, {ID: "seed-2"}},
		Log:      testLogger(),
	})
	defer p.Close()

	st := p.Snapshot()
	if len(st.Items) != 2 || !st.Loading {
		t.Fatalf("seed items should be visible during the initial load: %+v", st)
	}

	close(release)
	waitFor(t, "initial load", settled(p))
	if st := p.Snapshot(); len(st.Items) != 3 || st.Items[0].ID != "p0-0" {
		t.Fatalf("initial load must replace the seed: %+v", st.Items)
	}
}

func TestPager_CloseMidFlight(t *testing.T) {
	started := make(chan struct{})
	p := NewPager(PagerConfig[item]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]item, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Key: itemKey,
		Log: testLogger(),
	})

	var notified int32
	p.Subscribe(func() { atomic.AddInt32(&notified, 1) })
	<-started

	before := atomic.LoadInt32(&notified)
	p.Close()
	time.Sleep(20 * time.Millisecond)

	if after := atomic.LoadInt32(&notified); after != before {
		t.Fatalf("state mutated after close: %d notifications", after-before)
	}
}

// Package fetch implements the request lifecycle primitives the mobile data
// layer is built on: a single-shot fetcher, an imperative operation runner,
// and an infinite-scroll pager. Each instance owns its state exclusively and
// publishes transitions to subscribers; a shared cache lives separately in
// package querycache.
//
// All three primitives share the same hazard model: a fetch may be superseded
// by a newer trigger, or its owner may be closed, while the request is still
// in flight. State reflects the most recently initiated operation, never a
// stale settlement. Every write that follows a suspension point is gated on
// a per-instance generation counter.
package fetch

import "context"

// Producer yields a single value from the data source.
type Producer[T any] func(ctx context.Context) (T, error)

// PageFunc yields one page of items. page is zero-based; implementations
// return at most pageSize items and fewer only on the final page.
type PageFunc[T any] func(ctx context.Context, page, pageSize int) ([]T, error)

// KeyFunc extracts the stable identity used to deduplicate items across
// pages.
type KeyFunc[T any] func(item T) string

// State is the render-ready result of a single-shot fetch.
type State[T any] struct {
	// Data is the last successful result, nil before the first success and
	// after a failed fetch.
	Data *T
	// Err is a display-safe message, empty while the fetch is healthy.
	Err string
	// Loading is true while a fetch for the current dependencies is in
	// flight.
	Loading bool
}

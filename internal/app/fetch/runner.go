package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/drivelane/datalayer/pkg/logger"
)

// Runner executes imperative, user-triggered operations (submit a lead,
// update a profile) with local loading and error state. Nothing runs
// automatically; callers invoke Execute per action.
//
// Concurrent Execute calls on one Runner are allowed, but Loading and Err
// reflect only the most recently settled call. Callers needing isolation use
// separate Runner instances.
type Runner[T any] struct {
	mu      sync.Mutex
	loading bool
	errMsg  string
	log     *logger.Logger
}

// NewRunner constructs an operation runner.
func NewRunner[T any](log *logger.Logger) *Runner[T] {
	if log == nil {
		log = logger.NewDefault("fetch-runner")
	}
	return &Runner[T]{log: log}
}

// Execute runs op and returns its value with ok=true on success. On failure
// it returns the zero value with ok=false and records a classified message in
// Err. A panicking op is recovered and treated as a failure; Execute never
// propagates a panic and Loading is false after settlement either way.
func (r *Runner[T]) Execute(ctx context.Context, op Producer[T]) (value T, ok bool) {
	r.mu.Lock()
	r.loading = true
	r.errMsg = ""
	r.mu.Unlock()

	var err error
	value, err = r.run(ctx, op)

	r.mu.Lock()
	r.loading = false
	if err != nil {
		r.errMsg = Classify(err)
		var zero T
		value = zero
	} else {
		r.errMsg = ""
		ok = true
	}
	r.mu.Unlock()

	if err != nil {
		r.log.WithError(err).Error("operation failed")
	}
	return value, ok
}

func (r *Runner[T]) run(ctx context.Context, op Producer[T]) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("operation panic: %v", rec)
		}
	}()
	return op(ctx)
}

// Loading reports whether an operation is in flight.
func (r *Runner[T]) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the display-safe message from the most recently settled call,
// or empty when it succeeded.
func (r *Runner[T]) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errMsg
}

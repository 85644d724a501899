package querycache

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/drivelane/datalayer/internal/app/system"
	"github.com/drivelane/datalayer/pkg/logger"
)

// Scheduler refreshes pinned query keys on a cron schedule, so always-on
// screens (featured listings, the home feed) stay warm without a user
// trigger. Schedules use cron specs including the "@every 5m" form.
type Scheduler struct {
	cache *Cache
	cron  *cron.Cron
	log   *logger.Logger

	mu      sync.Mutex
	pins    map[Key]cron.EntryID
	running bool
}

var _ system.Service = (*Scheduler)(nil)

// NewScheduler creates a refresh scheduler over the given cache.
func NewScheduler(cache *Cache, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("querycache-scheduler")
	}
	return &Scheduler{
		cache: cache,
		cron:  cron.New(),
		log:   log,
		pins:  make(map[Key]cron.EntryID),
	}
}

// Pin schedules key for periodic refresh. Pinning an already pinned key
// replaces its schedule.
func (s *Scheduler) Pin(key Key, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pins[key]; ok {
		s.cron.Remove(old)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.cache.Refresh(key)
	})
	if err != nil {
		return fmt.Errorf("pin %q: %w", key, err)
	}
	s.pins[key] = id
	s.log.WithField("key", key).WithField("schedule", spec).Info("query pinned for refresh")
	return nil
}

// Unpin removes a scheduled refresh.
func (s *Scheduler) Unpin(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.pins[key]; ok {
		s.cron.Remove(id)
		delete(s.pins, key)
	}
}

func (s *Scheduler) Name() string { return "querycache-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.cron.Start()
	s.running = true
	s.log.Info("refresh scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-stop.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

package liveness

import (
	"context"
	"sync"

	"github.com/drivelane/datalayer/pkg/logger"
	"github.com/drivelane/datalayer/supabase/client"
)

// Refetcher is the slice of the query cache the monitor drives.
type Refetcher interface {
	SetOnline(online bool)
	OnFocus()
}

// ConnectionSource provides connectivity signals, normally the realtime
// websocket client.
type ConnectionSource interface {
	Connect(ctx context.Context) error
	OnStatusChange(handler client.StatusHandler)
	Close() error
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Hub *Hub
	// Cache receives SetOnline and OnFocus calls as liveness changes.
	Cache Refetcher
	// Source feeds connectivity into the hub. Optional; without it the hub
	// is driven purely by SetOnline/SetForeground calls.
	Source ConnectionSource
	Log    *logger.Logger
}

// Monitor binds the liveness hub to the query cache: connectivity changes
// suspend or resume background refetching, and a return to the foreground
// triggers a focus refetch.
type Monitor struct {
	hub    *Hub
	cache  Refetcher
	source ConnectionSource
	log    *logger.Logger

	mu         sync.Mutex
	remove     func()
	foreground bool
}

// NewMonitor creates a monitor. Call Start to begin forwarding.
func NewMonitor(cfg MonitorConfig) *Monitor {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("liveness")
	}
	return &Monitor{
		hub:    cfg.Hub,
		cache:  cfg.Cache,
		source: cfg.Source,
		log:    log,
	}
}

// Name implements system.Service.
func (m *Monitor) Name() string { return "liveness" }

// Start implements system.Service. It subscribes to the hub and, if a
// connection source is configured, connects it and routes its status into
// the hub.
func (m *Monitor) Start(ctx context.Context) error {
	m.foreground = m.hub.Status().Foreground
	m.remove = m.hub.Subscribe(m.onStatus)

	if m.source != nil {
		m.source.OnStatusChange(func(online bool) {
			m.hub.SetOnline(online)
		})
		if err := m.source.Connect(ctx); err != nil {
			// The realtime socket will keep redialing; stay in the state
			// the hub already has rather than flapping to offline.
			m.log.WithError(err).Warn("realtime connect failed, will retry")
		}
	}

	m.log.Info("liveness monitor started")
	return nil
}

// Stop implements system.Service.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.remove != nil {
		m.remove()
		m.remove = nil
	}
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			return err
		}
	}
	m.log.Info("liveness monitor stopped")
	return nil
}

func (m *Monitor) onStatus(s Status) {
	m.mu.Lock()
	refocused := s.Foreground && !m.foreground
	m.foreground = s.Foreground
	m.mu.Unlock()

	m.cache.SetOnline(s.Online)

	if refocused {
		m.log.Debug("app foregrounded, refetching stale queries")
		m.cache.OnFocus()
	}
}

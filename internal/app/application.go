package app

import (
	"context"
	"net/http"

	"github.com/drivelane/datalayer/internal/app/liveness"
	"github.com/drivelane/datalayer/internal/app/metrics"
	"github.com/drivelane/datalayer/internal/app/querycache"
	"github.com/drivelane/datalayer/internal/app/services/catalog"
	"github.com/drivelane/datalayer/internal/app/system"
	"github.com/drivelane/datalayer/internal/config"
	"github.com/drivelane/datalayer/pkg/logger"
	"github.com/drivelane/datalayer/supabase/client"
)

// Deps encapsulates swappable dependencies. Nil fields default to the
// production implementation.
type Deps struct {
	// HTTPClient overrides the backend transport; the default follows
	// config (plain or resilient).
	HTTPClient *http.Client
	// Source overrides the connectivity source; the default is the
	// realtime websocket against the backend URL.
	Source liveness.ConnectionSource
	// Sink overrides the cache measurement sink; the default reports to
	// the Prometheus registry.
	Sink querycache.Sink
}

// Application ties the data layer together and manages its lifecycle: the
// backend client, the query cache and its sweeper, the pinned-refresh
// scheduler, the liveness monitor, and the catalog service.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Backend   *client.Client
	Cache     *querycache.Cache
	Scheduler *querycache.Scheduler
	Liveness  *liveness.Hub
	Catalog   *catalog.Service
}

// New builds a fully initialised application from configuration.
func New(cfg *config.Config, deps Deps, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		if cfg.Backend.Resilient {
			httpClient = client.NewResilientClient(client.ResilientClientConfig{
				RetryConfig:          client.DefaultRetryConfig(),
				CircuitBreakerConfig: client.DefaultCircuitBreakerConfig(),
			}).HTTPClient()
		} else {
			httpClient = &http.Client{Timeout: cfg.Backend.Timeout()}
		}
	}

	backend, err := client.New(client.Config{
		URL:        cfg.Backend.URL,
		APIKey:     cfg.Backend.APIKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}

	sink := deps.Sink
	if sink == nil {
		sink = metrics.PromSink{}
	}

	cache := querycache.New(querycache.Config{
		Log:            log.WithField("component", "querycache"),
		Sink:           sink,
		SweepInterval:  cfg.Cache.SweepEvery(),
		RetryBaseDelay: cfg.Cache.RetryBase(),
		RetryMaxDelay:  cfg.Cache.RetryMax(),
	})

	scheduler := querycache.NewScheduler(cache, log.WithField("component", "scheduler"))
	for _, pin := range cfg.PinnedQueries {
		if err := scheduler.Pin(querycache.Key(pin.Key), pin.Schedule); err != nil {
			return nil, err
		}
	}

	source := deps.Source
	if source == nil {
		source = client.NewRealtimeClient(cfg.Backend.URL, cfg.Backend.APIKey)
	}

	hub := liveness.NewHub()
	monitor := liveness.NewMonitor(liveness.MonitorConfig{
		Hub:    hub,
		Cache:  cache,
		Source: source,
		Log:    log.WithField("component", "liveness"),
	})

	manager := system.NewManager()
	for _, svc := range []system.Service{cache, scheduler, monitor} {
		if err := manager.Register(svc); err != nil {
			return nil, err
		}
	}

	return &Application{
		manager:   manager,
		log:       log,
		Backend:   backend,
		Cache:     cache,
		Scheduler: scheduler,
		Liveness:  hub,
		Catalog:   catalog.New(backend, log.WithField("component", "catalog")),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

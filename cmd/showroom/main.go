// Package main runs a small console showroom against the Drivelane backend:
// it wires the full data layer (client, query cache, scheduler, liveness,
// catalog) and pages through the car catalog, which doubles as a smoke test
// for the stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drivelane/datalayer/internal/app"
	"github.com/drivelane/datalayer/internal/app/domain/car"
	"github.com/drivelane/datalayer/internal/app/fetch"
	"github.com/drivelane/datalayer/internal/app/metrics"
	"github.com/drivelane/datalayer/internal/app/querycache"
	"github.com/drivelane/datalayer/internal/app/services/catalog"
	"github.com/drivelane/datalayer/internal/config"
	"github.com/drivelane/datalayer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to datalayer.yaml (defaults apply when absent)")
	search := flag.String("search", "", "Search term for the catalog page-through")
	flag.Parse()

	log := logger.NewDefault("showroom")

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.LoadFromPath(*configPath)
		if err != nil {
			log.WithError(err).Error("failed to load config")
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}
	if v := os.Getenv("DRIVELANE_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("DRIVELANE_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}

	application, err := app.New(cfg, app.Deps{}, log)
	if err != nil {
		log.WithError(err).Error("failed to build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start application")
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.WithField("listen", cfg.Metrics.Listen).Info("metrics endpoint up")
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.WithError(err).Warn("metrics server exited")
			}
		}()
	}

	if err := pageThrough(ctx, application.Catalog, application.Cache, *search, log); err != nil {
		log.WithError(err).Error("page-through failed")
	}

	log.Info("showroom idle, Ctrl+C to exit")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
}

// pageThrough walks the catalog with a Pager the way a listing screen
// would, then shows a cached detail read for the first result.
func pageThrough(ctx context.Context, svc *catalog.Service, cache *querycache.Cache, search string, log *logger.Logger) error {
	total, err := svc.CountCars(ctx, search)
	if err != nil {
		return err
	}
	fmt.Printf("catalog has %d matching cars\n", total)

	done := make(chan struct{})
	pager := fetch.NewPager(fetch.PagerConfig[car.Car]{
		FetchPage: func(ctx context.Context, page, pageSize int) ([]car.Car, error) {
			return svc.ListCars(ctx, page, pageSize, search)
		},
		Key:      func(c car.Car) string { return c.ID },
		PageSize: 10,
		Log:      log,
	})
	defer pager.Close()

	remove := pager.Subscribe(func() {
		st := pager.Snapshot()
		if st.Loading || st.LoadingMore {
			return
		}
		if st.Err != "" {
			fmt.Printf("error: %s\n", st.Err)
			close(done)
			return
		}
		fmt.Printf("loaded %d cars (page %d)\n", len(st.Items), st.Page)
		if st.HasMore {
			pager.LoadMore()
			return
		}
		for _, c := range st.Items {
			fmt.Printf("  %d %s %s $%.0f\n", c.Year, c.Make, c.Model, c.Price)
		}
		close(done)
	})
	defer remove()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out paging the catalog")
	case <-ctx.Done():
		return ctx.Err()
	}

	st := pager.Snapshot()
	if len(st.Items) == 0 {
		return nil
	}

	first := st.Items[0]
	detail, err := querycache.Get(ctx, cache,
		querycache.Key("car:"+first.ID),
		func(ctx context.Context) (car.Car, error) { return svc.GetCar(ctx, first.ID) },
		querycache.Options{Priority: querycache.PriorityHigh},
	)
	if err != nil {
		return err
	}
	fmt.Printf("detail: %s %s, %d miles\n", detail.Make, detail.Model, detail.Mileage)
	return nil
}

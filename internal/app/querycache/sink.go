package querycache

import "time"

// Sink receives one measurement per settled query or mutation, for latency
// and error-rate dashboards. Implementations are fire-and-forget; the cache
// recovers any panic so instrumentation can never affect control flow.
type Sink interface {
	// Track records a named value with labels such as kind, name, outcome.
	Track(name string, value float64, labels map[string]string)
}

// NopSink discards all measurements.
type NopSink struct{}

func (NopSink) Track(string, float64, map[string]string) {}

// emit reports a settled query or mutation to the sink.
func (c *Cache) emit(kind, name string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.safeTrack("datalayer_fetch_duration_ms", float64(elapsed.Milliseconds()), map[string]string{
		"kind":    kind,
		"name":    name,
		"outcome": outcome,
	})
}

// emitHit reports a cache lookup outcome.
func (c *Cache) emitHit(key Key, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.safeTrack("datalayer_cache_lookup", 1, map[string]string{
		"key":     string(key),
		"outcome": outcome,
	})
}

func (c *Cache) safeTrack(name string, value float64, labels map[string]string) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.WithField("panic", rec).Warn("metric sink panicked")
		}
	}()
	c.sink.Track(name, value, labels)
}

package fetch

import (
	"io"
	"testing"
	"time"

	"github.com/drivelane/datalayer/pkg/logger"
)

func testLogger() *logger.Logger {
	log := logger.NewDefault("fetch-test")
	log.SetOutput(io.Discard)
	return log
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type item struct {
	ID   string
	Name string
}

func itemKey(it item) string { return it.ID }

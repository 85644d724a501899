package system

import "context"

// Service represents a lifecycle-managed background component of the data
// layer (liveness monitor, cache sweeper, refresh scheduler). The application
// root starts and stops services deterministically through this interface.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

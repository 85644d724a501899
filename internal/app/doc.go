// Package app composes the Drivelane data layer into a running application.
//
// # Architecture Role
//
// The app package sits above the building blocks (backend client, fetch
// primitives, query cache, liveness, catalog) and is responsible for wiring
// them together with configuration and managing their lifecycle. It holds no
// business logic of its own.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── car/            # Car listings
//	│   ├── dealer/         # Dealer profiles
//	│   ├── review/         # Dealer reviews and rating summaries
//	│   └── lead/           # Purchase inquiries
//	├── fetch/              # Single-shot fetcher, operation runner, pager
//	├── querycache/         # Stale-while-revalidate query cache + scheduler
//	├── liveness/           # Connectivity/foreground hub and monitor
//	├── services/catalog/   # Typed catalog reads and lead submission
//	├── system/             # Service lifecycle interface and manager
//	└── metrics/            # Prometheus collectors and the cache sink
//
// # Responsibilities
//
//   - Building the backend client, optionally behind the resilient transport
//   - Constructing the query cache, scheduler, and liveness monitor from
//     configuration
//   - Registering every background component with the system manager so
//     startup and shutdown are deterministic
//
// Screen-level state (which fetchers and pagers exist, what they observe)
// belongs to the callers; the app package only provides the shared
// machinery they run on.
package app

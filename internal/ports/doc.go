// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [BulkExecutor]: Submits a batch to the document store and classifies
//     every item's outcome
//   - [ResultHandler]: Receives exactly one terminal outcome per operation
//   - [Metrics]: Records pipeline counters and latencies
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (HTTP bulk API, Kafka, Prometheus, zerolog).
package ports

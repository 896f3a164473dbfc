// Package gateway assembles the chatgirl-gateway server.
//
// # Overview
//
// The gateway wires the pipeline from configuration: the SQLite transcript
// ledger, the continuity cache, the per-sender rate limiter, the admission
// queue, the provider registry, and the dispatcher. It then serves the
// websocket chat surface and a health endpoint over HTTP.
//
// # Lifecycle
//
// New builds every component; Run serves until the context is cancelled
// and then performs a graceful shutdown with a five second deadline.
//
// # Endpoints
//
//   - /ws       websocket chat surface
//   - /healthz  liveness probe
package gateway

// Package dispatch is the admission-control core: a single-flight FIFO
// queue in front of the providers, and the dispatcher that orchestrates
// rate limiting, continuity, the provider round-trip, and reply delivery.
package dispatch

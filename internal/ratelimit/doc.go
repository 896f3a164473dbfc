// Package ratelimit enforces a per-sender question quota over a rolling
// interval so one chatty sender cannot monopolize the backend.
package ratelimit

// Package expiry provides a generic TTL-bounded key-value cache used for
// short-lived per-sender state such as continuation tokens, rate windows,
// and provider session tokens.
package expiry

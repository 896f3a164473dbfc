// Package store persists conversation transcripts in SQLite. The ledger is
// the durable record of questions and answers; the direct-API provider also
// replays it to rebuild conversation context for stateless backends.
package store

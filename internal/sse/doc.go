// Package sse decodes text/event-stream feeds incrementally, reassembling
// event frames that arrive split across network reads.
package sse

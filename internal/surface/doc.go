// Package surface exposes the gateway to chat clients over websockets.
//
// # Overview
//
// Each websocket connection is one chat client. Inbound frames are JSON
// questions; outbound frames are the dispatcher's replies and notices.
// Closing the socket cancels every request the connection has in flight
// or queued, so abandoned questions never reach the provider.
//
// # Wire Format
//
// Inbound:
//
//	{"sender_id": "u1", "display_name": "Ada", "text": "hello"}
//
// Outbound (exactly one field set):
//
//	{"reply": "..."}
//	{"error": "..."}
//	{"backlog_notice": 6}
//
// # Reply Formatting
//
// Replies pass through a Formatter before delivery. The "text" format
// forwards provider output verbatim; "html" renders it as Markdown.
package surface

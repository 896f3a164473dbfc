// Package continuity tracks per-sender, per-provider conversation
// continuation tokens so a follow-up question extends the same backend
// conversation until the session idles out.
package continuity

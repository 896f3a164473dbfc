// Package provider abstracts conversational-AI backends behind a single
// Converse interface. Implementations stream their answers internally over
// SSE and return only the fully assembled text.
package provider

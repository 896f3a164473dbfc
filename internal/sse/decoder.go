// ABOUTME: Incremental server-sent-event decoder fed with arbitrary byte chunks.
// ABOUTME: Emits one data payload per complete frame; network reads need not align with frames.

package sse

import (
	"bytes"
	"context"
	"io"
	"strings"
)

// Decoder reassembles server-sent events from a byte stream. Feed may be
// called with chunks split at any boundary; the sink is invoked once per
// complete event, in arrival order, with the event's data payload.
//
// Only the data field is interpreted. Comment lines and other fields
// (event, id, retry) are skipped; multi-line data fields are joined with
// a newline as the protocol requires.
type Decoder struct {
	sink func(data string)
	buf  []byte
	data []string
}

// NewDecoder creates a decoder that delivers decoded payloads to sink.
func NewDecoder(sink func(data string)) *Decoder {
	return &Decoder{sink: sink}
}

// Feed appends a chunk of raw bytes and dispatches any frames it completes.
func (d *Decoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		// Tolerate CRLF line endings.
		line = bytes.TrimSuffix(line, []byte("\r"))

		d.processLine(string(line))
	}
}

// processLine handles one complete line of the event stream.
func (d *Decoder) processLine(line string) {
	if line == "" {
		// Blank line terminates the frame.
		d.dispatch()
		return
	}

	if strings.HasPrefix(line, ":") {
		// Comment / keep-alive line.
		return
	}

	field, value := line, ""
	if i := strings.Index(line, ":"); i >= 0 {
		field = line[:i]
		value = line[i+1:]
		// A single leading space after the colon is part of the syntax.
		value = strings.TrimPrefix(value, " ")
	}

	if field == "data" {
		d.data = append(d.data, value)
	}
}

// dispatch delivers the accumulated frame, if it carried any data.
func (d *Decoder) dispatch() {
	if len(d.data) == 0 {
		return
	}
	payload := strings.Join(d.data, "\n")
	d.data = nil
	d.sink(payload)
}

// Close discards any unterminated trailing frame. Payloads that never saw
// their frame delimiter are dropped, matching stream-closure semantics.
func (d *Decoder) Close() {
	d.buf = nil
	d.data = nil
}

// Stream feeds the decoder from r until EOF or context cancellation,
// reading in transport-sized chunks. The underlying response body is
// expected to fail its Read promptly once ctx is cancelled.
func (d *Decoder) Stream(ctx context.Context, r io.Reader) error {
	defer d.Close()

	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			d.Feed(chunk[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// ABOUTME: Single-flight admission queue: one request in flight, strict FIFO behind it.
// ABOUTME: Emits a backlog signal on threshold crossings; past the hard ceiling it trades fairness for liveness.

package dispatch

import (
	"log/slog"
	"sync"
	"time"
)

// Outcome of submitting a request to the queue.
type Outcome int

const (
	// OutcomeDispatch means the queue was idle; the caller should process
	// the request now. This is the common low-latency path.
	OutcomeDispatch Outcome = iota

	// OutcomeQueued means a request is already in flight; this one waits
	// its FIFO turn and will be handed back by Complete.
	OutcomeQueued

	// OutcomeForced means the backlog blew past the hard ceiling: the
	// queue was cleared and the caller should process this request
	// immediately, even though an earlier one may still be in flight.
	OutcomeForced
)

// Submission describes what the queue did with a request.
type Submission struct {
	Outcome Outcome

	// Depth is the queue depth after an enqueue.
	Depth int

	// Notify is set when this enqueue crossed the backlog threshold; it
	// fires once per crossing, not on every deeper enqueue.
	Notify bool

	// Dropped counts entries discarded by an overflow clear.
	Dropped int
}

// queueEntry wraps a queued request with its enqueue time.
type queueEntry struct {
	req        *Request
	enqueuedAt time.Time
}

// QueueConfig sets the backlog thresholds.
type QueueConfig struct {
	// NotifyThreshold is the queue depth past which a backlog notice is
	// emitted. Zero disables notices.
	NotifyThreshold int

	// HardCeiling is the depth past which the queue is cleared and the
	// newest request force-dispatched. Zero defaults to twice the notify
	// threshold.
	HardCeiling int
}

// Queue serializes provider calls. At most one request occupies the
// processing slot; the slot and the queue are disjoint. The queue is
// global, not per sender, so ordering is the only fairness offered.
type Queue struct {
	mu         sync.Mutex
	entries    []*queueEntry
	processing *Request
	notify     int
	ceiling    int
	logger     *slog.Logger
}

// NewQueue creates a queue with the given thresholds.
func NewQueue(cfg QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ceiling := cfg.HardCeiling
	if ceiling <= 0 && cfg.NotifyThreshold > 0 {
		ceiling = cfg.NotifyThreshold * 2
	}
	return &Queue{
		notify:  cfg.NotifyThreshold,
		ceiling: ceiling,
		logger:  logger.With("component", "queue"),
	}
}

// Submit admits a request: straight into the processing slot when idle,
// onto the queue tail otherwise. Past the hard ceiling the backlog is
// dropped wholesale and the newest request wins the slot — a deliberate
// liveness-over-fairness tradeoff under pathological load.
func (q *Queue) Submit(req *Request) Submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing == nil && len(q.entries) == 0 {
		q.processing = req
		return Submission{Outcome: OutcomeDispatch}
	}

	if q.ceiling > 0 && len(q.entries)+1 > q.ceiling {
		dropped := len(q.entries)
		q.entries = nil
		q.processing = req
		q.logger.Warn("queue overflow, backlog cleared",
			"dropped", dropped,
			"request_id", req.ID,
		)
		return Submission{Outcome: OutcomeForced, Dropped: dropped}
	}

	q.entries = append(q.entries, &queueEntry{req: req, enqueuedAt: time.Now()})
	depth := len(q.entries)

	sub := Submission{Outcome: OutcomeQueued, Depth: depth}
	if q.notify > 0 && depth == q.notify+1 {
		sub.Notify = true
		q.logger.Info("backlog threshold crossed", "depth", depth)
	}
	return sub
}

// Complete releases the processing slot for req and promotes the queue
// head, returning it for the caller to process, or nil when the queue is
// empty. A completion for a request that no longer owns the slot (it was
// displaced by an overflow) is ignored.
func (q *Queue) Complete(req *Request) *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing != req {
		return nil
	}
	q.processing = nil

	if len(q.entries) == 0 {
		return nil
	}

	head := q.entries[0]
	q.entries = q.entries[1:]
	q.processing = head.req
	return head.req
}

// Depth returns the number of queued requests, excluding the processing
// slot.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Busy reports whether a request currently occupies the processing slot.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing != nil
}

// ABOUTME: Tests for the single-flight admission queue.
// ABOUTME: Validates the fast path, FIFO order, backlog notices, and the overflow clear.

package dispatch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(id string) *Request {
	return &Request{ID: id, SenderID: "u-" + id, Text: "question " + id}
}

func TestQueue_FastPath(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 5}, nil)

	sub := q.Submit(testRequest("r1"))

	assert.Equal(t, OutcomeDispatch, sub.Outcome)
	assert.True(t, q.Busy())
	assert.Equal(t, 0, q.Depth(), "the processing slot is not a queue member")
}

func TestQueue_FIFOPromotion(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 5}, nil)

	r1 := testRequest("r1")
	r2 := testRequest("r2")
	r3 := testRequest("r3")

	require.Equal(t, OutcomeDispatch, q.Submit(r1).Outcome)
	require.Equal(t, OutcomeQueued, q.Submit(r2).Outcome)
	require.Equal(t, OutcomeQueued, q.Submit(r3).Outcome)

	assert.Same(t, r2, q.Complete(r1))
	assert.Same(t, r3, q.Complete(r2))
	assert.Nil(t, q.Complete(r3))
	assert.False(t, q.Busy())
}

func TestQueue_CompleteEmptyGoesIdle(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 5}, nil)

	r1 := testRequest("r1")
	q.Submit(r1)

	assert.Nil(t, q.Complete(r1))
	assert.False(t, q.Busy())

	// Next submission takes the fast path again.
	assert.Equal(t, OutcomeDispatch, q.Submit(testRequest("r2")).Outcome)
}

func TestQueue_StaleCompleteIgnored(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 5}, nil)

	r1 := testRequest("r1")
	q.Submit(r1)

	assert.Nil(t, q.Complete(testRequest("other")))
	assert.True(t, q.Busy(), "a stale completion must not release the slot")
}

func TestQueue_BacklogNoticeOncePerCrossing(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 2, HardCeiling: 100}, nil)

	q.Submit(testRequest("processing"))

	notices := 0
	for i := 0; i < 5; i++ {
		sub := q.Submit(testRequest(fmt.Sprintf("r%d", i)))
		require.Equal(t, OutcomeQueued, sub.Outcome)
		if sub.Notify {
			notices++
			assert.Equal(t, 3, sub.Depth, "notice fires on the enqueue that crosses the threshold")
		}
	}

	assert.Equal(t, 1, notices)
}

func TestQueue_NoticeDisabledByZeroThreshold(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 0, HardCeiling: 100}, nil)

	q.Submit(testRequest("processing"))
	for i := 0; i < 10; i++ {
		assert.False(t, q.Submit(testRequest(fmt.Sprintf("r%d", i))).Notify)
	}
}

func TestQueue_OverflowClearsAndForceDispatches(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 5, HardCeiling: 10}, nil)

	inFlight := testRequest("in-flight")
	q.Submit(inFlight)

	notices := 0
	var last Submission
	var eleventh *Request
	for i := 1; i <= 11; i++ {
		req := testRequest(fmt.Sprintf("r%d", i))
		last = q.Submit(req)
		if last.Notify {
			notices++
			assert.Equal(t, 6, last.Depth)
		}
		if i == 11 {
			eleventh = req
		}
	}

	assert.Equal(t, 1, notices, "exactly one backlog notice")
	assert.Equal(t, OutcomeForced, last.Outcome)
	assert.Equal(t, 10, last.Dropped)
	assert.Equal(t, 0, q.Depth(), "the backlog is cleared wholesale")

	// The displaced in-flight request's completion is a no-op.
	assert.Nil(t, q.Complete(inFlight))
	assert.True(t, q.Busy(), "the forced request owns the slot")

	// The forced request completes normally.
	assert.Nil(t, q.Complete(eleventh))
	assert.False(t, q.Busy())
}

func TestQueue_DefaultCeilingIsTwiceThreshold(t *testing.T) {
	q := NewQueue(QueueConfig{NotifyThreshold: 3}, nil)

	q.Submit(testRequest("processing"))
	for i := 1; i <= 6; i++ {
		require.Equal(t, OutcomeQueued, q.Submit(testRequest(fmt.Sprintf("r%d", i))).Outcome)
	}

	sub := q.Submit(testRequest("overflow"))
	assert.Equal(t, OutcomeForced, sub.Outcome)
	assert.Equal(t, 6, sub.Dropped)
}

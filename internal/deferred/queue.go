// Package deferred holds requests that hit an authorization failure while a session
// renewal was already in flight, in arrival order, until the renewal settles.
//
// The queue is not safe for concurrent use on its own; the renewal coordinator
// serializes every call under its lock.
package deferred

import (
	"errors"

	"github.com/MrEthical07/goAdmin/internal/transport"
)

// ErrFull is returned by Enqueue when a bounded queue is at capacity.
var ErrFull = errors.New("deferred queue full")

// Outcome is the renewal result handed to every continuation on Drain.
// A nil Err means "replay now".
type Outcome struct {
	Err error
}

// Replay reports whether the held request should be replayed.
func (o Outcome) Replay() bool { return o.Err == nil }

// Continuation resumes one held request.
type Continuation func(d *transport.Descriptor, o Outcome)

type entry struct {
	desc *transport.Descriptor
	cont Continuation
}

// Queue is an insertion-ordered list of continuations.
type Queue struct {
	max     int
	entries []entry
}

// New returns an empty queue. max <= 0 means unbounded.
func New(max int) *Queue {
	return &Queue{max: max}
}

// Enqueue appends d and its continuation.
func (q *Queue) Enqueue(d *transport.Descriptor, cont Continuation) error {
	if q.max > 0 && len(q.entries) >= q.max {
		return ErrFull
	}
	q.entries = append(q.entries, entry{desc: d, cont: cont})
	return nil
}

// Len reports the number of held requests.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Detach moves every held entry into a new queue with the same bound and leaves
// q empty. The coordinator detaches under its lock and drains the result
// outside it.
func (q *Queue) Detach() *Queue {
	out := &Queue{max: q.max, entries: q.entries}
	q.entries = nil
	return out
}

// Drain empties the queue and invokes every continuation with o, in insertion order.
// No entry survives a Drain call. It returns the number of continuations invoked.
func (q *Queue) Drain(o Outcome) int {
	entries := q.entries
	q.entries = nil
	for _, e := range entries {
		e.cont(e.desc, o)
	}
	return len(entries)
}

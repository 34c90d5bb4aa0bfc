// Package deltaqueue implements an ordered queue of values that become due after a delay.
// Each entry stores its delay relative to the entry before it, rather than an absolute deadline, so the next value to become due is always the head,
// and letting time pass only requires updating the first entries of the queue.
//
// A Queue is not safe for concurrent use: it is meant to be owned by a single goroutine.
package deltaqueue

import (
	"time"
)

// Queue is an ordered queue of values with relative delays.
// The zero value is an empty queue ready to use.
type Queue[T any] struct {
	head *node[T]
	tail *node[T]
	n    int
}

type node[T any] struct {
	delay time.Duration
	value T
	next  *node[T]
}

// Len returns the number of entries in the queue.
func (q *Queue[T]) Len() int {
	return q.n
}

// Insert adds a value that becomes due after delay, measured from the instant the queue was last advanced to.
// Values inserted with the same delay as an existing entry are placed after it.
// Negative delays are treated as zero.
func (q *Queue[T]) Insert(delay time.Duration, value T) {
	remaining := max(delay, 0)
	add := &node[T]{value: value}

	var prev *node[T]
	for cur := q.head; cur != nil; prev, cur = cur, cur.next {
		if cur.delay > remaining {
			// Split cur's delay between the new node and cur
			cur.delay -= remaining
			add.delay = remaining
			add.next = cur
			if prev == nil {
				q.head = add
			} else {
				prev.next = add
			}
			q.n++
			return
		}

		remaining -= cur.delay
	}

	// Every entry is due before (or together with) the new one
	add.delay = remaining
	if q.tail == nil {
		q.head = add
	} else {
		q.tail.next = add
	}
	q.tail = add
	q.n++
}

// Peek returns the head of the queue and its remaining delay, without removing it.
func (q *Queue[T]) Peek() (delay time.Duration, value T, ok bool) {
	if q.head == nil {
		return 0, value, false
	}
	return q.head.delay, q.head.value, true
}

// Advance lets elapsed time pass.
// The time is debited from the head; if it's greater than the head's delay, the excess carries over to the entries that follow.
// Delays never become negative.
func (q *Queue[T]) Advance(elapsed time.Duration) {
	for cur := q.head; cur != nil && elapsed > 0; cur = cur.next {
		if cur.delay >= elapsed {
			cur.delay -= elapsed
			return
		}
		elapsed -= cur.delay
		cur.delay = 0
	}
}

// PopDue removes and returns all values at the head of the queue whose delay has reached zero, in order.
func (q *Queue[T]) PopDue() []T {
	var due []T
	for q.head != nil && q.head.delay <= 0 {
		v, _ := q.Pop()
		due = append(due, v)
	}
	return due
}

// Pop removes the head of the queue and returns its value, even if it is not due yet.
// The head's remaining delay is added to the next entry, so all other values keep their deadlines.
func (q *Queue[T]) Pop() (value T, ok bool) {
	h := q.head
	if h == nil {
		return value, false
	}

	q.head = h.next
	if q.head == nil {
		q.tail = nil
	} else {
		q.head.delay += h.delay
	}
	q.n--

	// Release the reference to the value
	value = h.value
	h.next = nil
	var zero T
	h.value = zero

	return value, true
}

// Deadlines returns, for each entry in order, the time remaining until it becomes due.
// This is the running sum of the relative delays.
func (q *Queue[T]) Deadlines() []time.Duration {
	res := make([]time.Duration, 0, q.n)
	var sum time.Duration
	for cur := q.head; cur != nil; cur = cur.next {
		sum += cur.delay
		res = append(res, sum)
	}
	return res
}

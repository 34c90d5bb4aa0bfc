package scheduler

import (
	"context"
	"time"
)

// Work is a unit of deferred behavior.
// It is invoked exactly once, by one of the executors, after the timeout it belongs to has expired.
type Work func(ctx context.Context)

// Timeout is a pending request to run work after a delay.
type Timeout struct {
	// Name is an optional label used in diagnostics.
	Name string

	work      Work
	delay     time.Duration
	createdAt time.Time
	expiry    time.Time
}

// Dispatch contains diagnostic information about a timeout that has expired and was handed to the executors.
type Dispatch struct {
	Name         string
	Delay        time.Duration
	SubmittedAt  time.Time
	ExpectedAt   time.Time
	DispatchedAt time.Time
}

// Drift returns how late the timeout was dispatched compared to its expected time.
// It is negative if the timeout was dispatched early.
func (d Dispatch) Drift() time.Duration {
	return d.DispatchedAt.Sub(d.ExpectedAt)
}

// Message for the dispatch channel
type dispatchItem struct {
	work Work
	info Dispatch
}

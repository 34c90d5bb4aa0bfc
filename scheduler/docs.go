// Package scheduler implements a scheduler for delayed work.
// Callers submit a unit of work together with a delay, and the scheduler hands the work to an executor no earlier than when the delay has elapsed.
//
// A single background goroutine, the timekeeper, owns the queue of pending timeouts, which is never shared with other goroutines.
// New submissions are sent to the timekeeper over a channel, which also interrupts its wait if it's sleeping until the next timeout expires.
// When a timeout expires, its work is sent over a second channel to a pool of executor goroutines, which run the work sequentially.
package scheduler

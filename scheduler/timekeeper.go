// This code was adapted from https://github.com/dapr/kit/tree/v0.15.4/
// Copyright (C) 2023 The Dapr Authors
// License: Apache2

package scheduler

import (
	"context"
	"log/slog"
	"time"

	kclock "k8s.io/utils/clock"

	"github.com/italypaleale/timekeeper/deltaqueue"
)

// runTimekeeper is the loop of the timekeeper goroutine.
// The queue is local to this goroutine: all other goroutines communicate with it over channels only.
//
// The delays in the queue are relative to lastSync, which is the last instant the queue was advanced to.
// Every time the goroutine wakes up, it debits the time elapsed since lastSync from the queue before doing anything else,
// so waiting on the head is never restarted from scratch when a new timeout arrives.
//
// Expired timeouts are moved to the ready list, and handed to the executors from the same select that receives new timeouts.
// The timekeeper never blocks on the dispatch channel alone, so work that submits new timeouts can't stall it.
func (s *Scheduler) runTimekeeper() {
	defer close(s.timekeeperRunningCh)

	var (
		queue    deltaqueue.Queue[*Timeout]
		ready    []dispatchItem
		lastSync time.Time
		now      time.Time
	)

	defer func() {
		n := queue.Len()
		if n > 0 {
			s.pending.Add(int64(-n))
			s.metrics.pending.Add(context.Background(), int64(-n))
		}
		if n > 0 || len(ready) > 0 {
			s.log.Warn("Scheduler stopped with pending timeouts, which were discarded",
				slog.Int("count", n),
				slog.Int("expired", len(ready)),
			)
		}
	}()

	for {
		// When there's nothing queued and nothing to hand over, there's nothing to do until a new timeout arrives
		if queue.Len() == 0 && len(ready) == 0 {
			select {
			case t := <-s.wakeCh:
				lastSync = s.clock.Now()
				s.enqueue(&queue, t, lastSync)
			case <-s.stopCh:
				return
			}
			continue
		}

		// Bring the queue up to date and move all timeouts that have expired to the ready list
		now = s.clock.Now()
		queue.Advance(s.elapsed(lastSync, now))
		lastSync = now
		due := queue.PopDue()
		if len(due) > 0 {
			s.pending.Add(int64(-len(due)))
			s.metrics.pending.Add(context.Background(), int64(-len(due)))
			for _, t := range due {
				ready = append(ready, s.expire(t))
			}
		}

		// While there's work ready, wait for room in the dispatch channel: the head can't be handed over before what's ahead of it
		// Otherwise, sleep until the head expires
		// In both cases, we're woken up by new timeouts too
		var (
			dispatchCh chan<- dispatchItem
			next       dispatchItem
			timer      kclock.Timer
			timerCh    <-chan time.Time
		)
		if len(ready) > 0 {
			dispatchCh = s.dispatchCh
			next = ready[0]
		} else {
			head, _, _ := queue.Peek()
			timer = s.clock.NewTimer(head)
			timerCh = timer.C()
		}

		select {
		case dispatchCh <- next:
			ready[0] = dispatchItem{}
			ready = ready[1:]
		case t := <-s.wakeCh:
			now = s.clock.Now()
			queue.Advance(s.elapsed(lastSync, now))
			lastSync = now
			s.enqueue(&queue, t, now)
		case <-timerCh:
			// Expired timeouts are collected at the top of the loop
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// enqueue adds a timeout to the queue, which must be synchronized to now.
// The time the timeout spent on the wake channel is debited from its delay.
func (s *Scheduler) enqueue(queue *deltaqueue.Queue[*Timeout], t *Timeout, now time.Time) {
	remaining := min(max(t.expiry.Sub(now), 0), t.delay)
	queue.Insert(remaining, t)

	s.pending.Add(1)
	s.metrics.pending.Add(context.Background(), 1)

	if s.log.Enabled(context.Background(), slog.LevelDebug) {
		s.log.Debug("Timeout added to the queue",
			slog.String("name", t.Name),
			slog.Duration("delay", t.delay),
			slog.Duration("remaining", remaining),
			slog.Int("queueLength", queue.Len()),
		)
	}
}

// elapsed returns the time elapsed between two instants.
// If the clock went backwards, the elapsed time is treated as zero: the queue is left as-is, rather than moved back in time.
func (s *Scheduler) elapsed(since time.Time, now time.Time) time.Duration {
	d := now.Sub(since)
	if d < 0 {
		s.log.Warn("Clock went backwards; ignoring the elapsed time", slog.Duration("skew", -d))
		return 0
	}
	return d
}

// expire returns the message for the executors for a timeout that has expired.
func (s *Scheduler) expire(t *Timeout) dispatchItem {
	item := dispatchItem{
		work: t.work,
		info: Dispatch{
			Name:         t.Name,
			Delay:        t.delay,
			SubmittedAt:  t.createdAt,
			ExpectedAt:   t.expiry,
			DispatchedAt: s.clock.Now(),
		},
	}
	t.work = nil

	s.metrics.recordDispatch(context.Background(), item.info)
	s.log.Debug("Timeout expired",
		slog.String("name", item.info.Name),
		slog.Time("expected", item.info.ExpectedAt),
		slog.Time("actual", item.info.DispatchedAt),
		slog.Duration("drift", item.info.Drift()),
	)

	return item
}

// This code was adapted from https://github.com/dapr/kit/tree/v0.15.4/
// Copyright (C) 2023 The Dapr Authors
// License: Apache2

// Package history keeps a record of the timeouts dispatched by the scheduler, so it's possible to look up when a named timeout fired and how far it drifted.
// Records are retained for a limited time, and expired records are periodically purged in background.
package history

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	kclock "k8s.io/utils/clock"

	"github.com/italypaleale/timekeeper/scheduler"
)

const (
	defaultRetention       = 15 * time.Minute
	defaultCleanupInterval = time.Minute
)

// History contains the last dispatch of each named timeout.
type History struct {
	m         *haxmap.Map[string, record]
	clock     kclock.WithTicker
	retention time.Duration
	stopped   atomic.Bool
	runningCh chan struct{}
	stopCh    chan struct{}
}

// Options are options for New.
type Options struct {
	// How long records are kept for.
	// This is optional, and defaults to 15 minutes.
	Retention time.Duration

	// Interval to purge expired records.
	// This is optional, and defaults to 1 minute.
	CleanupInterval time.Duration

	// Internal clock property, used for testing
	clock kclock.WithTicker
}

// New returns a new History and starts the background cleanup.
func New(opts *Options) *History {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.clock == nil {
		opts.clock = kclock.RealClock{}
	}

	h := &History{
		m:         haxmap.New[string, record](),
		clock:     opts.clock,
		retention: opts.Retention,
		stopCh:    make(chan struct{}),
	}
	h.startBackgroundCleanup(opts.CleanupInterval)

	return h
}

// Record stores the dispatch of a timeout, replacing any previous record with the same name.
// Timeouts without a name are not recorded.
// Its signature allows using it as scheduler.Options.OnDispatch.
func (h *History) Record(d scheduler.Dispatch) {
	if d.Name == "" {
		return
	}

	h.m.Set(d.Name, record{
		dispatch: d,
		exp:      h.clock.Now().Add(h.retention),
	})
}

// Get returns the last dispatch of the timeout with the given name.
func (h *History) Get(name string) (d scheduler.Dispatch, ok bool) {
	r, ok := h.m.Get(name)
	if !ok || !r.exp.After(h.clock.Now()) {
		return d, false
	}
	return r.dispatch, true
}

// List returns all records that haven't expired, sorted by dispatch time.
func (h *History) List() []scheduler.Dispatch {
	now := h.clock.Now()
	res := make([]scheduler.Dispatch, 0, h.m.Len())
	h.m.ForEach(func(_ string, r record) bool {
		if r.exp.After(now) {
			res = append(res, r.dispatch)
		}
		return true
	})

	slices.SortFunc(res, func(a, b scheduler.Dispatch) int {
		return a.DispatchedAt.Compare(b.DispatchedAt)
	})
	return res
}

// Len returns the number of records, including expired ones that haven't been purged yet.
func (h *History) Len() int {
	return int(h.m.Len())
}

// Cleanup removes all expired records.
func (h *History) Cleanup() {
	now := h.clock.Now()

	// Collect the expired keys and remove them in bulk
	// A record that is replaced after ForEach returns could be deleted nevertheless; it's acceptable to lose it
	keys := make([]string, 0)
	h.m.ForEach(func(k string, r record) bool {
		if !r.exp.After(now) {
			keys = append(keys, k)
		}
		return true
	})

	h.m.Del(keys...)
}

func (h *History) startBackgroundCleanup(d time.Duration) {
	h.runningCh = make(chan struct{})
	go func() {
		defer close(h.runningCh)

		t := h.clock.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-t.C():
				h.Cleanup()
			}
		}
	}()
}

// Stop the background cleanup.
func (h *History) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.runningCh
}

type record struct {
	dispatch scheduler.Dispatch
	exp      time.Time
}

// This code was adapted from https://github.com/dapr/kit/tree/v0.15.4/
// Copyright (C) 2023 The Dapr Authors
// License: Apache2

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	kclock "k8s.io/utils/clock"
)

const (
	defaultWakeBufferSize     = 1024
	defaultDispatchBufferSize = 64
)

// Options for NewScheduler.
type Options struct {
	// Number of executor goroutines.
	// If 0, defaults to 1, in which case work is executed in the order it's dispatched.
	Workers int

	// Capacity of the channel that carries new timeouts to the timekeeper.
	// When the channel is full, Submit blocks until the timekeeper receives from it.
	// Defaults to 1024.
	WakeBufferSize int

	// Capacity of the channel that carries expired work to the executors.
	// Defaults to 64.
	DispatchBufferSize int

	// Optional function invoked by the executor with diagnostic information, right before running the work of an expired timeout.
	OnDispatch func(Dispatch)

	// Logger; if nil, uses the default slog logger.
	Logger *slog.Logger

	// Meter used to record metrics; optional.
	Meter api.Meter

	// Tracer used to create a span for each executed work item.
	// If nil, uses the global tracer provider.
	Tracer trace.Tracer

	// Internal clock property, used for testing
	clock kclock.Clock
}

// Scheduler runs work after a delay.
type Scheduler struct {
	clock      kclock.Clock
	log        *slog.Logger
	tracer     trace.Tracer
	metrics    schedulerMetrics
	onDispatch func(Dispatch)

	wakeCh     chan *Timeout
	dispatchCh chan dispatchItem

	workerCount         int
	pending             atomic.Int64
	stopped             atomic.Bool
	stopCh              chan struct{}
	timekeeperRunningCh chan struct{}
	workers             sync.WaitGroup
	closeDispatchOnce   sync.Once
}

// NewScheduler returns a new Scheduler, starting its background goroutines.
// Callers must invoke Close to release the resources.
func NewScheduler(opts Options) (*Scheduler, error) {
	s, err := newScheduler(opts)
	if err != nil {
		return nil, err
	}

	s.start()
	return s, nil
}

func newScheduler(opts Options) (*Scheduler, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.WakeBufferSize <= 0 {
		opts.WakeBufferSize = defaultWakeBufferSize
	}
	if opts.DispatchBufferSize <= 0 {
		opts.DispatchBufferSize = defaultDispatchBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/italypaleale/timekeeper/scheduler")
	}
	if opts.clock == nil {
		opts.clock = kclock.RealClock{}
	}

	metrics, err := newSchedulerMetrics(opts.Meter)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		clock:               opts.clock,
		log:                 opts.Logger.With(slog.String("scope", "scheduler")),
		tracer:              opts.Tracer,
		metrics:             metrics,
		onDispatch:          opts.OnDispatch,
		workerCount:         opts.Workers,
		wakeCh:              make(chan *Timeout, opts.WakeBufferSize),
		dispatchCh:          make(chan dispatchItem, opts.DispatchBufferSize),
		stopCh:              make(chan struct{}),
		timekeeperRunningCh: make(chan struct{}),
	}, nil
}

func (s *Scheduler) start() {
	go s.runTimekeeper()
	for i := range s.workerCount {
		s.workers.Go(func() {
			s.runWorker(i)
		})
	}
}

// Submit schedules work to be executed after delay.
// Negative delays are treated as zero.
// It returns ErrSchedulerUnavailable if the scheduler has been closed.
func (s *Scheduler) Submit(work Work, delay time.Duration) error {
	_, err := s.Schedule("", work, delay)
	return err
}

// SubmitNamed is like Submit, but it also assigns a name to the timeout, which is included in the diagnostic information.
func (s *Scheduler) SubmitNamed(name string, work Work, delay time.Duration) error {
	_, err := s.Schedule(name, work, delay)
	return err
}

// Schedule is like SubmitNamed, but it also returns the instant the timeout is expected to expire at.
// This is the same value reported as ExpectedAt when the timeout is dispatched.
//
// When the wake channel is full, Schedule blocks until the timekeeper receives from it, or until the scheduler is closed.
func (s *Scheduler) Schedule(name string, work Work, delay time.Duration) (time.Time, error) {
	if work == nil {
		return time.Time{}, ErrNilWork
	}
	if s.stopped.Load() {
		return time.Time{}, ErrSchedulerUnavailable
	}

	delay = max(delay, 0)
	now := s.clock.Now()
	t := &Timeout{
		Name:      name,
		work:      work,
		delay:     delay,
		createdAt: now,
		expiry:    now.Add(delay),
	}

	select {
	case s.wakeCh <- t:
		s.metrics.submitted.Add(context.Background(), 1)
		return t.expiry, nil
	case <-s.stopCh:
		return time.Time{}, ErrSchedulerUnavailable
	}
}

// Pending returns the number of timeouts that are waiting to expire.
// Timeouts that were submitted but not yet received by the timekeeper are not included.
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}

// Close stops the scheduler.
// Timeouts that haven't expired yet are discarded, while work that was already dispatched is executed before Close returns.
// It is safe to call Close multiple times.
//
// Close must not be called from within work, as it waits for all executors to return: use Shutdown with the work's context instead.
func (s *Scheduler) Close() error {
	return s.Shutdown(context.Background())
}

// Shutdown stops the scheduler like Close, but it waits for the executors only until ctx is canceled, returning the context's error in that case.
//
// When ctx is (or derives from) the context passed to work by this scheduler, Shutdown stops the scheduler without waiting for the executors,
// since the caller is one of them.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stop()

	// Once the timekeeper has returned, nothing else can send on the dispatch channel
	<-s.timekeeperRunningCh
	s.closeDispatchOnce.Do(func() {
		close(s.dispatchCh)
	})

	if isWorkerContext(ctx, s) {
		return nil
	}

	workersDone := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(workersDone)
	}()

	select {
	case <-workersDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
}

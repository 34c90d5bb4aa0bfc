package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runWorker is the loop of an executor goroutine.
// It runs work from the dispatch channel, one item at a time, until the channel is closed.
func (s *Scheduler) runWorker(id int) {
	log := s.log.With(slog.Int("worker", id))

	for item := range s.dispatchCh {
		s.execute(log, item)
	}

	log.Debug("Dispatch channel closed, worker is stopping")
}

func (s *Scheduler) execute(log *slog.Logger, item dispatchItem) {
	s.notifyDispatch(log, item.info)

	ctx, span := s.tracer.Start(context.WithValue(context.Background(), workerContextKey{}, s), "timeout.execute",
		trace.WithAttributes(
			attribute.String("timeout.name", item.info.Name),
			attribute.Int64("timeout.delay_ms", item.info.Delay.Milliseconds()),
			attribute.Int64("timeout.drift_us", item.info.Drift().Microseconds()),
		),
	)
	defer span.End()

	// A panic in the work must not bring down the worker
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		s.metrics.failed.Add(ctx, 1)
		span.SetStatus(codes.Error, fmt.Sprintf("work panicked: %v", r))
		log.ErrorContext(ctx, "Work panicked while executing",
			slog.String("name", item.info.Name),
			slog.Any("panic", r),
		)
	}()

	item.work(ctx)
	s.metrics.executed.Add(ctx, 1)
}

// notifyDispatch invokes the OnDispatch hook.
// A panicking hook is logged, and the work runs regardless.
func (s *Scheduler) notifyDispatch(log *slog.Logger, info Dispatch) {
	if s.onDispatch == nil {
		return
	}

	defer func() {
		r := recover()
		if r != nil {
			log.Error("Dispatch hook panicked",
				slog.String("name", info.Name),
				slog.Any("panic", r),
			)
		}
	}()

	s.onDispatch(info)
}

type workerContextKey struct{}

// isWorkerContext returns true if ctx was passed to work by the scheduler s.
func isWorkerContext(ctx context.Context, s *Scheduler) bool {
	owner, _ := ctx.Value(workerContextKey{}).(*Scheduler)
	return owner == s
}

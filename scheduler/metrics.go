package scheduler

import (
	"context"
	"errors"
	"fmt"

	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type schedulerMetrics struct {
	submitted  api.Int64Counter
	dispatched api.Int64Counter
	executed   api.Int64Counter
	failed     api.Int64Counter
	pending    api.Int64UpDownCounter
	drift      api.Float64Histogram
}

func newSchedulerMetrics(meter api.Meter) (m schedulerMetrics, err error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	var errs [6]error
	m.submitted, errs[0] = meter.Int64Counter("timeouts.submitted",
		api.WithDescription("Number of timeouts submitted to the scheduler"),
		api.WithUnit("{timeout}"),
	)
	m.dispatched, errs[1] = meter.Int64Counter("timeouts.dispatched",
		api.WithDescription("Number of expired timeouts handed to the executors"),
		api.WithUnit("{timeout}"),
	)
	m.executed, errs[2] = meter.Int64Counter("timeouts.executed",
		api.WithDescription("Number of work items executed"),
		api.WithUnit("{timeout}"),
	)
	m.failed, errs[3] = meter.Int64Counter("timeouts.failed",
		api.WithDescription("Number of work items that panicked while executing"),
		api.WithUnit("{timeout}"),
	)
	m.pending, errs[4] = meter.Int64UpDownCounter("timeouts.pending",
		api.WithDescription("Number of timeouts waiting in the queue"),
		api.WithUnit("{timeout}"),
	)
	m.drift, errs[5] = meter.Float64Histogram("timeouts.drift",
		api.WithDescription("Difference between the actual and the expected dispatch time"),
		api.WithUnit("ms"),
		api.WithExplicitBucketBoundaries(-1, 0, 1, 2, 5, 10, 25, 50, 100, 250, 1000),
	)

	err = errors.Join(errs[:]...)
	if err != nil {
		return m, fmt.Errorf("failed to create metrics: %w", err)
	}
	return m, nil
}

func (m schedulerMetrics) recordDispatch(ctx context.Context, d Dispatch) {
	m.dispatched.Add(ctx, 1)
	m.drift.Record(ctx, float64(d.Drift().Microseconds())/1000)
}

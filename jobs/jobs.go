// Package jobs contains the definition of jobs that can be submitted to the scheduler from outside of the process, for example over HTTP or with files in a spool directory.
// A job logs a message when its delay has elapsed.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/italypaleale/timekeeper/scheduler"
)

// Submitter is the interface for the scheduler's submission API.
type Submitter interface {
	Schedule(name string, work scheduler.Work, delay time.Duration) (expectedAt time.Time, err error)
}

// Scheduled contains the details of a job that was submitted.
type Scheduled struct {
	Delay time.Duration
	// Instant the job is expected to run at, as computed by the scheduler
	ExpectedAt time.Time
}

// Spec is the definition of a job.
type Spec struct {
	// Name of the job
	Name string `json:"name"`
	// Delay after which the job runs, as a Go duration string such as "150ms" or "2m"
	Delay string `json:"delay"`
	// Message logged when the job runs
	Message string `json:"message,omitempty"`
}

// ParseDelay returns the job's delay.
func (s Spec) ParseDelay() (time.Duration, error) {
	if s.Delay == "" {
		return 0, errors.New("delay is empty")
	}

	d, err := time.ParseDuration(s.Delay)
	if err != nil {
		return 0, fmt.Errorf("invalid delay '%s': %w", s.Delay, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid delay '%s': must not be negative", s.Delay)
	}

	return d, nil
}

// Validate returns an error if the job is not valid.
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.New("name is empty")
	}
	if len(s.Name) > 200 {
		return errors.New("name is longer than 200 characters")
	}
	if strings.Contains(s.Name, "/") {
		return errors.New("name must not contain '/'")
	}

	_, err := s.ParseDelay()
	return err
}

// Submit validates the job and submits it to the scheduler.
func Submit(log *slog.Logger, submitter Submitter, spec Spec) (Scheduled, error) {
	err := spec.Validate()
	if err != nil {
		return Scheduled{}, fmt.Errorf("invalid job: %w", err)
	}
	delay, _ := spec.ParseDelay()

	expectedAt, err := submitter.Schedule(spec.Name, spec.work(log), delay)
	if err != nil {
		return Scheduled{}, fmt.Errorf("failed to submit job '%s': %w", spec.Name, err)
	}

	return Scheduled{
		Delay:      delay,
		ExpectedAt: expectedAt,
	}, nil
}

func (s Spec) work(log *slog.Logger) scheduler.Work {
	return func(ctx context.Context) {
		log.InfoContext(ctx, "Job executed",
			slog.String("name", s.Name),
			slog.String("delay", s.Delay),
			slog.String("message", s.Message),
		)
	}
}

package scheduler

import (
	"context"
	"fmt"
	"time"
)

//nolint:errcheck
func ExampleScheduler() {
	// Method invoked when work is executed
	executed := make(chan string, 3)
	work := func(name string) Work {
		return func(ctx context.Context) {
			executed <- "Executed: " + name
		}
	}

	// Create the scheduler
	s, err := NewScheduler(Options{})
	if err != nil {
		panic(err)
	}
	defer s.Close()

	// Submit work in any order; each one runs after its own delay
	_ = s.Submit(work("item1"), 300*time.Millisecond)
	_ = s.Submit(work("item2"), 100*time.Millisecond)
	_ = s.Submit(work("item3"), 200*time.Millisecond)

	for range 3 {
		fmt.Println(<-executed)
	}
	// Output:
	// Executed: item2
	// Executed: item3
	// Executed: item1
}

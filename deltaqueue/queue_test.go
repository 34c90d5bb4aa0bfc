package deltaqueue

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

// values pops every entry from the queue and returns the values in order.
func values[T any](q *Queue[T]) []T {
	res := make([]T, 0, q.Len())
	for {
		v, ok := q.Pop()
		if !ok {
			return res
		}
		res = append(res, v)
	}
}

func TestInsert(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		var q Queue[string]
		q.Insert(100*ms, "a")

		d, v, ok := q.Peek()
		require.True(t, ok)
		assert.Equal(t, 100*ms, d)
		assert.Equal(t, "a", v)
		assert.Equal(t, 1, q.Len())
	})

	t.Run("stores delays relative to the previous entry", func(t *testing.T) {
		var q Queue[string]
		q.Insert(200*ms, "a")
		q.Insert(50*ms, "b")
		q.Insert(100*ms, "c")

		assert.Equal(t, []time.Duration{50 * ms, 100 * ms, 200 * ms}, q.Deadlines())

		d, v, ok := q.Peek()
		require.True(t, ok)
		assert.Equal(t, 50*ms, d)
		assert.Equal(t, "b", v)

		// Relative delays are 50, 50, 100
		assert.Equal(t, 50*ms, q.head.next.delay)
		assert.Equal(t, 100*ms, q.head.next.next.delay)
		assert.Equal(t, []string{"b", "c", "a"}, values(&q))
	})

	t.Run("append at the end", func(t *testing.T) {
		var q Queue[string]
		q.Insert(10*ms, "a")
		q.Insert(30*ms, "b")
		q.Insert(60*ms, "c")

		assert.Equal(t, []time.Duration{10 * ms, 30 * ms, 60 * ms}, q.Deadlines())
		assert.Equal(t, 30*ms, q.tail.delay)
		assert.Equal(t, []string{"a", "b", "c"}, values(&q))
	})

	t.Run("ties keep arrival order", func(t *testing.T) {
		var q Queue[string]
		q.Insert(100*ms, "first")
		q.Insert(100*ms, "second")
		q.Insert(50*ms, "early")
		q.Insert(100*ms, "third")

		assert.Equal(t, []time.Duration{50 * ms, 100 * ms, 100 * ms, 100 * ms}, q.Deadlines())
		assert.Equal(t, []string{"early", "first", "second", "third"}, values(&q))
	})

	t.Run("negative delay is treated as zero", func(t *testing.T) {
		var q Queue[string]
		q.Insert(20*ms, "a")
		q.Insert(-5*ms, "b")

		assert.Equal(t, []time.Duration{0, 20 * ms}, q.Deadlines())
		assert.Equal(t, []string{"b"}, q.PopDue())
	})
}

func TestAdvance(t *testing.T) {
	t.Run("partial debit of the head", func(t *testing.T) {
		var q Queue[string]
		q.Insert(200*ms, "a")

		// Woken up 10ms into a 200ms wait, then a 20ms timeout arrives
		q.Advance(10 * ms)
		d, _, _ := q.Peek()
		assert.Equal(t, 190*ms, d)

		q.Insert(20*ms, "b")
		assert.Equal(t, []time.Duration{20 * ms, 190 * ms}, q.Deadlines())
		assert.Equal(t, 170*ms, q.tail.delay)
	})

	t.Run("excess carries over", func(t *testing.T) {
		var q Queue[string]
		q.Insert(10*ms, "a")
		q.Insert(30*ms, "b")
		q.Insert(60*ms, "c")

		q.Advance(35 * ms)
		assert.Equal(t, []time.Duration{0, 0, 25 * ms}, q.Deadlines())
		assert.Equal(t, []string{"a", "b"}, q.PopDue())
		assert.Equal(t, []time.Duration{25 * ms}, q.Deadlines())
	})

	t.Run("more than everything", func(t *testing.T) {
		var q Queue[string]
		q.Insert(10*ms, "a")
		q.Insert(20*ms, "b")

		q.Advance(time.Second)
		assert.Equal(t, []time.Duration{0, 0}, q.Deadlines())
		assert.Equal(t, []string{"a", "b"}, q.PopDue())
		assert.Equal(t, 0, q.Len())
	})

	t.Run("empty queue and zero elapsed", func(t *testing.T) {
		var q Queue[string]
		q.Advance(time.Second)
		assert.Equal(t, 0, q.Len())

		q.Insert(10*ms, "a")
		q.Advance(0)
		q.Advance(-time.Second)
		assert.Equal(t, []time.Duration{10 * ms}, q.Deadlines())
	})
}

func TestPop(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var q Queue[int]
		_, ok := q.Pop()
		assert.False(t, ok)
		_, _, ok = q.Peek()
		assert.False(t, ok)
		assert.Empty(t, q.PopDue())
	})

	t.Run("early pop keeps the other deadlines", func(t *testing.T) {
		var q Queue[int]
		q.Insert(40*ms, 1)
		q.Insert(70*ms, 2)

		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, []time.Duration{70 * ms}, q.Deadlines())
	})

	t.Run("queue can be reused after being emptied", func(t *testing.T) {
		var q Queue[int]
		q.Insert(0, 1)
		assert.Equal(t, []int{1}, q.PopDue())
		assert.Nil(t, q.head)
		assert.Nil(t, q.tail)

		q.Insert(5*ms, 2)
		q.Insert(1*ms, 3)
		assert.Equal(t, []int{3, 2}, values(&q))
	})

	t.Run("pop due stops at the first pending entry", func(t *testing.T) {
		var q Queue[int]
		q.Insert(0, 1)
		q.Insert(0, 2)
		q.Insert(1*ms, 3)

		assert.Equal(t, []int{1, 2}, q.PopDue())
		assert.Equal(t, 1, q.Len())
	})
}

// TestPrefixSumInvariant checks the queue against a model that keeps absolute deadlines, under a random sequence of inserts and advances.
func TestPrefixSumInvariant(t *testing.T) {
	type modelEntry struct {
		deadline time.Duration
		id       int
	}

	for seed := range uint64(20) {
		rnd := rand.New(rand.NewPCG(seed, 42))

		var (
			q     Queue[int]
			model []modelEntry
			next  int
		)
		for range 300 {
			switch rnd.IntN(3) {
			case 0, 1:
				delay := time.Duration(rnd.IntN(50)) * ms
				q.Insert(delay, next)

				// Insert after every entry due at the same time or earlier
				idx := len(model)
				for i, e := range model {
					if e.deadline > delay {
						idx = i
						break
					}
				}
				model = slices.Insert(model, idx, modelEntry{deadline: delay, id: next})
				next++
			case 2:
				elapsed := time.Duration(rnd.IntN(30)) * ms
				q.Advance(elapsed)
				for i := range model {
					model[i].deadline = max(model[i].deadline-elapsed, 0)
				}
			}

			expect := make([]time.Duration, len(model))
			for i, e := range model {
				expect[i] = e.deadline
			}
			require.Equal(t, expect, q.Deadlines(), "seed %d", seed)
		}

		ids := make([]int, len(model))
		for i, e := range model {
			ids[i] = e.id
		}
		require.Equal(t, ids, values(&q), "seed %d", seed)
	}
}

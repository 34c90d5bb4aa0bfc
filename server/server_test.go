package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italypaleale/timekeeper/history"
	"github.com/italypaleale/timekeeper/httpserver"
	"github.com/italypaleale/timekeeper/scheduler"
)

type fakeScheduler struct {
	lock    sync.Mutex
	names   []string
	delays  []time.Duration
	err     error
	pending int
}

var fakeNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func (f *fakeScheduler) Schedule(name string, _ scheduler.Work, delay time.Duration) (time.Time, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.err != nil {
		return time.Time{}, f.err
	}
	f.names = append(f.names, name)
	f.delays = append(f.delays, delay)
	return fakeNow.Add(delay), nil
}

func (f *fakeScheduler) Pending() int {
	return f.pending
}

func newTestServer(t *testing.T, sched Scheduler, hist History) *Server {
	t.Helper()

	srv, err := New(Options{
		Scheduler:   sched,
		History:     hist,
		Logger:      slog.New(slog.DiscardHandler),
		HostID:      "test-host",
		MaxBodySize: 1024,
	})
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, reqBody))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpserver.ApiError {
	t.Helper()

	var res httpserver.ApiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestNew(t *testing.T) {
	_, err := New(Options{History: history.New(nil)})
	require.ErrorContains(t, err, "scheduler is required")

	_, err = New(Options{Scheduler: &fakeScheduler{}})
	require.ErrorContains(t, err, "history is required")
}

func TestSubmit(t *testing.T) {
	hist := history.New(nil)
	t.Cleanup(hist.Stop)

	t.Run("accepted", func(t *testing.T) {
		sched := &fakeScheduler{}
		srv := newTestServer(t, sched, hist)

		rec := doRequest(t, srv, http.MethodPost, "/timeouts", `{"name":"job1","delay":"150ms","message":"hi"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "test-host", rec.Header().Get(httpserver.HeaderXHostID))

		var res submitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "job1", res.Name)
		assert.Equal(t, "150ms", res.Delay)
		assert.True(t, fakeNow.Add(150*time.Millisecond).Equal(res.ExpectedAt))

		assert.Equal(t, []string{"job1"}, sched.names)
		assert.Equal(t, []time.Duration{150 * time.Millisecond}, sched.delays)
	})

	t.Run("invalid body", func(t *testing.T) {
		sched := &fakeScheduler{}
		srv := newTestServer(t, sched, hist)

		rec := doRequest(t, srv, http.MethodPost, "/timeouts", `{"name":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_BODY", decodeError(t, rec).Code)

		rec = doRequest(t, srv, http.MethodPost, "/timeouts", `{"name":"a","delay":"1s","foo":1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_BODY", decodeError(t, rec).Code)

		assert.Empty(t, sched.names)
	})

	t.Run("body too large", func(t *testing.T) {
		srv := newTestServer(t, &fakeScheduler{}, hist)

		body := fmt.Sprintf(`{"name":"a","delay":"1s","message":"%s"}`, strings.Repeat("x", 2048))
		rec := doRequest(t, srv, http.MethodPost, "/timeouts", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_BODY", decodeError(t, rec).Code)
	})

	t.Run("invalid job", func(t *testing.T) {
		sched := &fakeScheduler{}
		srv := newTestServer(t, sched, hist)

		rec := doRequest(t, srv, http.MethodPost, "/timeouts", `{"name":"a","delay":"-1s"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		res := decodeError(t, rec)
		assert.Equal(t, "INVALID_JOB", res.Code)
		assert.Contains(t, res.InnerError, "must not be negative")

		rec = doRequest(t, srv, http.MethodPost, "/timeouts", `{"name":"a/b","delay":"1s"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).InnerError, "must not contain '/'")

		rec = doRequest(t, srv, http.MethodPost, "/timeouts", `{"delay":"1s"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_JOB", decodeError(t, rec).Code)

		assert.Empty(t, sched.names)
	})

	t.Run("scheduler unavailable", func(t *testing.T) {
		srv := newTestServer(t, &fakeScheduler{err: scheduler.ErrSchedulerUnavailable}, hist)

		rec := doRequest(t, srv, http.MethodPost, "/timeouts", `{"name":"a","delay":"1s"}`)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "SCHEDULER_UNAVAILABLE", decodeError(t, rec).Code)
	})
}

func TestDispatches(t *testing.T) {
	hist := history.New(nil)
	t.Cleanup(hist.Stop)

	now := time.Now()
	hist.Record(scheduler.Dispatch{
		Name:         "first",
		Delay:        time.Second,
		SubmittedAt:  now.Add(-time.Second),
		ExpectedAt:   now,
		DispatchedAt: now.Add(1500 * time.Microsecond),
	})
	hist.Record(scheduler.Dispatch{
		Name:         "second",
		Delay:        2 * time.Second,
		SubmittedAt:  now.Add(-time.Second),
		ExpectedAt:   now.Add(time.Second),
		DispatchedAt: now.Add(time.Second),
	})

	srv := newTestServer(t, &fakeScheduler{}, hist)

	t.Run("list", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/timeouts", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var res []dispatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Len(t, res, 2)
		assert.Equal(t, "first", res[0].Name)
		assert.Equal(t, "second", res[1].Name)
	})

	t.Run("get", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/timeouts/first", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var res dispatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "first", res.Name)
		assert.Equal(t, "1s", res.Delay)
		assert.InDelta(t, 1.5, res.DriftMs, 0.001)
	})

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/timeouts/nope", "")
		require.Equal(t, http.StatusNotFound, rec.Code)

		res := decodeError(t, rec)
		assert.Equal(t, "NOT_FOUND", res.Code)
		assert.Equal(t, map[string]string{"name": "nope"}, res.Metadata)
	})
}

func TestHealthz(t *testing.T) {
	hist := history.New(nil)
	t.Cleanup(hist.Stop)

	srv := newTestServer(t, &fakeScheduler{pending: 3}, hist)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","pending":3}`, rec.Body.String())
}

func TestRun(t *testing.T) {
	hist := history.New(nil)
	t.Cleanup(hist.Stop)

	sched, err := scheduler.NewScheduler(scheduler.Options{
		OnDispatch: hist.Record,
		Logger:     slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })

	srv := newTestServer(t, sched, hist)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run(ctx, ln)
	}()

	baseURL := "http://" + ln.Addr().String()
	res, err := http.Post(baseURL+"/timeouts", "application/json", strings.NewReader(`{"name":"e2e","delay":"10ms"}`)) //nolint:noctx
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	var submitted submitResponse
	err = json.NewDecoder(res.Body).Decode(&submitted)
	_ = res.Body.Close()
	require.NoError(t, err)

	// The expected time in the response is the one the scheduler reports when dispatching
	require.EventuallyWithT(t, func(c *assert.CollectT) {
		res, err := http.Get(baseURL + "/timeouts/e2e") //nolint:noctx
		if !assert.NoError(c, err) {
			return
		}
		defer res.Body.Close()
		if !assert.Equal(c, http.StatusOK, res.StatusCode) {
			return
		}

		var d dispatchResponse
		if assert.NoError(c, json.NewDecoder(res.Body).Decode(&d)) {
			assert.True(c, submitted.ExpectedAt.Equal(d.ExpectedAt))
		}
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err = <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the context was canceled")
	}
}

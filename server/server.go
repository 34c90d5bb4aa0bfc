// Package server contains the HTTP API of timekeeperd.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/italypaleale/timekeeper/httpserver"
	"github.com/italypaleale/timekeeper/jobs"
	"github.com/italypaleale/timekeeper/scheduler"
)

const shutdownTimeout = 5 * time.Second

// Scheduler is the interface for the scheduler used by the server.
type Scheduler interface {
	jobs.Submitter
	Pending() int
}

// History is the interface for the dispatch history used by the server.
type History interface {
	Get(name string) (scheduler.Dispatch, bool)
	List() []scheduler.Dispatch
}

// Options for New.
type Options struct {
	Scheduler Scheduler
	History   History
	// Logger; if nil, uses the default slog logger
	Logger *slog.Logger
	// Value for the X-Host-Id response header; optional
	HostID string
	// Maximum size of request bodies, in bytes
	MaxBodySize int64
}

// Server is the HTTP API server.
type Server struct {
	scheduler Scheduler
	history   History
	log       *slog.Logger
	handler   http.Handler
}

// New returns a new Server.
func New(opts Options) (*Server, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.History == nil {
		return nil, errors.New("history is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 64 << 10
	}

	s := &Server{
		scheduler: opts.Scheduler,
		history:   opts.History,
		log:       opts.Logger.With(slog.String("scope", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /timeouts", s.handleSubmit)
	mux.HandleFunc("GET /timeouts", s.handleList)
	mux.HandleFunc("GET /timeouts/{name}", s.handleGet)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	middlewares := []httpserver.Middleware{
		httpserver.MiddlewareMaxBodySize(opts.MaxBodySize),
		httpserver.MiddlewareRequestLogger(s.log),
	}
	if opts.HostID != "" {
		middlewares = append(middlewares, httpserver.MiddlewareHostIDHeader(opts.HostID))
	}
	s.handler = httpserver.Use(mux, middlewares...)

	return s, nil
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves the API on the listener until the context is canceled, then shuts the server down.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext: func(_ net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.InfoContext(ctx, "HTTP server started", slog.String("addr", ln.Addr().String()))
		err := srv.Serve(ln)
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("error running HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.log.InfoContext(ctx, "HTTP server stopped")

	return <-serveErr
}

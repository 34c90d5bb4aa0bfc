package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/italypaleale/timekeeper/httpserver"
	"github.com/italypaleale/timekeeper/jobs"
	"github.com/italypaleale/timekeeper/scheduler"
)

type submitResponse struct {
	Name       string    `json:"name"`
	Delay      string    `json:"delay"`
	ExpectedAt time.Time `json:"expectedAt"`
}

type dispatchResponse struct {
	Name         string    `json:"name"`
	Delay        string    `json:"delay"`
	SubmittedAt  time.Time `json:"submittedAt"`
	ExpectedAt   time.Time `json:"expectedAt"`
	DispatchedAt time.Time `json:"dispatchedAt"`
	DriftMs      float64   `json:"driftMs"`
}

func newDispatchResponse(d scheduler.Dispatch) dispatchResponse {
	return dispatchResponse{
		Name:         d.Name,
		Delay:        d.Delay.String(),
		SubmittedAt:  d.SubmittedAt,
		ExpectedAt:   d.ExpectedAt,
		DispatchedAt: d.DispatchedAt,
		DriftMs:      float64(d.Drift().Microseconds()) / 1000,
	}
}

type healthzResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var spec jobs.Spec
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&spec)
	if err != nil {
		errInvalidBody.Clone(httpserver.WithInnerError(err)).WriteResponse(w, r)
		return
	}

	err = spec.Validate()
	if err != nil {
		errInvalidJob.Clone(httpserver.WithInnerError(err)).WriteResponse(w, r)
		return
	}

	res, err := jobs.Submit(s.log, s.scheduler, spec)
	switch {
	case errors.Is(err, scheduler.ErrSchedulerUnavailable):
		errSchedulerUnavailable.WriteResponse(w, r)
		return
	case err != nil:
		s.log.ErrorContext(r.Context(), "Failed to submit job", slog.String("name", spec.Name), slog.Any("error", err))
		errInternal.WriteResponse(w, r)
		return
	}

	httpserver.RespondWithStatus(w, r, http.StatusAccepted, submitResponse{
		Name:       spec.Name,
		Delay:      res.Delay.String(),
		ExpectedAt: res.ExpectedAt,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list := s.history.List()
	res := make([]dispatchResponse, len(list))
	for i, d := range list {
		res[i] = newDispatchResponse(d)
	}

	httpserver.RespondWithJSON(w, r, res)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	d, ok := s.history.Get(name)
	if !ok {
		errTimeoutNotFound.Clone(httpserver.WithMetadata(map[string]string{"name": name})).WriteResponse(w, r)
		return
	}

	httpserver.RespondWithJSON(w, r, newDispatchResponse(d))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httpserver.RespondWithJSON(w, r, healthzResponse{
		Status:  "ok",
		Pending: s.scheduler.Pending(),
	})
}

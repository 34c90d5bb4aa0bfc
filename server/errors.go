package server

import (
	"net/http"

	"github.com/italypaleale/timekeeper/httpserver"
)

var (
	errInvalidBody          = httpserver.NewApiError("INVALID_BODY", http.StatusBadRequest, "Request body is not valid JSON")
	errInvalidJob           = httpserver.NewApiError("INVALID_JOB", http.StatusBadRequest, "Job is not valid")
	errTimeoutNotFound      = httpserver.NewApiError("NOT_FOUND", http.StatusNotFound, "No dispatch recorded for the timeout")
	errSchedulerUnavailable = httpserver.NewApiError("SCHEDULER_UNAVAILABLE", http.StatusServiceUnavailable, "Scheduler is not accepting new timeouts")
	errInternal             = httpserver.NewApiError("INTERNAL", http.StatusInternalServerError, "Internal error")
)

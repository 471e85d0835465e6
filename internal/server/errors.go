package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned before the response was ready.
const statusClientClosedRequest = 499

// writeServiceError maps domain errors to a status and a client-facing
// message. Anything unrecognised is a 500 with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := http.StatusInternalServerError, "Internal server error"

	switch {
	case errors.Is(err, radioguessr.ErrInvalidRound):
		status, msg = http.StatusBadRequest, "Invalid round_id"
	case errors.Is(err, radioguessr.ErrInvalidCoordinates):
		status, msg = http.StatusBadRequest, "Invalid coordinates"
	case errors.Is(err, radioguessr.ErrInsufficientCoverage):
		status, msg = http.StatusServiceUnavailable, "Unable to find region with enough stations, please try again."
	case errors.Is(err, radioguessr.ErrEmptyCatalog):
		status, msg = http.StatusServiceUnavailable, "Station catalog unavailable, please try again later."
	case errors.Is(err, radioguessr.ErrClipFetchFailed):
		msg = "Failed to fetch audio clip"
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Nobody reads the body; the status is for the access log.
		logger.Debug("request cancelled", "path", r.URL.Path)
		writeError(w, statusClientClosedRequest, "client closed request")
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, msg)
}

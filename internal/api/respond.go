package api

import (
	"encoding/json"
	"net/http"

	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("encode response")
	}
}

// writeError translates a domain error kind into an HTTP status. Internal
// details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	msg := domain.Message(err)
	if status == http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("event", "api.internal_error").
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: string(kind)})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotRegistered:
		return http.StatusUnauthorized
	case domain.KindNotAuthorized:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindAlreadyRegistered:
		return http.StatusConflict
	case domain.KindInvalidRequest, domain.KindInvalidMnemonic:
		return http.StatusBadRequest
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

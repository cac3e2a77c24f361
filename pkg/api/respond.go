package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"orderflow/pkg/order"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeRepoError maps a repository failure to a response. Internal details
// are logged, never returned.
func (h *handlers) writeRepoError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request timeout")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidIndex), errors.Is(err, order.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(r.Context(), op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Package http exposes the client session as a local JSON API so that a UI
// process can drive the cart, bookmarks, address flow and checkout.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/atinyakov/GophFood/internal/client/remote"
	"github.com/atinyakov/GophFood/internal/service"
)

const (
	defaultWatchTimeout = 30 * time.Second
	maxWatchTimeout     = 2 * time.Minute
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a service error onto a status code:
// validation 422, permission or unverified account 403, missing remote 503,
// rejected credentials or expired session 401 and any other remote
// failure 502.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var remoteErr *remote.Error
	var orderErr *service.OrderError
	var unverified *service.UnverifiedError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrPermissionDenied), errors.As(err, &unverified):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrSessionExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNoRemote):
		status = http.StatusServiceUnavailable
	case errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusUnauthorized:
		status = http.StatusUnauthorized
	case errors.As(err, &orderErr), errors.As(err, &remoteErr):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return false
	}
	return true
}

// watch long-polls a subscription: it answers 200 with the first snapshot
// published after the request arrived, or 204 when the timeout elapses.
func watch[T any](w http.ResponseWriter, r *http.Request, subscribe func() (<-chan T, func()), render func(T) any) {
	timeout := defaultWatchTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			http.Error(w, "invalid timeout", http.StatusBadRequest)
			return
		}
		timeout = min(d, maxWatchTimeout)
	}

	ch, cancel := subscribe()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v, ok := <-ch:
		if !ok {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, render(v))
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
	}
}

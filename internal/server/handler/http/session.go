package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/atinyakov/GophFood/internal/models"
	"github.com/atinyakov/GophFood/internal/service"
)

// SessionService defines the sign-in operations required by SessionHandler.
type SessionService interface {
	// Identity returns the signed-in user, empty when signed out.
	Identity() models.AuthIdentity
	// SignIn authenticates against the remote service and hydrates the
	// cart and bookmarks.
	SignIn(ctx context.Context, username, password string) (models.AuthIdentity, error)
	// SignOut forgets the identity and clears local state.
	SignOut(ctx context.Context) error
	// Refresh reloads the cart and bookmarks from the remote service.
	Refresh(ctx context.Context) error
}

// SessionHandler handles HTTP requests for login, logout and refresh.
type SessionHandler struct {
	Session SessionService
}

// LoginRequest represents the JSON payload for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// identityResponse never carries the bearer token.
type identityResponse struct {
	ID            string `json:"_id,omitempty"`
	Username      string `json:"username,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// unverifiedResponse tells the UI where the verification code was sent.
type unverifiedResponse struct {
	Error string `json:"error"`
	Email string `json:"email,omitempty"`
}

func newIdentityResponse(id models.AuthIdentity) identityResponse {
	return identityResponse{ID: id.ID, Username: id.Username, Authenticated: id.Authenticated()}
}

// Login handles POST /api/login.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.Session.SignIn(r.Context(), req.Username, req.Password)
	var unverified *service.UnverifiedError
	if errors.As(err, &unverified) {
		writeJSON(w, http.StatusForbidden, unverifiedResponse{Error: err.Error(), Email: unverified.Email})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newIdentityResponse(id))
}

// Logout handles POST /api/logout.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.SignOut(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me.
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newIdentityResponse(h.Session.Identity()))
}

// Refresh handles POST /api/refresh.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

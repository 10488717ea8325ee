package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/GophFood/internal/models"
)

// AccountService defines the sign-up operations required by AccountHandler.
type AccountService interface {
	Register(ctx context.Context, reg models.Registration) (string, error)
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	ResendOTP(ctx context.Context, email string) (string, error)
	LookupUser(ctx context.Context, username string) (models.UserProfile, error)
}

// AccountHandler handles HTTP requests for registration and email
// verification.
type AccountHandler struct {
	Accounts AccountService
}

// VerifyRequest carries the emailed code. Code is ignored by resend.
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"otp"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /api/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.Accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: msg})
}

// Verify handles POST /api/verify-otp.
func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.Accounts.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// Resend handles POST /api/resend-otp.
func (h *AccountHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.Accounts.ResendOTP(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// Lookup handles GET /api/users/{username}.
func (h *AccountHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Accounts.LookupUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

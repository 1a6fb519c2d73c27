package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-email-verification/internal/application/verification"
	"github.com/go-email-verification/internal/domain"
	"github.com/go-email-verification/internal/pkg/validate"
)

const (
	msgLinkSent      = "If the email exists, a verification link was sent."
	msgEmailRequired = "Email required."
	msgTokenRequired = "Token required."
	msgVerified      = "Email verified."
	msgInvalidToken  = "Invalid token."
	msgTokenExpired  = "Token expired."
	msgInternal      = "Internal server error."
)

// VerificationHandler exposes issuance and redemption of verification tokens.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// Send answers 201 with the same body for every outcome except a missing email.
func (h *VerificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestVerificationRequest
	// A body that does not decode carries no email.
	_ = json.NewDecoder(r.Body).Decode(&req)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, msgEmailRequired)
		return
	}

	if err := h.svc.RequestVerification(r.Context(), req.Email); err != nil {
		if errors.Is(err, domain.ErrMissingInput) {
			writeError(w, http.StatusBadRequest, msgEmailRequired)
			return
		}
		slog.Error("request verification", "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: msgLinkSent})
}

// Verify redeems a token. Fresh and repeated redemptions look the same to
// the caller.
func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.RedeemTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	req.Token = strings.TrimSpace(req.Token)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, msgTokenRequired)
		return
	}

	_, err := h.svc.RedeemToken(r.Context(), req.Token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: msgVerified})
	case errors.Is(err, domain.ErrMissingInput):
		writeError(w, http.StatusBadRequest, msgTokenRequired)
	case errors.Is(err, domain.ErrTokenExpired):
		writeError(w, http.StatusBadRequest, msgTokenExpired)
	case errors.Is(err, domain.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, msgInvalidToken)
	default:
		slog.Error("redeem verification token", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/auth/application"
	"atelier/internal/service/auth/domain"
)

// AuthHandler exposes login, refresh and logout.
type AuthHandler struct {
	tokens *application.TokenService
}

func NewAuthHandler(tokens *application.TokenService) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/refresh", h.refresh)
	mux.HandleFunc("POST /auth/logout", h.logout)
}

type loginPayload struct {
	AccountID string `json:"accountId"`
}

type refreshPayload struct {
	RefreshToken string `json:"refreshToken"`
}

// login trades an account identity for a token pair. Credential checking is
// upstream of this service; the identity arrives already verified.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.AccountID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pair, err := h.tokens.Issue(r.Context(), payload.AccountID)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, pair)
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.RefreshToken == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pair, err := h.tokens.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, pair)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.RefreshToken == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.tokens.Revoke(r.Context(), payload.RefreshToken); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.Ctx(ctx).Warn().Err(err).Msg("auth request failed")
	switch {
	case errors.Is(err, domain.ErrExpiredToken),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrRevoked):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

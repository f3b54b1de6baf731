package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dvcrn/gymapp-client/internal/credentials"
	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/go-playground/validator/v10"
)

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionStatus struct {
	Store           string     `json:"store"`
	HasCredentials  bool       `json:"has_credentials"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	Refreshing      bool       `json:"refreshing"`
	IsExpired       bool       `json:"is_expired"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// sessionHandler handles POST /session (sign-in) and DELETE /session (sign-out).
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.signIn(w, r)
	case http.MethodDelete:
		if err := s.client.SignOut(r.Context()); err != nil {
			logger.Get().Error().Err(err).Msg("Failed to sign out")
			writeError(w, http.StatusInternalServerError, "Failed to sign out")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to decode sign-in request")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			writeError(w, http.StatusBadRequest, "Field "+validationErrors[0].Field()+" failed on rule: "+validationErrors[0].Tag())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.client.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeClientError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    session.User,
	})
}

// sessionStatusHandler handles GET /session/status
func (s *Server) sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	store := s.client.Store()
	status := sessionStatus{
		Store:      store.Name(),
		Refreshing: s.client.Refreshing(),
	}

	pair, err := store.Get(r.Context())
	switch {
	case errors.Is(err, credentials.ErrNotFound):
	case err != nil:
		status.Error = err.Error()
	default:
		status.HasCredentials = true
		status.HasRefreshToken = pair.RefreshToken != ""
		if exp, ok := pair.AccessExpiry(); ok {
			exp = exp.UTC()
			status.ExpiresAt = &exp
			status.IsExpired = time.Now().After(exp)
		}
	}

	writeJSON(w, http.StatusOK, status)
}

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dvcrn/gymapp-client/internal/apperror"
	"github.com/dvcrn/gymapp-client/internal/client"
	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/dvcrn/gymapp-client/internal/request"
	"github.com/go-playground/validator/v10"
)

const apiPrefix = "/api"

// Headers copied from the local caller to the backend.
var forwardedHeaders = []string{"Content-Type", "Accept-Language", "If-None-Match"}

// Server exposes the authenticated client to local tools. Requests under
// /api are forwarded to the backend with the session's bearer token.
type Server struct {
	client   *client.Client
	mux      *http.ServeMux
	validate *validator.Validate
	dispose  func()
}

// NewServer creates a server and registers its refresh interceptor on c.
// When the session cannot be recovered the stored credentials are cleared.
func NewServer(c *client.Client) *Server {
	s := &Server{
		client:   c,
		mux:      http.NewServeMux(),
		validate: validator.New(),
	}
	s.dispose = c.Register(s.sessionExpired)
	s.setupRoutes()

	return s
}

// Start loads any stored session and serves on addr.
func (s *Server) Start(addr string) error {
	if _, err := s.client.LoadStoredCredential(context.Background()); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to load stored credentials")
		logger.Get().Warn().Msg("The proxy will run but requests will fail until you sign in")
	}

	logger.Get().Info().Msgf("Starting proxy server on %s", addr)
	return http.ListenAndServe(addr, s)
}

// Close removes the server's refresh interceptor.
func (s *Server) Close() {
	s.dispose()
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/session", s.sessionHandler)
	s.mux.HandleFunc("/session/status", s.sessionStatusHandler)
	s.mux.HandleFunc(apiPrefix+"/", s.forwardHandler)
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	loggingMiddleware(s.mux).ServeHTTP(w, r)
}

func (s *Server) sessionExpired() {
	logger.Get().Warn().Msg("Session could not be refreshed, signing out")
	if err := s.client.SignOut(context.Background()); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to clear credentials after session expiry")
	}
}

// forwardHandler handles /api/* by replaying the call on the backend.
func (s *Server) forwardHandler(w http.ResponseWriter, r *http.Request) {
	if s.client.Bearer() == "" {
		writeError(w, http.StatusUnauthorized, "Session expired, sign in again")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	d := request.Descriptor{Method: r.Method, URL: path, Header: http.Header{}}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			d.Header.Set(h, v)
		}
	}
	if len(body) > 0 {
		d.Body = body
	}

	resp, err := s.client.Do(r.Context(), d)
	if err != nil {
		writeClientError(w, err)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

type errorResponse struct {
	Status  string `json:"status"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

// writeClientError maps a client failure onto a local response.
func writeClientError(w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		logger.Get().Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusBadGateway
	switch appErr.Kind {
	case apperror.KindTimeout:
		status = http.StatusGatewayTimeout
	case apperror.KindCredentialExpired, apperror.KindCredentialInvalid, apperror.KindRefreshFailed:
		status = http.StatusUnauthorized
	case apperror.KindHTTPError:
		if appErr.Status != 0 {
			status = appErr.Status
		}
	}

	message := appErr.Message
	if message == "" {
		message = appErr.Error()
	}
	writeJSON(w, status, errorResponse{Status: "error", Kind: string(appErr.Kind), Message: message})
}

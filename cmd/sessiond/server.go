package main

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/carenest/sessionguard"
	"github.com/carenest/sessionguard/activity"
	"github.com/carenest/sessionguard/idp/jwtidp"
)

type server struct {
	m      *sessionguard.Manager
	idp    *jwtidp.Provider
	logger *log.Logger
}

func newServer(m *sessionguard.Manager, idp *jwtidp.Provider, logger *log.Logger) *server {
	return &server{m: m, idp: idp, logger: logger}
}

func (s *server) routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", s.createSession)
	mux.HandleFunc("GET /session", s.getSession)
	mux.HandleFunc("POST /session/activity", s.recordActivity)
	mux.HandleFunc("POST /session/refresh", s.refreshSession)
	mux.HandleFunc("DELETE /session", s.terminateSession)
	mux.HandleFunc("GET /security", s.securityReport)
	mux.Handle("GET /protected", activity.Guard(s.m, s.m.Tracker())(http.HandlerFunc(protected)))
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

type createRequest struct {
	UserID string   `json:"user_id"`
	Role   string   `json:"role"`
	Grants []string `json:"grants"`
}

type sessionResponse struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Permissions    []string  `json:"permissions"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Renewable      bool      `json:"renewable"`
}

func toResponse(info sessionguard.SessionInfo) sessionResponse {
	return sessionResponse{
		SessionID:      info.SessionID,
		UserID:         info.UserID,
		Role:           string(info.Role),
		Permissions:    info.Permissions,
		CreatedAt:      info.CreatedAt,
		ExpiresAt:      info.ExpiresAt,
		LastActivityAt: info.LastActivityAt,
		Renewable:      info.HasRefreshToken,
	}
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	claims := sessionguard.IdentityClaims{
		UserID: req.UserID,
		Role:   sessionguard.Role(req.Role),
		Grants: req.Grants,
	}
	if s.idp != nil && claims.Role.Valid() && claims.UserID != "" {
		token, err := s.idp.Issue(claims.UserID, claims.Role, claims.Grants)
		if err != nil {
			s.logger.Printf("sessiond: issue refresh token failed user_id=%s err=%v", claims.UserID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		claims.RefreshToken = token
	}

	ctx := sessionguard.WithUserAgent(sessionguard.WithClientIP(r.Context(), clientIP(r)), r.UserAgent())
	info, err := s.m.CreateSession(ctx, claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(info))
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	info, ok := s.m.Session()
	if !ok || !s.m.IsAuthenticated() {
		http.Error(w, "no session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(info))
}

func (s *server) recordActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.m.RecordActivity(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) refreshSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.m.RefreshSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(info))
}

func (s *server) terminateSession(w http.ResponseWriter, r *http.Request) {
	if err := s.m.TerminateSession(r.Context(), sessionguard.ReasonLogout); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) securityReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.m.SecurityReport())
}

func protected(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionguard.ErrInvalidClaims), errors.Is(err, sessionguard.ErrInvalidRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, sessionguard.ErrNoSession), errors.Is(err, sessionguard.ErrRefreshFailure):
		http.Error(w, "please sign in again", http.StatusUnauthorized)
	case errors.Is(err, sessionguard.ErrEncryptionUnavailable),
		errors.Is(err, sessionguard.ErrNotInitialized),
		errors.Is(err, sessionguard.ErrManagerClosed):
		http.Error(w, "session service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

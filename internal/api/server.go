package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Server is the read-only HTTP surface: session listing, attendance
// aggregation and health. All mutations go through the signaling channel.
type Server struct {
	store    interfaces.SessionStore
	tracker  interfaces.DurationTracker
	registry interfaces.ParticipantRegistry
	health   func() error
	router   *http.ServeMux
	log      *slog.Logger
}

// NewServer wires the API routes. health is called by the health endpoint
// and typically checks database connectivity.
func NewServer(store interfaces.SessionStore, tracker interfaces.DurationTracker, registry interfaces.ParticipantRegistry, health func() error, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		tracker:  tracker,
		registry: registry,
		health:   health,
		router:   http.NewServeMux(),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SessionSummary is a session plus its live roster size.
type SessionSummary struct {
	Session          *types.Session `json:"session"`
	ParticipantCount int            `json:"participant_count"`
}

type listSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

type attendanceResponse struct {
	SessionID     string  `json:"session_id"`
	ParticipantID string  `json:"participant_id"`
	Seconds       float64 `json:"seconds"`
}

// listSessions returns sessions filtered by ?status=, defaulting to active.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := types.SessionStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = types.StatusActive
	}
	switch status {
	case types.StatusScheduled, types.StatusActive, types.StatusEnded:
	default:
		s.sendError(w, "Invalid status filter", http.StatusBadRequest)
		return
	}

	sessions, err := s.store.ListSessionsByStatus(r.Context(), status)
	if err != nil {
		s.log.Error("failed to list sessions", "error", err)
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	resp := listSessionsResponse{Sessions: make([]SessionSummary, 0, len(sessions))}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, SessionSummary{
			Session:          sess,
			ParticipantCount: len(s.registry.List(sess.ID)),
		})
	}
	s.sendJSON(w, resp, http.StatusOK)
}

// handleSessionByID serves GET /api/sessions/{id} and
// GET /api/sessions/{id}/attendance/{participant_id}.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}
	sessionID := parts[0]

	switch {
	case len(parts) == 1:
		s.getSession(w, r, sessionID)
	case len(parts) == 3 && parts[1] == "attendance" && parts[2] != "":
		s.getAttendance(w, r, sessionID, parts[2])
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if err == interfaces.ErrSessionNotFound {
			s.sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		s.log.Error("failed to get session", "session_id", sessionID, "error", err)
		s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, SessionSummary{
		Session:          sess,
		ParticipantCount: len(s.registry.List(sessionID)),
	}, http.StatusOK)
}

// getAttendance reports a participant's accumulated duration, counting any
// open interval up to now.
func (s *Server) getAttendance(w http.ResponseWriter, r *http.Request, sessionID, participantID string) {
	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		if err == interfaces.ErrSessionNotFound {
			s.sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		s.log.Error("failed to get session", "session_id", sessionID, "error", err)
		s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	total, err := s.tracker.Aggregate(r.Context(), sessionID, participantID, time.Now())
	if err != nil {
		s.log.Error("failed to aggregate attendance",
			"session_id", sessionID, "participant_id", participantID, "error", err)
		s.sendError(w, "Failed to aggregate attendance", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, attendanceResponse{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Seconds:       total.Seconds(),
	}, http.StatusOK)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	code := http.StatusOK
	if s.health != nil {
		if err := s.health(); err != nil {
			s.log.Error("health check failed", "error", err)
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	s.sendJSON(w, map[string]string{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, code)
}

func (s *Server) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, map[string]string{"error": message}, statusCode)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

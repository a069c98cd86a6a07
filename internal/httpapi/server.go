package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NeethishS/Echo-Session/internal/chat"
	"github.com/NeethishS/Echo-Session/internal/config"
	"github.com/NeethishS/Echo-Session/internal/logger"
	"github.com/NeethishS/Echo-Session/internal/observability"
	"github.com/NeethishS/Echo-Session/internal/retrieval"
	"github.com/NeethishS/Echo-Session/internal/session"
	"github.com/NeethishS/Echo-Session/internal/store"
)

const serviceName = "echosession"
const serviceVersion = "1.0.0"

type Server struct {
	cfg      config.Config
	registry *session.Registry
	chat     *chat.Router
	store    store.Store
	kb       *retrieval.Service // nil when retrieval is not configured
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, registry *session.Registry, chatRouter *chat.Router, st store.Store, kb *retrieval.Service, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		chat:     chatRouter,
		store:    st,
		kb:       kb,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same origin
				// unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws/session/{session_id}", s.handleSessionWS)
	r.Get("/api/session/{session_id}", s.handleGetSession)
	r.Get("/api/session/{session_id}/events", s.handleGetSessionEvents)
	r.Post("/api/documents", s.handleIngestDocument)
	r.Post("/api/documents/search", s.handleSearchDocuments)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = "anonymous"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := uuid.Parse(sessionID); err != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation,
			"Invalid session_id format. Must be a valid UUID.")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}

	ctx := r.Context()
	if err := s.registry.Connect(ctx, conn, sessionID, userID); err != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}
	s.metrics.IncSessionEvent("ws_connected")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			logger.L.Info("client disconnected", "session_id", sessionID, "error", err)
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.chat.Handle(ctx, sessionID, string(data))
	}

	// The request context dies with the connection; teardown still has to
	// reach the store and the completion engine.
	s.registry.Disconnect(context.Background(), sessionID)
	s.metrics.IncSessionEvent("ws_disconnected")
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session_not_found", "Session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	events, err := s.store.SessionEvents(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"events":     events,
	})
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	if s.kb == nil {
		respondError(w, http.StatusServiceUnavailable, "retrieval_unavailable", "knowledge base is not configured")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}

	result, err := s.kb.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "ingest_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	if s.kb == nil {
		respondError(w, http.StatusServiceUnavailable, "retrieval_unavailable", "knowledge base is not configured")
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"context": s.kb.Query(r.Context(), req.Query),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

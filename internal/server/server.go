// Package server exposes an assistant session over a local HTTP API and a
// WebSocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/context-assistant/three.js/internal/assistant"
	"github.com/context-assistant/three.js/internal/bridge"
	"github.com/context-assistant/three.js/internal/chat"
	"github.com/context-assistant/three.js/internal/completion"
	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

// ModelLister reports the models the completion backend serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]completion.Model, error)
}

// Server routes HTTP requests to one session.
type Server struct {
	session *assistant.Session
	models  ModelLister
	router  chi.Router
}

// New builds the router. models may be nil.
func New(session *assistant.Session, models ModelLister) *Server {
	s := &Server{session: session, models: models}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/models", s.listModels)

		r.Get("/panes", s.listPanes)
		r.Post("/panes/{type}/activate", s.activatePane)
		r.Get("/panes/{type}/context", s.pageContext)

		r.Get("/scene", s.scene)
		r.Get("/editor/state", s.editorState)

		r.Get("/messages", s.listMessages)
		r.Post("/messages", s.sendMessage)
		r.Delete("/messages", s.clearMessages)
		r.Post("/abort", s.abort)
	})
	r.Get("/ws", s.events)

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.Server("listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.session.Events().Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.ServerDebug("%s %s -> %d (%v) id=%s", r.Method, r.URL.Path, ww.Status(),
			time.Since(start), chiMiddleware.GetReqID(r.Context()))
	})
}

// ===== RESPONSES =====

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerDebug("failed to encode response: %v", err)
	}
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	var berr *bridge.Error
	switch {
	case errors.Is(err, chat.ErrNoAgentSelected):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrNoScenePane), errors.Is(err, assistant.ErrPaneNotOpen):
		return http.StatusNotFound
	case errors.As(err, &berr):
		if berr.Kind == bridge.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, completion.ErrNetwork), errors.Is(err, chat.ErrStreamIncomplete):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func paneParam(w http.ResponseWriter, r *http.Request) (types.PaneType, bool) {
	t, err := types.ParsePaneType(chi.URLParam(r, "type"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return t, true
}

// ===== HANDLERS =====

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.session.Engine().State().String(),
	})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		Error(w, http.StatusServiceUnavailable, "no completion backend configured")
		return
	}
	models, err := s.models.ListModels(r.Context())
	if err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

func (s *Server) listPanes(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"panes": s.session.Panes()})
}

func (s *Server) activatePane(w http.ResponseWriter, r *http.Request) {
	t, ok := paneParam(w, r)
	if !ok {
		return
	}
	if err := s.session.Activate(r.Context(), t); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, assistant.ErrPaneNotOpen) {
			status = http.StatusNotFound
		}
		Error(w, status, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"active": t.String()})
}

func (s *Server) pageContext(w http.ResponseWriter, r *http.Request) {
	t, ok := paneParam(w, r)
	if !ok {
		return
	}
	pc, err := s.session.PageContext(r.Context(), t)
	if err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, pc)
}

func (s *Server) scene(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.session.Scene(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	if nodes == nil {
		nodes = []types.SceneNode{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

func (s *Server) editorState(w http.ResponseWriter, r *http.Request) {
	raw, err := s.session.EditorState(r.Context())
	if err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	JSON(w, http.StatusOK, map[string]json.RawMessage{"state": raw})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.session.Messages()
	if msgs == nil {
		msgs = []types.Message{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

type sendBody struct {
	Content  string   `json:"content"`
	AgentID  string   `json:"agent_id"`
	Mentions []string `json:"mentions"`
}

// sendMessage blocks until the turn ends; progress goes out over /ws.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body sendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Content == "" {
		Error(w, http.StatusBadRequest, "content is required")
		return
	}

	err := s.session.Send(r.Context(), assistant.SendRequest{
		Content:  body.Content,
		AgentID:  body.AgentID,
		Mentions: body.Mentions,
	})
	if err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}

	resp := map[string]interface{}{"state": s.session.Engine().State().String()}
	if msgs := s.session.Messages(); len(msgs) > 0 {
		resp["message"] = msgs[len(msgs)-1]
	}
	if stats := s.session.Engine().LastStats(); stats != nil {
		resp["stats"] = stats
	}
	JSON(w, http.StatusOK, resp)
}

func (s *Server) clearMessages(w http.ResponseWriter, r *http.Request) {
	s.session.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	s.session.Abort()
	JSON(w, http.StatusOK, map[string]string{"state": s.session.Engine().State().String()})
}

// Package devserver is a local stand-in for the coaching backend. It speaks the
// same three endpoints and walks a session through a scripted phase progression.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"CoachChat/internal/backend"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	phaseIncomplete = "incomplete"
	phasePlanReady  = "plan_ready"
	phaseWeek1      = "week1"

	// turnsBeforePlan is the number of onboarding answers collected before a plan is produced
	turnsBeforePlan = 3
)

var weekTopics = []string{
	"Self-Discovery Basics",
	"Values and Strengths",
	"Emotional Awareness",
	"Habits and Routines",
	"Growth Mindset",
	"Relationships",
	"Purpose and Meaning",
	"Resilience",
	"Goal Setting",
	"Focus and Energy",
	"Reflection",
	"Next Steps",
}

// Options configures a Server
type Options struct {
	// Token, when set, is the only bearer token accepted. Otherwise any non-empty token is.
	Token  string
	Logger *slog.Logger
}

type sessionState struct {
	phase     string
	messages  []map[string]any
	goals     []string
	plan      map[string]any
	userTurns int
}

// Server is an in-memory coaching backend
type Server struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	token    string
	logger   *slog.Logger
	router   chi.Router
}

// New creates a Server with its routes registered
func New(opts Options) *Server {
	s := &Server{
		sessions: make(map[string]*sessionState),
		token:    opts.Token,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post(backend.PathSession, s.createSession)
		r.Get("/state/{sessionID}", s.getState)
		r.Post("/chat/{sessionID}", s.chat)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SessionCount reports how many sessions have been created
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetPhase forces the phase of an existing session
func (s *Server) SetPhase(sessionID, phase string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if ok {
		sess.phase = phase
	}
	return ok
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" || (s.token != "" && token != s.token) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = &sessionState{phase: phaseIncomplete, messages: []map[string]any{}}
	s.mu.Unlock()

	s.logger.Info("dev backend created session", "session_id", id)
	writeJSON(w, http.StatusOK, backend.CreateSessionResponse{SessionID: id})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.render(id)})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req backend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		writeError(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess.messages = append(sess.messages, map[string]any{"text": text, "is_user": true})
	reply := sess.advance(text)
	sess.messages = append(sess.messages, map[string]any{"text": reply, "role": "assistant"})

	writeJSON(w, http.StatusOK, map[string]any{
		"reply": reply,
		"state": sess.render(id),
	})
}

// advance moves the scripted conversation one step and returns the reply
func (s *sessionState) advance(text string) string {
	switch s.phase {
	case phaseIncomplete:
		s.userTurns++
		switch s.userTurns {
		case 1:
			return fmt.Sprintf("Nice to meet you, %s! What would you like to work on?", text)
		case 2:
			s.goals = []string{text}
			return "Got it. Is there anything that usually gets in your way?"
		}
		if s.userTurns >= turnsBeforePlan {
			s.phase = phasePlanReady
			s.plan = make(map[string]any, len(weekTopics))
			for i, topic := range weekTopics {
				s.plan[fmt.Sprintf("week_%d_topic", i+1)] = topic
			}
			return "Thanks! Your 12-week plan is ready. Send any message when you want to begin week 1."
		}
		return "Tell me a little more."
	case phasePlanReady:
		s.phase = phaseWeek1
		return "Welcome to week 1: " + weekTopics[0] + "."
	default:
		return fmt.Sprintf("Thanks for sharing. What stood out to you about %q?", text)
	}
}

func (s *sessionState) render(id string) map[string]any {
	state := map[string]any{
		"session_id": id,
		"phase":      s.phase,
	}
	// a new session has no message list yet
	if len(s.messages) > 0 {
		messages := make([]any, len(s.messages))
		for i, m := range s.messages {
			messages[i] = m
		}
		state["messages"] = messages
	}
	if len(s.goals) > 0 {
		state["goals"] = s.goals
	}
	if s.plan != nil {
		state["plan"] = s.plan
	}
	return state
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

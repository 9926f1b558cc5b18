package backend

import (
	"encoding/json"
	"net/url"
)

// DefaultBaseURL is the production coaching backend
const DefaultBaseURL = "https://spotted-mom-production.up.railway.app"

// PathSession creates a session
const PathSession = "/session"

// StatePath returns the fetch-state path for a session
func StatePath(sessionID string) string {
	return "/state/" + url.PathEscape(sessionID)
}

// ChatPath returns the send-message path for a session
func ChatPath(sessionID string) string {
	return "/chat/" + url.PathEscape(sessionID)
}

// CreateSessionResponse represents the response of POST /session
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// StateResponse represents the response of GET /state/{session_id}
type StateResponse struct {
	State map[string]any `json:"state"`
}

// ChatRequest represents the request body for POST /chat/{session_id}
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse represents the response of POST /chat/{session_id}.
// State is kept raw so a malformed state never invalidates the reply.
type ChatResponse struct {
	Reply *string         `json:"reply"`
	State json.RawMessage `json:"state,omitempty"`
}

// DecodedState returns the embedded state object, or nil when absent or not an object
func (r ChatResponse) DecodedState() map[string]any {
	if len(r.State) == 0 {
		return nil
	}
	var state map[string]any
	if err := json.Unmarshal(r.State, &state); err != nil {
		return nil
	}
	return state
}

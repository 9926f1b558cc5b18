package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultPhase is the phase of a session the backend has not advanced yet
	DefaultPhase = "incomplete"

	noTopic     = "No topic"
	defaultGoal = "Your goal is to find new goals"
)

// Snapshot is the partially-typed view of the backend's session state.
// Known keys are decoded into named fields; everything else lands in Extra.
type Snapshot struct {
	Phase       string
	HasPhase    bool
	Messages    []RemoteMessage
	HasMessages bool
	Plan        map[string]any
	Goals       []string
	Extra       map[string]any
	Raw         map[string]any
}

// DecodeSnapshot builds a Snapshot from a decoded JSON object.
// Missing or wrong-typed fields are left empty.
func DecodeSnapshot(raw map[string]any) Snapshot {
	snap := Snapshot{Raw: raw, Extra: map[string]any{}}
	for key, value := range raw {
		switch key {
		case "phase":
			if phase, ok := value.(string); ok {
				snap.Phase = phase
				snap.HasPhase = true
			}
		case "messages":
			if list, ok := value.([]any); ok {
				snap.HasMessages = true
				snap.Messages = decodeRemoteMessages(list)
			}
		case "plan":
			if plan, ok := value.(map[string]any); ok {
				snap.Plan = plan
			}
		case "goals":
			if list, ok := value.([]any); ok {
				for _, item := range list {
					if goal, ok := item.(string); ok {
						snap.Goals = append(snap.Goals, goal)
					}
				}
			}
		default:
			snap.Extra[key] = value
		}
	}
	return snap
}

func decodeRemoteMessages(list []any) []RemoteMessage {
	messages := make([]RemoteMessage, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var msg RemoteMessage
		if text, ok := entry["text"].(string); ok {
			msg.Text = &text
		}
		if isUser, ok := entry["is_user"].(bool); ok {
			msg.IsUser = &isUser
		}
		if role, ok := entry["role"].(string); ok {
			msg.Role = &role
		}
		messages = append(messages, msg)
	}
	return messages
}

// WeekTopic returns the plan topic for the given week number
func (s Snapshot) WeekTopic(week int) string {
	if s.Plan == nil {
		return noTopic
	}
	if topic, ok := s.Plan[fmt.Sprintf("week_%d_topic", week)].(string); ok {
		return topic
	}
	return noTopic
}

// Goal returns the user's primary goal with surrounding whitespace removed
func (s Snapshot) Goal() string {
	if len(s.Goals) == 0 {
		return defaultGoal
	}
	return strings.TrimSpace(s.Goals[0])
}

// Pretty renders the raw state as indented JSON
func (s Snapshot) Pretty() string {
	if len(s.Raw) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(s.Raw, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", s.Raw)
	}
	return string(data)
}

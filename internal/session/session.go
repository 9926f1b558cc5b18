package session

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single chat message
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh local identifier
func NewMessage(content string, isUser bool, at time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		IsUser:    isUser,
		Timestamp: at,
	}
}

// RemoteMessage is one entry of the message list embedded in backend state.
// Fields are pointers so that absent and wrong-typed values stay distinguishable.
type RemoteMessage struct {
	Text   *string
	IsUser *bool
	Role   *string
}

// FromUser applies the role priority: is_user, then role == "user", then false.
func (m RemoteMessage) FromUser() bool {
	if m.IsUser != nil {
		return *m.IsUser
	}
	if m.Role != nil {
		return *m.Role == "user"
	}
	return false
}

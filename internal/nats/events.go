package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamMessages = "CHAT_MESSAGES"
	StreamEvents   = "CHAT_EVENTS"
)

// Subject constants.
const (
	SubjectPersistMessage = "chat.messages.persist"
	SubjectMessageStored  = "chat.events.message_stored"
	SubjectSessionCleared = "chat.events.session_cleared"
)

// PersistMessage is published by the chat layer for each user or assistant message.
type PersistMessage struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

// MessageStored is published after a message row has been committed.
type MessageStored struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	Role         string    `json:"role"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionCleared is published by the session lifecycle owner when a session is reset.
type SessionCleared struct {
	SessionID string    `json:"session_id"`
	ClearedAt time.Time `json:"cleared_at"`
}

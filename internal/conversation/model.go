// Package conversation persists chat messages with their embeddings and
// retrieves them by cosine similarity to a query.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStoreUnavailable is returned when the database cannot be reached or a query fails.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSearchUnavailable is returned when a search cannot be ranked, e.g. no query embedding.
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrInvalidRole       = errors.New("role must be user or assistant")
	ErrInvalidUserID     = errors.New("user_id must be a UUID")
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a row in the conversation_messages table.
// Embedding is nil when the model could not produce one; such messages
// are replayed with their session but never ranked.
type Message struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Embedding []float32  `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

// HasEmbedding reports whether the message takes part in similarity search.
func (m *Message) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// SearchResult wraps a Message with its similarity score in [-1, 1].
type SearchResult struct {
	Message    Message
	Similarity float64
}

// RecordRequest is handed over by the chat layer for every produced message.
type RecordRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
	UserID    string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Role      string `json:"role" validate:"required,oneof=user assistant"`
	Content   string `json:"content" validate:"required"`
}

// SearchRequest is the similarity search input.
type SearchRequest struct {
	Query  string `json:"query" validate:"required,min=1"`
	UserID string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1"`
}

// SearchHit is one ranked message in a SearchResponse.
type SearchHit struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// SearchResponse is returned by Service.Search. Results is never nil.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

// MessageView is the JSON shape of a stored message in history responses.
type MessageView struct {
	Message
	HasEmbedding bool `json:"has_embedding"`
}

func newMessageViews(msgs []Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{Message: m, HasEmbedding: m.HasEmbedding()})
	}
	return views
}

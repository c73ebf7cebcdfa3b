package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jiwon-platform/chatmemory/internal/embedding"
	"github.com/jiwon-platform/chatmemory/internal/metrics"
	inats "github.com/jiwon-platform/chatmemory/internal/nats"
	"github.com/jiwon-platform/chatmemory/internal/similarity"
)

// EventPublisher announces stored messages. *nats.Publisher satisfies it.
type EventPublisher interface {
	PublishMessageStored(ctx context.Context, event inats.MessageStored) error
}

// Options bound search and history behaviour.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	// CandidateCap bounds how many recent embedded rows the array fallback ranks.
	CandidateCap int
	QueryTimeout time.Duration
	// StoreTimeout bounds every other repository call.
	StoreTimeout time.Duration
	HistoryMax   int
	HistoryTTL   time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		DefaultLimit: 5,
		MaxLimit:     50,
		CandidateCap: 500,
		QueryTimeout: 5 * time.Second,
		StoreTimeout: 5 * time.Second,
		HistoryMax:   50,
		HistoryTTL:   24 * time.Hour,
	}
}

// Service records chat messages and ranks them against free-text queries.
type Service struct {
	repo      Repository
	embedder  embedding.Provider
	shortTerm *ShortTermStore
	events    EventPublisher
	opts      Options
}

// NewService creates a new conversation service. shortTerm and events may be nil.
func NewService(repo Repository, embedder embedding.Provider, shortTerm *ShortTermStore, events EventPublisher, opts Options) *Service {
	return &Service{
		repo:      repo,
		embedder:  embedder,
		shortTerm: shortTerm,
		events:    events,
		opts:      opts,
	}
}

// Record embeds and persists one message. A failed embedding never blocks
// the write; the message is stored without one and is excluded from search.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Message, error) {
	role := Role(req.Role)
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	msg := &Message{
		SessionID: req.SessionID,
		Role:      role,
		Content:   req.Content,
	}

	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			slog.Warn("storing message without user_id", "session_id", req.SessionID, "user_id", req.UserID)
		} else {
			msg.UserID = &uid
		}
	}

	// Embed before touching the store so no pooled connection is held
	// across the model call.
	msg.Embedding = s.embedForWrite(ctx, msg.SessionID, msg.Content)

	if err := s.save(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesStoredTotal.WithLabelValues(strconv.FormatBool(msg.HasEmbedding())).Inc()

	s.afterSave(ctx, msg)
	return msg, nil
}

func (s *Service) save(ctx context.Context, msg *Message) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.repo.Save(ctx, msg)
}

// storeContext bounds a single repository call by StoreTimeout.
func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *Service) embedForWrite(ctx context.Context, sessionID, content string) []float32 {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("write", "error").Inc()
		slog.Warn("embedding failed, storing message without embedding",
			"session_id", sessionID, "model", s.embedder.Model(), "error", err)
		return nil
	}
	if len(vec) != s.embedder.Dimension() {
		metrics.EmbeddingRequestsTotal.WithLabelValues("write", "dimension_mismatch").Inc()
		slog.Warn("embedding has unexpected dimension, storing message without embedding",
			"session_id", sessionID, "got", len(vec), "want", s.embedder.Dimension())
		return nil
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("write", "ok").Inc()
	return vec
}

func (s *Service) afterSave(parent context.Context, msg *Message) {
	ctx, cancel := s.storeContext(parent)
	defer cancel()

	if s.shortTerm != nil {
		entry := HistoryEntry{Role: msg.Role, Content: msg.Content, Timestamp: msg.CreatedAt}
		if err := s.shortTerm.AppendMessage(ctx, msg.SessionID, entry, s.opts.HistoryMax, s.opts.HistoryTTL); err != nil {
			slog.Warn("appending short-term history", "session_id", msg.SessionID, "error", err)
		}
	}

	if s.events != nil {
		event := inats.MessageStored{
			ID:           msg.ID,
			SessionID:    msg.SessionID,
			Role:         string(msg.Role),
			HasEmbedding: msg.HasEmbedding(),
			CreatedAt:    msg.CreatedAt,
		}
		if msg.UserID != nil {
			event.UserID = msg.UserID.String()
		}
		if err := s.events.PublishMessageStored(ctx, event); err != nil {
			slog.Warn("publishing message_stored event", "message_id", msg.ID, "error", err)
		}
	}
}

// Search ranks stored messages by cosine similarity to the query text.
// An empty store yields an empty result; a failure yields an error.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var userID *uuid.UUID
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, ErrInvalidUserID
		}
		userID = &uid
	}

	limit := s.clampLimit(req.Limit)

	query, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("query", "error").Inc()
		return nil, fmt.Errorf("%w: embedding query: %w", ErrSearchUnavailable, err)
	}
	if len(query) != s.embedder.Dimension() {
		metrics.EmbeddingRequestsTotal.WithLabelValues("query", "dimension_mismatch").Inc()
		return nil, fmt.Errorf("query embedding has %d dimensions, want %d: %w",
			len(query), s.embedder.Dimension(), similarity.ErrDimensionMismatch)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("query", "ok").Inc()

	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	path := "fallback"
	if s.repo.NativeRanking() {
		path = "native"
	}

	start := time.Now()
	var results []SearchResult
	if path == "native" {
		results, err = s.repo.SearchSimilar(ctx, query, userID, limit)
	} else {
		results, err = s.rankInProcess(ctx, query, userID, limit)
	}
	metrics.SearchDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(path, "error").Inc()
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues(path, "ok").Inc()

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			ID:         r.Message.ID,
			SessionID:  r.Message.SessionID,
			Role:       r.Message.Role,
			Content:    r.Message.Content,
			Similarity: r.Similarity,
			CreatedAt:  r.Message.CreatedAt,
		})
	}

	return &SearchResponse{Query: req.Query, Results: hits, Count: len(hits)}, nil
}

func (s *Service) rankInProcess(ctx context.Context, query []float32, userID *uuid.UUID, limit int) ([]SearchResult, error) {
	candidates, err := s.repo.FetchCandidates(ctx, userID, s.opts.CandidateCap)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]Message, len(candidates))
	pool := make([]similarity.Candidate, 0, len(candidates))
	for _, m := range candidates {
		if !m.HasEmbedding() {
			continue
		}
		byID[m.ID] = m
		pool = append(pool, similarity.Candidate{ID: m.ID, Vector: m.Embedding, CreatedAt: m.CreatedAt})
	}

	scored, err := similarity.Rank(query, pool, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}

	results := make([]SearchResult, 0, len(scored))
	for _, sc := range scored {
		results = append(results, SearchResult{Message: byID[sc.ID], Similarity: sc.Score})
	}
	return results, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if s.opts.MaxLimit > 0 && limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}
	return limit
}

// History returns every stored message of a session in chronological order.
func (s *Service) History(ctx context.Context, sessionID string) ([]MessageView, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	msgs, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return newMessageViews(msgs), nil
}

// Recent returns the short-term window of a session, oldest first.
func (s *Service) Recent(ctx context.Context, sessionID string, n int) ([]HistoryEntry, error) {
	if n <= 0 || n > s.opts.HistoryMax {
		n = s.opts.HistoryMax
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if s.shortTerm == nil {
		msgs, err := s.repo.ListBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(msgs) > n {
			msgs = msgs[len(msgs)-n:]
		}
		entries := make([]HistoryEntry, 0, len(msgs))
		for _, m := range msgs {
			entries = append(entries, HistoryEntry{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
		}
		return entries, nil
	}
	return s.shortTerm.GetRecentMessages(ctx, sessionID, n)
}

// ClearSession deletes a session's stored messages and its short-term window.
func (s *Service) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	deleted, err := s.repo.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if s.shortTerm != nil {
		if err := s.shortTerm.ClearSession(ctx, sessionID); err != nil {
			return deleted, fmt.Errorf("clearing short-term history: %w", err)
		}
	}
	slog.Info("session cleared", "session_id", sessionID, "deleted", deleted)
	return deleted, nil
}

// IsUnavailable reports whether err means a dependency could not serve the call.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrSearchUnavailable)
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	inats "github.com/jiwon-platform/chatmemory/internal/nats"
	"github.com/jiwon-platform/chatmemory/internal/similarity"
)

// memRepo is an in-memory Repository. It ranks natively with the same
// similarity engine when native is set.
type memRepo struct {
	mu      sync.Mutex
	native  bool
	nextID  int64
	clock   time.Time
	rows    []Message
	err     error
	fetched int // limit passed to the last FetchCandidates
}

func newMemRepo(native bool) *memRepo {
	return &memRepo{native: native, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memRepo) Save(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.nextID++
	r.clock = r.clock.Add(time.Second)
	msg.ID = r.nextID
	msg.CreatedAt = r.clock
	r.rows = append(r.rows, *msg)
	return nil
}

func (r *memRepo) ListBySession(_ context.Context, sessionID string) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := []Message{}
	for _, m := range r.rows {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteBySession(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	kept := r.rows[:0]
	var n int64
	for _, m := range r.rows {
		if m.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.rows = kept
	return n, nil
}

func (r *memRepo) FetchCandidates(_ context.Context, userID *uuid.UUID, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = limit
	if r.err != nil {
		return nil, r.err
	}
	out := []Message{}
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.rows[i]
		if !m.HasEmbedding() {
			continue
		}
		if userID != nil && (m.UserID == nil || *m.UserID != *userID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memRepo) NativeRanking() bool { return r.native }

func (r *memRepo) SearchSimilar(ctx context.Context, query []float32, userID *uuid.UUID, limit int) ([]SearchResult, error) {
	if !r.native {
		return nil, errors.New("not native")
	}
	candidates, err := r.FetchCandidates(ctx, userID, len(r.rows))
	if err != nil {
		return nil, err
	}
	byID := map[int64]Message{}
	pool := []similarity.Candidate{}
	for _, m := range candidates {
		byID[m.ID] = m
		pool = append(pool, similarity.Candidate{ID: m.ID, Vector: m.Embedding, CreatedAt: m.CreatedAt})
	}
	scored, err := similarity.Rank(query, pool, limit)
	if err != nil {
		return nil, err
	}
	out := []SearchResult{}
	for _, s := range scored {
		out = append(out, SearchResult{Message: byID[s.ID], Similarity: s.Score})
	}
	return out, nil
}

// stubEmbedder returns fixed vectors per text, or err for unknown text.
type stubEmbedder struct {
	dim     int
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return v, nil
}

func (e *stubEmbedder) Dimension() int { return e.dim }
func (e *stubEmbedder) Model() string  { return "stub" }

type recordingPublisher struct {
	events []inats.MessageStored
	err    error
}

func (p *recordingPublisher) PublishMessageStored(_ context.Context, event inats.MessageStored) error {
	p.events = append(p.events, event)
	return p.err
}

func toyEmbedder() *stubEmbedder {
	return &stubEmbedder{
		dim: 3,
		vectors: map[string][]float32{
			"hello":    {1, 0, 0},
			"goodbye":  {0, 1, 0},
			"greeting": {0.9, 0.1, 0},
			"zero":     {0, 0, 0},
		},
	}
}

// hungRepo blocks every store call until the context ends, like a
// connection stuck on an unresponsive server.
type hungRepo struct {
	*memRepo
}

func (r hungRepo) wait(ctx context.Context) error {
	<-ctx.Done()
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
}

func (r hungRepo) Save(ctx context.Context, _ *Message) error { return r.wait(ctx) }

func (r hungRepo) ListBySession(ctx context.Context, _ string) ([]Message, error) {
	return nil, r.wait(ctx)
}

func (r hungRepo) DeleteBySession(ctx context.Context, _ string) (int64, error) {
	return 0, r.wait(ctx)
}

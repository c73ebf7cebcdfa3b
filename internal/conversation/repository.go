package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository defines conversation message persistence operations.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	ListBySession(ctx context.Context, sessionID string) ([]Message, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	FetchCandidates(ctx context.Context, userID *uuid.UUID, limit int) ([]Message, error)
	// NativeRanking reports whether SearchSimilar ranks inside the database.
	NativeRanking() bool
	SearchSimilar(ctx context.Context, query []float32, userID *uuid.UUID, limit int) ([]SearchResult, error)
}

// PostgresRepository implements Repository using pgx and the selected VectorBackend.
type PostgresRepository struct {
	db      DB
	backend VectorBackend
}

// NewPostgresRepository creates a new conversation repository.
func NewPostgresRepository(db DB, backend VectorBackend) *PostgresRepository {
	return &PostgresRepository{db: db, backend: backend}
}

// Backend returns the embedding representation in use.
func (r *PostgresRepository) Backend() VectorBackend {
	return r.backend
}

// Save inserts one row and fills in ID and CreatedAt. When the server rejects
// the embedding value itself, the message is written again without it.
func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	err := r.insert(ctx, msg, msg.Embedding)
	if err == nil {
		return nil
	}

	if msg.HasEmbedding() && rejectsEmbedding(err) && ctx.Err() == nil {
		slog.Warn("storing message without embedding",
			"session_id", msg.SessionID, "backend", r.backend.Name(), "error", err)
		if err := r.insert(ctx, msg, nil); err != nil {
			return fmt.Errorf("%w: inserting message: %w", ErrStoreUnavailable, err)
		}
		msg.Embedding = nil
		return nil
	}
	return fmt.Errorf("%w: inserting message: %w", ErrStoreUnavailable, err)
}

// rejectsEmbedding reports whether err is the server refusing the embedding
// value: data exceptions (class 22, which covers pgvector dimension and
// non-finite checks) and datatype mismatches. Transient failures such as
// statement timeouts or deadlocks never drop the embedding.
func rejectsEmbedding(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgerrcode.IsDataException(pgErr.Code) || pgErr.Code == pgerrcode.DatatypeMismatch
}

func (r *PostgresRepository) insert(ctx context.Context, msg *Message, embedding []float32) error {
	query := fmt.Sprintf(
		`INSERT INTO conversation_messages (session_id, user_id, role, content, embedding)
		 VALUES ($1, $2, $3, $4, $5::%s)
		 RETURNING id, created_at`, r.backend.ArgType())

	return r.db.QueryRow(ctx, query,
		msg.SessionID, msg.UserID, string(msg.Role), msg.Content, r.backend.EmbeddingArg(embedding),
	).Scan(&msg.ID, &msg.CreatedAt)
}

// ListBySession returns a session's messages in the order they were stored.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, user_id, role, content, embedding::real[], created_at
		 FROM conversation_messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing session messages: %w", ErrStoreUnavailable, err)
	}
	return collectMessages(rows)
}

// DeleteBySession removes every message of a session.
func (r *PostgresRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM conversation_messages WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting session messages: %w", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// FetchCandidates returns the most recent embedded messages, optionally for one user.
func (r *PostgresRepository) FetchCandidates(ctx context.Context, userID *uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, user_id, role, content, embedding::real[], created_at
		 FROM conversation_messages
		 WHERE embedding IS NOT NULL
		   AND ($1::uuid IS NULL OR user_id = $1::uuid)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching candidates: %w", ErrStoreUnavailable, err)
	}
	return collectMessages(rows)
}

func (r *PostgresRepository) NativeRanking() bool {
	_, ok := r.backend.(NativeRanker)
	return ok
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, query []float32, userID *uuid.UUID, limit int) ([]SearchResult, error) {
	ranker, ok := r.backend.(NativeRanker)
	if !ok {
		return nil, fmt.Errorf("backend %s does not rank natively", r.backend.Name())
	}
	results, err := ranker.SearchSimilar(ctx, r.db, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return results, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func collectMessages(rows rowScanner) ([]Message, error) {
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &role, &m.Content, &m.Embedding, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning message: %w", ErrStoreUnavailable, err)
		}
		m.Role = Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading messages: %w", ErrStoreUnavailable, err)
	}
	return messages, nil
}

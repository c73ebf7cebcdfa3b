package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jiwon-platform/chatmemory/internal/similarity"
)

// DB is the subset of *pgxpool.Pool used by the repository and backends.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VectorBackend decides how embeddings are represented in the database.
// It is chosen once at startup and injected into the repository.
type VectorBackend interface {
	Name() string
	// EnsureSchema adapts the embedding column to this representation.
	EnsureSchema(ctx context.Context, db DB) error
	// EmbeddingArg encodes a vector as a query argument; nil stays NULL.
	EmbeddingArg(vec []float32) any
	// ArgType is the SQL type the embedding argument is cast to.
	ArgType() string
}

// NativeRanker is implemented by backends that rank inside the database.
type NativeRanker interface {
	SearchSimilar(ctx context.Context, db DB, query []float32, userID *uuid.UUID, limit int) ([]SearchResult, error)
}

var vectorTypePattern = regexp.MustCompile(`^vector(?:\((\d+)\))?$`)

// checkVectorColumn reports whether colType is a pgvector type and fails
// when its declared dimension differs from dim.
func checkVectorColumn(colType string, dim int) (bool, error) {
	m := vectorTypePattern.FindStringSubmatch(colType)
	if m == nil {
		return false, nil
	}
	if m[1] != "" {
		if n, _ := strconv.Atoi(m[1]); n != dim {
			return true, fmt.Errorf("embedding column is %s, configured dimension is %d: %w",
				colType, dim, similarity.ErrDimensionMismatch)
		}
	}
	return true, nil
}

func embeddingColumnType(ctx context.Context, db DB) (string, error) {
	var colType string
	err := db.QueryRow(ctx,
		`SELECT format_type(a.atttypid, a.atttypmod)
		 FROM pg_attribute a
		 WHERE a.attrelid = 'conversation_messages'::regclass
		   AND a.attname = 'embedding' AND NOT a.attisdropped`,
	).Scan(&colType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("conversation_messages.embedding column missing, run migrations")
	}
	if err != nil {
		return "", fmt.Errorf("reading embedding column type: %w", err)
	}
	return colType, nil
}

// NativeVectorBackend stores embeddings as pgvector vector(D) and ranks with <=>.
type NativeVectorBackend struct {
	dim int
}

func NewNativeVectorBackend(dim int) *NativeVectorBackend {
	return &NativeVectorBackend{dim: dim}
}

func (b *NativeVectorBackend) Name() string { return "native" }

func (b *NativeVectorBackend) ArgType() string { return "vector" }

func (b *NativeVectorBackend) EmbeddingArg(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}

// EnsureSchema converts a real[] embedding column to vector(D). Existing
// vector columns must already have dimension D.
func (b *NativeVectorBackend) EnsureSchema(ctx context.Context, db DB) error {
	colType, err := embeddingColumnType(ctx, db)
	if err != nil {
		return err
	}

	if isVector, err := checkVectorColumn(colType, b.dim); isVector || err != nil {
		return err
	}

	slog.Info("converting embedding column to vector", "from", colType, "dimension", b.dim)
	_, err = db.Exec(ctx, fmt.Sprintf(
		`ALTER TABLE conversation_messages ALTER COLUMN embedding TYPE vector(%d) USING embedding::vector(%d)`,
		b.dim, b.dim))
	if err != nil {
		return fmt.Errorf("converting embedding column: %w", err)
	}
	return nil
}

// SearchSimilar ranks in SQL with the same contract as similarity.Rank:
// cosine similarity descending, zero vectors score 0, ties newest first.
func (b *NativeVectorBackend) SearchSimilar(ctx context.Context, db DB, query []float32, userID *uuid.UUID, limit int) ([]SearchResult, error) {
	rows, err := db.Query(ctx,
		`SELECT id, session_id, user_id, role, content, created_at,
		        CASE WHEN vector_norm(embedding) = 0 OR vector_norm($1::vector) = 0 THEN 0
		             ELSE 1 - (embedding <=> $1::vector)
		        END AS similarity
		 FROM conversation_messages
		 WHERE embedding IS NOT NULL
		   AND ($2::uuid IS NULL OR user_id = $2::uuid)
		 ORDER BY similarity DESC, created_at DESC, id DESC
		 LIMIT $3`,
		pgvector.NewVector(query), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar messages: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var m Message
		var role string
		var score float64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &role, &m.Content, &m.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		m.Role = Role(role)
		results = append(results, SearchResult{Message: m, Similarity: score})
	}
	return results, rows.Err()
}

// FallbackArrayBackend stores embeddings as real[]; ranking happens in process.
type FallbackArrayBackend struct {
	dim int
}

func NewFallbackArrayBackend(dim int) *FallbackArrayBackend {
	return &FallbackArrayBackend{dim: dim}
}

func (b *FallbackArrayBackend) Name() string { return "fallback" }

func (b *FallbackArrayBackend) ArgType() string { return "real[]" }

func (b *FallbackArrayBackend) EmbeddingArg(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return vec
}

// EnsureSchema checks the column exists. A vector column left behind by an
// earlier native run still accepts real[] through pgvector's assignment cast,
// as long as its dimension matches.
func (b *FallbackArrayBackend) EnsureSchema(ctx context.Context, db DB) error {
	colType, err := embeddingColumnType(ctx, db)
	if err != nil {
		return err
	}
	if _, err := checkVectorColumn(colType, b.dim); err != nil {
		return err
	}
	slog.Debug("embedding column ready for array storage", "type", colType)
	return nil
}

// SelectBackend picks the native backend when pgvector is available and its
// schema can be prepared; otherwise it falls back to array storage. A stored
// column whose dimension differs from dim is an error on either path.
func SelectBackend(ctx context.Context, db DB, native bool, dim int) (VectorBackend, error) {
	if native {
		nb := NewNativeVectorBackend(dim)
		err := nb.EnsureSchema(ctx, db)
		if err == nil {
			return nb, nil
		}
		if errors.Is(err, similarity.ErrDimensionMismatch) {
			return nil, err
		}
		slog.Warn("native vector schema unavailable, using array fallback", "error", err)
	}

	fb := NewFallbackArrayBackend(dim)
	if err := fb.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return fb, nil
}

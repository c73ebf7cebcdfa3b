package similarity

import (
	"fmt"
	"sort"
	"time"
)

// Candidate is a stored vector considered for ranking.
type Candidate struct {
	ID        int64
	Vector    []float32
	CreatedAt time.Time
}

// Scored is a ranked candidate.
type Scored struct {
	ID        int64
	Score     float64
	CreatedAt time.Time
}

// Rank returns the top k candidates by cosine similarity to query, highest first.
// Equal scores are ordered by recency (newer CreatedAt, then higher ID).
// Every candidate must have the query's dimension.
func Rank(query []float32, candidates []Candidate, k int) ([]Scored, error) {
	if k <= 0 || len(candidates) == 0 {
		return []Scored{}, nil
	}

	qm := magnitude(query)
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			return nil, fmt.Errorf("%w: candidate %d has %d dims, query has %d",
				ErrDimensionMismatch, c.ID, len(c.Vector), len(query))
		}
		var s float64
		if cm := magnitude(c.Vector); qm != 0 && cm != 0 {
			s = clamp(dot(query, c.Vector) / (qm * cm))
		}
		scored = append(scored, Scored{ID: c.ID, Score: s, CreatedAt: c.CreatedAt})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return ranksBefore(scored[a], scored[b])
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func ranksBefore(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

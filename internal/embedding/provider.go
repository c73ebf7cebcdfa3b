// Package embedding turns text into fixed-length vectors using an external model.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable wraps every failure of the external embedding model:
// transport errors, timeouts and malformed or wrongly sized responses.
var ErrUnavailable = errors.New("embedding unavailable")

// Provider produces embeddings of a fixed dimension.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// checkVector validates a decoded model response against the expected dimension.
func checkVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding in response", ErrUnavailable)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d dims, want %d", ErrUnavailable, len(vec), dim)
	}
	return nil
}

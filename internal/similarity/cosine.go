// Package similarity ranks embedding vectors by cosine similarity.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors that must be compared have different lengths.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Cosine returns dot(a,b) / (|a|*|b|). A zero-magnitude vector has similarity 0 with anything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	ma, mb := magnitude(a), magnitude(b)
	if ma == 0 || mb == 0 {
		return 0, nil
	}
	return clamp(dot(a, b) / (ma * mb)), nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }

// clamp keeps rounding error from pushing a score outside [-1, 1].
func clamp(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

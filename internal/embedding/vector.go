// Package embedding turns interest text into unit vectors and compares them.
// The Client talks to a remote embedding model, Cache memoizes results in
// Redis, and Fallback keeps callers working when the model is unreachable.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// DefaultDimensions is the vector width used by the fallback generator.
const DefaultDimensions = 512

// ErrUnavailable reports that no embedding could be produced by the remote
// model.
var ErrUnavailable = errors.New("embedding: model unavailable")

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("embedding: vectors must be of same length")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Normalize returns v scaled to unit length. A zero vector is returned as a
// copy unchanged.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	norm := magnitude(v)
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Cosine returns the cosine similarity of a and b. For unit vectors this is
// the plain dot product. A zero-length vector has similarity 0 with anything.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}

	na, nb := magnitude(a), magnitude(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (na * nb), nil
}

// RandomUnit returns a random vector of the given width with unit length.
func RandomUnit(dims int) []float64 {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	v := make([]float64, dims)
	for {
		for i := range v {
			v[i] = rand.Float64()*2 - 1
		}
		if magnitude(v) > 0 {
			return Normalize(v)
		}
	}
}

func magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

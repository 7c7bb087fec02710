package database

import (
	"fmt"
	"math"
)

// ValidateEmbedding checks that v has exactly dim finite values.
func ValidateEmbedding(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: expected dimension %d, got %d", ErrInvalidEmbedding, dim, len(v))
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// Package detector defines the face detection contract used by the pipeline
// and an HTTP client for the external detection and recognition server.
package detector

import (
	"context"
	"errors"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/frames"
)

// ErrEmbeddingExtraction is returned by Embed when no embedding can be produced for a detection.
var ErrEmbeddingExtraction = errors.New("embedding extraction failed")

// Detection is one located face within a frame.
type Detection struct {
	BBox       [4]int       // x1, y1, x2, y2 in pixels
	Confidence float64      // detector score
	Landmarks  [][2]float64 // optional facial keypoints
	Index      int          // position in the engine's emitted order

	// Embedding is filled when the engine returns it together with the detection.
	Embedding []float32
}

// Engine locates faces and extracts their embeddings.
// The pipeline never inspects engine internals beyond this contract.
type Engine interface {
	Detect(ctx context.Context, frame frames.Frame) ([]Detection, error)
	Embed(ctx context.Context, frame frames.Frame, det Detection) ([]float32, error)
}

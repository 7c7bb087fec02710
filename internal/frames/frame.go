// Package frames produces images from image directories, finite video files
// and unbounded live streams behind a single pull-based Source interface.
package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrSourceOpen is returned when a file, directory or stream cannot be opened.
	ErrSourceOpen = errors.New("source open failed")
	// ErrReadTimeout marks a live read that produced no frame in time.
	ErrReadTimeout = errors.New("stream read timed out")
	// ErrCaptureClosed is returned by Read on a closed Capture.
	ErrCaptureClosed = errors.New("capture closed")
)

// Frame is one image produced by a Source.
type Frame struct {
	Index     int     // position in the source; increases monotonically
	Timestamp float64 // seconds: playback position for video, unix time for live streams
	Path      string  // originating file for image sets
	Image     image.Image
	Data      []byte // original encoded bytes when the source had them
}

// Source yields frames until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// CapturedFrame is one decoded frame from a Capture.
type CapturedFrame struct {
	Image    image.Image
	Position time.Duration // playback position reported by the container
}

// Capture is an open video container or network stream.
// Read returns io.EOF once a finite container is exhausted.
type Capture interface {
	Read(ctx context.Context) (CapturedFrame, error)
	Close() error
}

// Opener opens a Capture for a file path or stream URL.
type Opener func(ctx context.Context, uri string) (Capture, error)

func openError(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, ErrSourceOpen, err)
}

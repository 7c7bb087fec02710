package frames

import (
	"context"
	"errors"
	"io"
	"sync"
)

// BoundedVideo yields every stride-th frame of a finite video container.
type BoundedVideo struct {
	capture Capture
	stride  int
	read    int // frames read from the container so far

	closeOnce sync.Once
	closeErr  error
}

// OpenVideo opens path with opener. A stride below 1 means every frame.
func OpenVideo(ctx context.Context, opener Opener, path string, stride int) (*BoundedVideo, error) {
	if stride < 1 {
		stride = 1
	}
	c, err := opener(ctx, path)
	if err != nil {
		return nil, openError("video "+path, err)
	}
	return &BoundedVideo{capture: c, stride: stride}, nil
}

// Next returns the next sampled frame. Frame.Index is the frame's position in
// the container, so sampled indices advance by stride.
func (v *BoundedVideo) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		cf, err := v.capture.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}
		idx := v.read
		v.read++
		if idx%v.stride != 0 {
			continue
		}
		return Frame{
			Index:     idx,
			Timestamp: cf.Position.Seconds(),
			Image:     cf.Image,
		}, nil
	}
}

// FramesRead returns the number of container frames consumed, sampled or not.
func (v *BoundedVideo) FramesRead() int { return v.read }

// Close releases the container. Safe to call more than once.
func (v *BoundedVideo) Close() error {
	v.closeOnce.Do(func() {
		v.closeErr = v.capture.Close()
	})
	return v.closeErr
}

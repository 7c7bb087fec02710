package frames

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// StreamState is the connection state of a LiveStream.
type StreamState int

// StreamState values.
const (
	StateConnected StreamState = iota
	StateReconnecting
	StateStopped
)

func (s StreamState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LiveOptions configures a LiveStream.
type LiveOptions struct {
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration // a read without a frame for this long reconnects; 0 = wait forever
	MaxFrames      int           // 0 = unbounded
	Logger         *slog.Logger
}

// LiveStream reads a network stream forever, reopening it after read
// failures. Frame indices keep increasing across reconnects.
//
// While reconnecting, Next blocks for ReconnectDelay before each reopen
// attempt. A read that yields no frame within ReadTimeout counts as a read
// failure. Cancelling ctx or calling Close, from any goroutine, stops the
// stream and releases a blocked Next.
type LiveStream struct {
	opener Opener
	url    string
	opts   LiveOptions
	logger *slog.Logger

	mu         sync.Mutex
	capture    Capture
	state      StreamState
	index      int
	reconnects int
	failures   int

	closed    context.Context
	markClose context.CancelFunc

	now func() time.Time
}

// OpenLiveStream opens url. Failure here is fatal; later failures are retried.
func OpenLiveStream(ctx context.Context, opener Opener, url string, opts LiveOptions) (*LiveStream, error) {
	c, err := opener(ctx, url)
	if err != nil {
		return nil, openError("stream "+url, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	closed, markClose := context.WithCancel(context.Background())
	return &LiveStream{
		opener:    opener,
		url:       url,
		opts:      opts,
		logger:    logger.With("stream", url),
		capture:   c,
		state:     StateConnected,
		closed:    closed,
		markClose: markClose,
		now:       time.Now,
	}, nil
}

// State returns the current connection state.
func (s *LiveStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reconnects returns the number of successful reopens.
func (s *LiveStream) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// Next returns the next frame, reconnecting as needed. It returns io.EOF once
// MaxFrames frames were produced or the stream was closed, and ctx.Err() when
// ctx is cancelled.
func (s *LiveStream) Next(parent context.Context) (Frame, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stopWatch := context.AfterFunc(s.closed, cancel)
	defer stopWatch()

	for {
		if ctx.Err() != nil {
			s.stop()
			return Frame{}, s.cause(parent)
		}
		s.mu.Lock()
		state := s.state
		if state != StateStopped && s.opts.MaxFrames > 0 && s.index >= s.opts.MaxFrames {
			s.stopLocked()
			state = StateStopped
		}
		capture := s.capture
		s.mu.Unlock()

		switch state {
		case StateStopped:
			return Frame{}, io.EOF

		case StateReconnecting:
			if err := sleepCtx(ctx, s.opts.ReconnectDelay); err != nil {
				s.stop()
				return Frame{}, s.cause(parent)
			}
			c, err := s.opener(ctx, s.url)
			if err != nil {
				s.mu.Lock()
				s.failures++
				attempt := s.failures
				s.mu.Unlock()
				s.logger.Warn("stream reopen failed", "attempt", attempt, "error", err)
				continue
			}
			s.mu.Lock()
			if s.state == StateStopped {
				s.mu.Unlock()
				_ = c.Close()
				return Frame{}, io.EOF
			}
			s.capture = c
			s.state = StateConnected
			s.reconnects++
			s.failures = 0
			s.mu.Unlock()
			s.logger.Info("stream reconnected", "reconnects", s.Reconnects())

		case StateConnected:
			cf, err := s.read(ctx, capture)
			if err != nil {
				if ctx.Err() != nil {
					s.stop()
					return Frame{}, s.cause(parent)
				}
				s.logger.Warn("stream read failed, reconnecting", "error", err, "delay", s.opts.ReconnectDelay)
				s.mu.Lock()
				if s.state == StateConnected {
					_ = s.capture.Close()
					s.capture = nil
					s.state = StateReconnecting
				}
				s.mu.Unlock()
				continue
			}

			s.mu.Lock()
			f := Frame{
				Index:     s.index,
				Timestamp: float64(s.now().UnixNano()) / float64(time.Second),
				Image:     cf.Image,
			}
			s.index++
			s.mu.Unlock()
			return f, nil
		}
	}
}

// read reads one frame, giving up after ReadTimeout.
func (s *LiveStream) read(ctx context.Context, c Capture) (CapturedFrame, error) {
	if s.opts.ReadTimeout <= 0 {
		return c.Read(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, s.opts.ReadTimeout)
	defer cancel()
	cf, err := c.Read(readCtx)
	if err != nil && ctx.Err() == nil && errors.Is(readCtx.Err(), context.DeadlineExceeded) {
		return CapturedFrame{}, fmt.Errorf("%w: no frame within %s", ErrReadTimeout, s.opts.ReadTimeout)
	}
	return cf, err
}

// cause maps the end of a Next call to its result: io.EOF after Close,
// otherwise the caller's context error.
func (s *LiveStream) cause(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *LiveStream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *LiveStream) stopLocked() {
	if s.capture != nil {
		_ = s.capture.Close()
		s.capture = nil
	}
	s.state = StateStopped
}

// Close stops the stream and releases the current handle.
func (s *LiveStream) Close() error {
	s.markClose()
	s.stop()
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

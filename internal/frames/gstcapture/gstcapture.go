// Package gstcapture decodes video files and network streams with GStreamer
// and hands RGBA frames to the frames package.
//
// Pipeline: uridecodebin (rtspsrc over TCP for rtsp:// URLs) → videoconvert →
// capsfilter(RGBA) → appsink
package gstcapture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/frames"
)

const (
	busPollInterval = 50 * time.Millisecond
	prerollTimeout  = 10 * time.Second
	liveQueueSize   = 4
	fileQueueSize   = 16

	defaultTCPTimeout = 10 * time.Second
)

var initOnce sync.Once

// Options configures captures created by NewOpener.
type Options struct {
	// Live drops frames when the consumer falls behind instead of stalling
	// the pipeline. Use it for network streams; leave it off for files so
	// every frame is delivered.
	Live bool
	// TCPTimeout bounds how long rtspsrc waits on a silent connection
	// before posting a pipeline error. 0 uses 10s.
	TCPTimeout time.Duration
	Logger     *slog.Logger
}

// NewOpener returns a frames.Opener backed by GStreamer.
func NewOpener(opts Options) frames.Opener {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, uri string) (frames.Capture, error) {
		return open(ctx, uri, opts, logger)
	}
}

type sample struct {
	img *image.RGBA
	pos time.Duration
}

// Capture is one running GStreamer pipeline.
type Capture struct {
	pipeline *gst.Pipeline
	uri      string
	logger   *slog.Logger

	samples chan sample
	errs    chan error
	done    chan struct{}
	wg      sync.WaitGroup

	eos       bool
	count     int
	closeOnce sync.Once
}

// pipelineDescription builds the gst-launch description for src.
// RTSP sources get an explicit rtspsrc so a stalled camera turns into a
// bus error after tcpTimeout.
func pipelineDescription(src string, tcpTimeout time.Duration) string {
	const tail = "videoconvert ! video/x-raw,format=RGBA ! appsink name=sink sync=false"
	if strings.HasPrefix(strings.ToLower(src), "rtsp://") || strings.HasPrefix(strings.ToLower(src), "rtsps://") {
		if tcpTimeout <= 0 {
			tcpTimeout = defaultTCPTimeout
		}
		return fmt.Sprintf("rtspsrc location=%q protocols=tcp latency=200 tcp-timeout=%d ! decodebin ! %s",
			src, tcpTimeout.Microseconds(), tail)
	}
	return fmt.Sprintf("uridecodebin uri=%q ! %s", src, tail)
}

func open(ctx context.Context, uri string, opts Options, logger *slog.Logger) (*Capture, error) {
	initOnce.Do(func() { gst.Init(nil) })

	src, err := sourceURI(uri)
	if err != nil {
		return nil, err
	}
	live := opts.Live

	pipeline, err := gst.NewPipelineFromString(pipelineDescription(src, opts.TCPTimeout))
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("finding appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)

	size := fileQueueSize
	if live {
		size = liveQueueSize
	}
	c := &Capture{
		pipeline: pipeline,
		uri:      uri,
		logger:   logger.With("uri", uri),
		samples:  make(chan sample, size),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return c.onNewSample(s, live)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("starting pipeline: %w", err)
	}

	c.wg.Add(1)
	go c.watchBus()

	if err := c.awaitFirstFrame(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// awaitFirstFrame waits until the pipeline produced a frame, reported an
// error, or reached end of stream. Errors here surface as open failures.
func (c *Capture) awaitFirstFrame(ctx context.Context) error {
	timer := time.NewTimer(prerollTimeout)
	defer timer.Stop()
	for {
		if len(c.samples) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("no frame within %s", prerollTimeout)
		case err := <-c.errs:
			if errors.Is(err, io.EOF) {
				c.eos = true
				return nil
			}
			return err
		case <-time.After(busPollInterval):
		}
	}
}

func (c *Capture) onNewSample(s *app.Sink, live bool) gst.FlowReturn {
	smp := s.PullSample()
	if smp == nil {
		return gst.FlowEOS
	}
	width, height, ok := sampleSize(smp)
	if !ok {
		c.logger.Warn("gstcapture: sample without dimensions, skipping")
		return gst.FlowOK
	}

	buffer := smp.GetBuffer()
	if buffer == nil {
		c.logger.Warn("gstcapture: sample without buffer, skipping")
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	img, err := toRGBA(mapInfo.Bytes(), width, height)
	pos := buffer.PresentationTimestamp()
	buffer.Unmap()
	if err != nil {
		c.logger.Warn("gstcapture: bad frame, skipping", "error", err)
		return gst.FlowOK
	}
	if pos < 0 {
		pos = 0
	}

	out := sample{img: img, pos: pos}
	if live {
		select {
		case c.samples <- out:
		case <-c.done:
			return gst.FlowFlushing
		default:
			c.logger.Debug("gstcapture: dropping frame, consumer behind")
		}
		return gst.FlowOK
	}
	select {
	case c.samples <- out:
		return gst.FlowOK
	case <-c.done:
		return gst.FlowFlushing
	}
}

func sampleSize(smp *gst.Sample) (int, int, bool) {
	caps := smp.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, false
	}
	st := caps.GetStructureAt(0)
	w, err := st.GetValue("width")
	if err != nil {
		return 0, 0, false
	}
	h, err := st.GetValue("height")
	if err != nil {
		return 0, 0, false
	}
	width, ok1 := w.(int)
	height, ok2 := h.(int)
	return width, height, ok1 && ok2
}

// watchBus forwards the first error or end-of-stream message to errs.
func (c *Capture) watchBus() {
	defer c.wg.Done()
	bus := c.pipeline.GetPipelineBus()
	for {
		select {
		case <-c.done:
			return
		default:
		}
		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			c.report(io.EOF)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			c.logger.Warn("gstcapture: pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			c.report(fmt.Errorf("pipeline error: %s", gerr.Error()))
			return
		}
	}
}

func (c *Capture) report(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// Read returns the next decoded frame. It returns io.EOF after the last frame
// of a finite source, frames.ErrCaptureClosed once Close was called, and an
// error when the pipeline fails.
func (c *Capture) Read(ctx context.Context) (frames.CapturedFrame, error) {
	for {
		select {
		case s := <-c.samples:
			c.count++
			return frames.CapturedFrame{Image: s.img, Position: s.pos}, nil
		default:
		}
		if c.eos {
			return frames.CapturedFrame{}, io.EOF
		}

		select {
		case <-c.done:
			return frames.CapturedFrame{}, frames.ErrCaptureClosed
		case s := <-c.samples:
			c.count++
			return frames.CapturedFrame{Image: s.img, Position: s.pos}, nil
		case err := <-c.errs:
			if errors.Is(err, io.EOF) {
				c.eos = true
				continue
			}
			return frames.CapturedFrame{}, err
		case <-ctx.Done():
			return frames.CapturedFrame{}, ctx.Err()
		}
	}
}

// Close stops the pipeline. Safe to call more than once.
func (c *Capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pipeline.SetState(gst.StateNull)
		c.wg.Wait()
		c.logger.Debug("gstcapture: closed", "frames", c.count)
	})
	return err
}

// sourceURI turns a plain file path into a file:// URI; anything with a
// scheme is passed through.
func sourceURI(s string) (string, error) {
	if strings.Contains(s, "://") {
		return s, nil
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", s, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// toRGBA copies tightly packed RGBA pixels into an image.
func toRGBA(data []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	want := width * height * 4
	if len(data) < want {
		return nil, fmt.Errorf("frame buffer has %d bytes, want %d", len(data), want)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:want])
	return img, nil
}

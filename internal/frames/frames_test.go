package frames

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/logging"
)

var errRead = errors.New("read failed")

// fakeCapture yields frames until failAt reads (1-based, 0 = never) or limit frames (0 = unlimited).
// From read stallAt on, Read blocks until its context is done.
type fakeCapture struct {
	mu      sync.Mutex
	reads   int
	failAt  int
	stallAt int
	limit   int
	fps     float64
	closed  int
}

func (c *fakeCapture) Read(ctx context.Context) (CapturedFrame, error) {
	c.mu.Lock()
	c.reads++
	if c.stallAt > 0 && c.reads >= c.stallAt {
		c.mu.Unlock()
		<-ctx.Done()
		return CapturedFrame{}, ctx.Err()
	}
	defer c.mu.Unlock()
	if c.failAt > 0 && c.reads == c.failAt {
		return CapturedFrame{}, errRead
	}
	if c.limit > 0 && c.reads > c.limit {
		return CapturedFrame{}, io.EOF
	}
	fps := c.fps
	if fps == 0 {
		fps = 10
	}
	pos := time.Duration(float64(c.reads-1) / fps * float64(time.Second))
	return CapturedFrame{Image: image.NewRGBA(image.Rect(0, 0, 2, 2)), Position: pos}, nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// scriptedOpener hands out captures in order; a nil entry means the open fails.
type scriptedOpener struct {
	mu       sync.Mutex
	captures []*fakeCapture
	calls    int
}

func (o *scriptedOpener) open(context.Context, string) (Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.calls
	o.calls++
	if i >= len(o.captures) {
		return &fakeCapture{}, nil
	}
	if o.captures[i] == nil {
		return nil, errors.New("connection refused")
	}
	return o.captures[i], nil
}

func TestLiveStream_ReconnectsOnceAfterThirdReadFails(t *testing.T) {
	first := &fakeCapture{failAt: 3}
	second := &fakeCapture{}
	op := &scriptedOpener{captures: []*fakeCapture{first, second}}

	s, err := OpenLiveStream(context.Background(), op.open, "rtsp://cam", LiveOptions{
		ReconnectDelay: time.Millisecond,
		MaxFrames:      6,
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)
	defer s.Close()

	var indices []int
	for {
		f, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		indices = append(indices, f.Index)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, indices)
	assert.Equal(t, 1, s.Reconnects())
	assert.Equal(t, 2, op.calls)
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, StateStopped, s.State())
}

func TestLiveStream_InitialOpenFailureIsFatal(t *testing.T) {
	op := &scriptedOpener{captures: []*fakeCapture{nil}}

	_, err := OpenLiveStream(context.Background(), op.open, "rtsp://cam", LiveOptions{})
	require.ErrorIs(t, err, ErrSourceOpen)
}

func TestLiveStream_RetriesFailedReopens(t *testing.T) {
	op := &scriptedOpener{captures: []*fakeCapture{{failAt: 1}, nil, nil, {}}}

	s, err := OpenLiveStream(context.Background(), op.open, "rtsp://cam", LiveOptions{
		ReconnectDelay: time.Millisecond,
		MaxFrames:      2,
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)

	f, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.Index)
	assert.Equal(t, 4, op.calls)
	assert.Equal(t, 1, s.Reconnects())
}

func TestLiveStream_CancelDuringReconnectSleep(t *testing.T) {
	op := &scriptedOpener{captures: []*fakeCapture{{failAt: 1}}}

	s, err := OpenLiveStream(context.Background(), op.open, "rtsp://cam", LiveOptions{
		ReconnectDelay: time.Hour,
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect sleep was not cancelled")
	}
	assert.Equal(t, StateStopped, s.State())
}

func TestLiveStream_CloseStops(t *testing.T) {
	c := &fakeCapture{}
	op := &scriptedOpener{captures: []*fakeCapture{c}}

	s, err := OpenLiveStream(context.Background(), op.open, "rtsp://cam", LiveOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, c.closed)
}

func TestLiveStream_StalledReadReconnects(t *testing.T) {
	stalled := &fakeCapture{stallAt: 2}
	op := &scriptedOpener{captures: []*fakeCapture{stalled, {}}}

	s, err := OpenLiveStream(context.Background(), op.open, "rtsp://cam", LiveOptions{
		ReconnectDelay: time.Millisecond,
		ReadTimeout:    20 * time.Millisecond,
		MaxFrames:      3,
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)
	defer s.Close()

	var indices []int
	for {
		f, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		indices = append(indices, f.Index)
	}

	assert.Equal(t, []int{0, 1, 2}, indices)
	assert.Equal(t, 1, s.Reconnects())
	assert.Equal(t, 1, stalled.closed)
}

func TestLiveStream_ReadTimeoutError(t *testing.T) {
	s := &LiveStream{opts: LiveOptions{ReadTimeout: 10 * time.Millisecond}}

	_, err := s.read(context.Background(), &fakeCapture{stallAt: 1})
	require.ErrorIs(t, err, ErrReadTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.read(ctx, &fakeCapture{stallAt: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrReadTimeout)
}

func TestLiveStream_CloseReleasesBlockedNext(t *testing.T) {
	c := &fakeCapture{stallAt: 1}
	op := &scriptedOpener{captures: []*fakeCapture{c}}

	s, err := OpenLiveStream(context.Background(), op.open, "rtsp://cam", LiveOptions{
		Logger: logging.Discard(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not release the blocked Next")
	}
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 1, c.closed)
}

func TestBoundedVideo_Stride(t *testing.T) {
	c := &fakeCapture{limit: 10, fps: 10}
	op := &scriptedOpener{captures: []*fakeCapture{c}}

	v, err := OpenVideo(context.Background(), op.open, "clip.mp4", 3)
	require.NoError(t, err)

	var indices []int
	var stamps []float64
	for {
		f, err := v.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		indices = append(indices, f.Index)
		stamps = append(stamps, f.Timestamp)
	}
	assert.Equal(t, []int{0, 3, 6, 9}, indices)
	assert.InDeltaSlice(t, []float64{0, 0.3, 0.6, 0.9}, stamps, 1e-9)
	assert.Equal(t, 10, v.FramesRead())

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, c.closed)
}

func TestBoundedVideo_OpenFailure(t *testing.T) {
	op := &scriptedOpener{captures: []*fakeCapture{nil}}

	_, err := OpenVideo(context.Background(), op.open, "missing.mp4", 1)
	require.ErrorIs(t, err, ErrSourceOpen)
}

func TestBoundedVideo_ZeroStrideMeansEveryFrame(t *testing.T) {
	op := &scriptedOpener{captures: []*fakeCapture{{limit: 3}}}

	v, err := OpenVideo(context.Background(), op.open, "clip.mp4", 0)
	require.NoError(t, err)
	defer v.Close()

	n := 0
	for {
		_, err := v.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 3, n)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	require.NoError(t, png.Encode(f, img))
}

func writeBMP(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, bmp.Encode(f, image.NewRGBA(image.Rect(0, 0, 3, 3))))
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}

func TestImageSet_LexicalWalkSkipsUndecodable(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.JPG"), []byte("not an image"), 0o644))
	writeBMP(t, filepath.Join(dir, "d.bmp"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	writePNG(t, filepath.Join(dir, "sub", "c.PNG"))
	writePNG(t, filepath.Join(dir, "z.png"))

	s, err := NewImageSet(dir, isImage, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())

	var got []string
	var indices []int
	for {
		f, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		rel, _ := filepath.Rel(dir, f.Path)
		got = append(got, filepath.ToSlash(rel))
		indices = append(indices, f.Index)
		assert.NotNil(t, f.Image)
		assert.NotEmpty(t, f.Data)
	}

	assert.Equal(t, []string{"a.png", "d.bmp", "sub/c.PNG", "z.png"}, got)
	assert.Equal(t, []int{0, 1, 2, 3}, indices)
	require.Len(t, s.Skipped(), 1)
	assert.Equal(t, "b.JPG", filepath.Base(s.Skipped()[0]))
}

func TestImageSet_MissingDirectory(t *testing.T) {
	_, err := NewImageSet(filepath.Join(t.TempDir(), "nope"), isImage, nil)
	require.ErrorIs(t, err, ErrSourceOpen)
}

func TestLoadImage_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	_, err := LoadImage(bad)
	require.ErrorIs(t, err, ErrSourceOpen)

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	require.ErrorIs(t, err, ErrSourceOpen)
}

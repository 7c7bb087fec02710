package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/config"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database/mock"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/detector"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/events"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/frames"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/logging"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/pipeline"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/results"
)

var aliceEmbedding = []float32{1, 0, 0, 0}

// faceEngine finds one face in every image or frame unless the image file
// name contains "empty". Every face embeds to aliceEmbedding.
type faceEngine struct{}

func (faceEngine) Detect(_ context.Context, f frames.Frame) ([]detector.Detection, error) {
	if f.Path != "" && strings.Contains(filepath.Base(f.Path), "empty") {
		return nil, nil
	}
	return []detector.Detection{{BBox: [4]int{1, 2, 3, 4}, Confidence: 0.99, Embedding: aliceEmbedding}}, nil
}

func (faceEngine) Embed(_ context.Context, _ frames.Frame, d detector.Detection) ([]float32, error) {
	return d.Embedding, nil
}

// frameCapture yields n small frames at 10 fps, optionally pausing on each read.
type frameCapture struct {
	n     int
	read  int
	delay time.Duration
}

func (c *frameCapture) Read(ctx context.Context) (frames.CapturedFrame, error) {
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return frames.CapturedFrame{}, ctx.Err()
		case <-time.After(c.delay):
		}
	}
	if c.read >= c.n {
		return frames.CapturedFrame{}, io.EOF
	}
	c.read++
	return frames.CapturedFrame{
		Image:    image.NewRGBA(image.Rect(0, 0, 2, 2)),
		Position: time.Duration(c.read-1) * 100 * time.Millisecond,
	}, nil
}

func (c *frameCapture) Close() error { return nil }

type testEnv struct {
	deps    Deps
	store   *mock.Store
	sink    *events.Sink
	cfg     *config.Config
	frames  int
	delay   time.Duration
	lastOpt struct {
		threshold float64
		stride    int
	}
}

// testConfig creates a minimal config for testing
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Matching:        config.MatchingConfig{Threshold: 0.35, EmbeddingDim: 4, TopK: 1},
		Processing:      config.ProcessingConfig{VideoStride: 1, ReconnectDelay: time.Millisecond},
		Results:         config.ResultsConfig{Dir: filepath.Join(root, "results")},
		Web:             config.WebConfig{UploadDir: filepath.Join(root, "uploads"), WatchlistDir: filepath.Join(root, "watchlist"), MaxUploadMB: 10},
		ImageExtensions: []string{".jpg", ".jpeg", ".png", ".bmp"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  mock.NewStore(4),
		sink:   events.NewSink(logging.Discard()),
		cfg:    testConfig(t),
		frames: 5,
	}
	env.deps = Deps{
		Config: env.cfg,
		Store:  env.store,
		Sink:   env.sink,
		Logger: logging.Discard(),
		NewOrchestrator: func(threshold float64, stride int) *pipeline.Orchestrator {
			env.lastOpt.threshold = threshold
			env.lastOpt.stride = stride
			if threshold == 0 {
				threshold = env.cfg.Matching.Threshold
			}
			return pipeline.New(env.store, faceEngine{}, env.sink, pipeline.Options{
				Threshold: threshold,
				Opener: func(context.Context, string) (frames.Capture, error) {
					return &frameCapture{n: env.frames, delay: env.delay}, nil
				},
				IsImage: env.cfg.IsImageFile,
				Results: results.FileWriter{Dir: env.cfg.Results.Dir},
				Logger:  logging.Discard(),
			})
		},
		Health: func(context.Context) (bool, bool) { return true, true },
	}
	return env
}

// pngBytes encodes a tiny PNG.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest builds a multipart POST with files under field and extra form values.
func multipartRequest(t *testing.T, path, field string, files map[string][]byte, values map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		part.Write(data)
	}
	for k, v := range values {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// waitForStatus polls until the job reaches a terminal state.
func waitForStatus(t *testing.T, jm *JobManager, id string) JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job := jm.GetJob(id); job != nil && isJobTerminal(job.GetStatus()) {
			return job.GetStatus()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return ""
}

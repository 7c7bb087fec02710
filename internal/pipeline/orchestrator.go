// Package pipeline wires frame sources, the detection engine, the matcher
// and the event sink into image, video, live-stream and watchlist-build runs.
//
// Each source is processed one frame at a time: a frame is detected,
// embedded, matched and reported before the next one is read.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/detector"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/events"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/frames"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/matcher"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/results"
)

// Options configures an Orchestrator.
type Options struct {
	Threshold      float64 // 0 selects the matcher default
	TopK           int     // candidates kept per face; below 2 records only the best
	EmbeddingDim   int     // query length the gallery expects; 0 accepts any length
	VideoStride    int
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration     // live stream stall limit; 0 waits forever
	Opener         frames.Opener     // opens video files and streams
	IsImage        func(string) bool // filters watchlist directories
	Results        results.Writer    // optional sink for persisted video results
	Logger         *slog.Logger
}

// Orchestrator owns one Matcher; its snapshot is not shared with other orchestrators.
type Orchestrator struct {
	store   database.IdentityWriter
	engine  detector.Engine
	matcher *matcher.Matcher
	sink    *events.Sink
	opts    Options
	logger  *slog.Logger
}

// New creates an orchestrator over store.
func New(store database.IdentityWriter, engine detector.Engine, sink *events.Sink, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.VideoStride < 1 {
		opts.VideoStride = constants.DefaultVideoStride
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = constants.DefaultReconnectDelay
	}
	return &Orchestrator{
		store:   store,
		engine:  engine,
		matcher: matcher.New(store, opts.Threshold),
		sink:    sink,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Matcher exposes the orchestrator's matcher.
func (o *Orchestrator) Matcher() *matcher.Matcher { return o.matcher }

// Sink exposes the event sink.
func (o *Orchestrator) Sink() *events.Sink { return o.sink }

// frameContext says how a processed frame is reported.
type frameContext struct {
	source    string // event source: file path or stream URL
	alertPath string // image_path of alerts; empty for video and streams
	timed     bool   // tag records with frame index and timestamp
}

// processFrame runs detect, embed and match for every face in f.
// Embedding failures and malformed embeddings skip the face; store read
// failures abort the frame.
func (o *Orchestrator) processFrame(ctx context.Context, f frames.Frame, fc frameContext) ([]results.Record, error) {
	dets, err := o.engine.Detect(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	bboxes := make([][4]int, 0, len(dets))
	for _, d := range dets {
		bboxes = append(bboxes, d.BBox)
	}
	o.sink.Detection(len(dets), bboxes, fc.source)

	topK := o.opts.TopK
	if topK < 1 {
		topK = 1
	}

	recs := make([]results.Record, 0, len(dets))
	for _, d := range dets {
		emb, err := o.engine.Embed(ctx, f, d)
		if err != nil {
			o.logger.Debug("skipping face without embedding", "source", fc.source, "face", d.Index, "error", err)
			continue
		}
		if err := database.ValidateEmbedding(emb, o.opts.EmbeddingDim); err != nil {
			o.logger.Warn("skipping face with unusable embedding", "source", fc.source, "face", d.Index, "error", err)
			continue
		}

		matches, err := o.matcher.Match(ctx, emb, topK)
		if err != nil {
			return recs, fmt.Errorf("matching face %d: %w", d.Index, err)
		}

		rec := results.Record{BBox: d.BBox, DetScore: d.Confidence}
		if fc.timed {
			idx, ts := f.Index, f.Timestamp
			rec.Frame = &idx
			rec.Timestamp = &ts
		}
		if len(matches) > 0 {
			best := matches[0]
			rec.Matched = true
			rec.PersonID = best.PersonID
			rec.PersonName = best.PersonName
			rec.Similarity = best.Similarity
			for _, m := range matches[1:] {
				rec.Candidates = append(rec.Candidates, results.Candidate{
					PersonID: m.PersonID, PersonName: m.PersonName, Similarity: m.Similarity,
				})
			}
			o.report(f, fc, best)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (o *Orchestrator) report(f frames.Frame, fc frameContext, m matcher.Result) {
	if fc.timed {
		o.sink.Alert(m.PersonID, m.PersonName, m.Similarity, fc.source, map[string]any{"frame": f.Index})
		idx := f.Index
		o.sink.Track(m.PersonID, m.PersonName, fc.source, &idx, f.Timestamp)
		return
	}
	o.sink.Alert(m.PersonID, m.PersonName, m.Similarity, fc.alertPath, nil)
	o.sink.Track(m.PersonID, m.PersonName, fc.source, nil, 0)
}

// ProcessImage matches every face in one image file. source labels the
// events and defaults to path.
func (o *Orchestrator) ProcessImage(ctx context.Context, path, source string) ([]results.Record, error) {
	f, err := frames.LoadImage(path)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = path
	}
	return o.processFrame(ctx, f, frameContext{source: source, alertPath: path})
}

// VideoOptions configures ProcessVideo.
type VideoOptions struct {
	Stride   int                         // 0 uses the orchestrator default
	Output   string                      // result name passed to the results writer; empty skips persisting
	Progress func(framesRead, faces int) // called after each sampled frame
}

// VideoResult summarises a ProcessVideo run.
type VideoResult struct {
	Records    []results.Record
	FramesRead int
	Location   string // where results were persisted, if anywhere
}

// ProcessVideo matches faces in every stride-th frame of a video file.
// Failing to open the file is fatal; failures on single frames are logged
// and skipped.
func (o *Orchestrator) ProcessVideo(ctx context.Context, path string, opts VideoOptions) (VideoResult, error) {
	if o.opts.Opener == nil {
		return VideoResult{}, fmt.Errorf("video %s: %w: no video opener configured", path, frames.ErrSourceOpen)
	}
	stride := opts.Stride
	if stride < 1 {
		stride = o.opts.VideoStride
	}

	video, err := frames.OpenVideo(ctx, o.opts.Opener, path, stride)
	if err != nil {
		return VideoResult{}, err
	}
	defer func() {
		if err := video.Close(); err != nil {
			o.logger.Warn("closing video", "path", path, "error", err)
		}
	}()

	res := VideoResult{Records: []results.Record{}}
	fc := frameContext{source: path, timed: true}
	for {
		f, err := video.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				res.FramesRead = video.FramesRead()
				return res, ctxErr
			}
			o.logger.Warn("video read failed, stopping", "path", path, "error", err)
			break
		}

		recs, err := o.processFrame(ctx, f, fc)
		res.Records = append(res.Records, recs...)
		if err != nil {
			if errors.Is(err, database.ErrStoreRead) {
				res.FramesRead = video.FramesRead()
				return res, err
			}
			o.logger.Warn("frame processing failed", "path", path, "frame", f.Index, "error", err)
		}
		if opts.Progress != nil {
			opts.Progress(video.FramesRead(), len(res.Records))
		}
	}
	res.FramesRead = video.FramesRead()

	if opts.Output != "" && o.opts.Results != nil {
		loc, err := o.opts.Results.Write(ctx, opts.Output, res.Records)
		if err != nil {
			return res, fmt.Errorf("persisting results: %w", err)
		}
		res.Location = loc
	}

	o.logger.Info("video processed", "path", path, "frames", res.FramesRead, "faces", len(res.Records))
	return res, nil
}

// ProcessLiveStream matches faces on a live stream until maxFrames frames
// were processed (0 = unbounded) or ctx is cancelled. Results are only
// reported as events. Only the initial connection failure is returned.
func (o *Orchestrator) ProcessLiveStream(ctx context.Context, url string, maxFrames int) error {
	if o.opts.Opener == nil {
		return fmt.Errorf("stream %s: %w: no stream opener configured", url, frames.ErrSourceOpen)
	}
	stream, err := frames.OpenLiveStream(ctx, o.opts.Opener, url, frames.LiveOptions{
		ReconnectDelay: o.opts.ReconnectDelay,
		ReadTimeout:    o.opts.ReadTimeout,
		MaxFrames:      maxFrames,
		Logger:         o.logger,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	fc := frameContext{source: url, timed: true}
	processed := 0
	for {
		f, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.logger.Info("stream stopped", "url", url, "frames", processed, "reason", err)
			return nil
		}
		if _, err := o.processFrame(ctx, f, fc); err != nil {
			o.logger.Warn("frame processing failed", "url", url, "frame", f.Index, "error", err)
		}
		processed++
	}

	o.logger.Info("stream finished", "url", url, "frames", processed, "reconnects", stream.Reconnects())
	return nil
}

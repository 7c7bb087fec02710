// Package app assembles the long-lived dependencies shared by CLI commands
// and the web server: the watchlist store, the detector client, the event
// sink with its deliverers, and the results writers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/config"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/detector"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/events"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/frames"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/frames/gstcapture"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/pipeline"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/results"

	// Storage backends register themselves with the database package.
	_ "github.com/androidcarpooling/AI-CCTV-Detection/internal/database/mariadb"
	_ "github.com/androidcarpooling/AI-CCTV-Detection/internal/database/natskv"
	_ "github.com/androidcarpooling/AI-CCTV-Detection/internal/database/postgres"
	_ "github.com/androidcarpooling/AI-CCTV-Detection/internal/database/sqlite"
)

// App holds the process-wide dependencies. Orchestrators are created per run
// so every run gets its own matcher cache.
type App struct {
	Config   *config.Config
	Store    database.Store
	Detector *detector.Client
	Sink     *events.Sink
	Results  results.Writer
	Logger   *slog.Logger

	videoOpener  frames.Opener
	streamOpener frames.Opener
	closers      []func()
}

// Option customises New.
type Option func(*App)

// WithStore uses store instead of opening the configured backend.
func WithStore(store database.Store) Option {
	return func(a *App) { a.Store = store }
}

// WithOpeners replaces the GStreamer-backed openers.
func WithOpeners(video, stream frames.Opener) Option {
	return func(a *App) {
		a.videoOpener = video
		a.streamOpener = stream
	}
}

// New connects everything cfg describes. Deliverers that fail to connect are
// logged and left out; a store that fails to open is fatal.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if a.Store == nil {
		backend, err := database.ParseBackend(cfg.Database.Type)
		if err != nil {
			return nil, err
		}
		store, err := database.Open(ctx, backend, database.Options{
			URL:          cfg.Database.URL,
			Dim:          cfg.Matching.EmbeddingDim,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			Bucket:       cfg.Database.NATSBucket,
		})
		if err != nil {
			return nil, err
		}
		a.Store = store
		logger.Info("watchlist store opened", "backend", backend.String(), "kind", backend.Kind().String())
	}

	a.Detector = detector.NewClient(cfg.Detector.URL, cfg.Detector.Timeout)
	a.Sink = events.NewSink(logger, a.deliverers()...)

	writer, err := a.resultsWriter(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Results = writer

	if a.videoOpener == nil {
		a.videoOpener = gstcapture.NewOpener(gstcapture.Options{Logger: logger})
	}
	if a.streamOpener == nil {
		a.streamOpener = gstcapture.NewOpener(gstcapture.Options{Live: true, Logger: logger})
	}
	return a, nil
}

func (a *App) deliverers() []events.Deliverer {
	cfg := a.Config.Events
	var out []events.Deliverer

	if cfg.WebhookURL != "" {
		out = append(out, events.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout, cfg.WebhookRate))
		a.Logger.Info("webhook delivery enabled", "url", cfg.WebhookURL)
	}
	if cfg.NATSURL != "" {
		p, err := events.DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			a.Logger.Warn("NATS event delivery disabled", "url", cfg.NATSURL, "error", err)
		} else {
			out = append(out, p)
			a.closers = append(a.closers, p.Close)
			a.Logger.Info("NATS event delivery enabled", "subject", cfg.NATSSubject)
		}
	}
	if cfg.MQTTBroker != "" {
		p, err := events.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			a.Logger.Warn("MQTT event delivery disabled", "broker", cfg.MQTTBroker, "error", err)
		} else {
			out = append(out, p)
			a.closers = append(a.closers, p.Close)
			a.Logger.Info("MQTT event delivery enabled", "topic", cfg.MQTTTopic)
		}
	}
	return out
}

func (a *App) resultsWriter(ctx context.Context) (results.Writer, error) {
	cfg := a.Config.Results
	multi := results.Multi{results.FileWriter{Dir: cfg.Dir, Compress: cfg.Compress}}

	if cfg.S3Bucket != "" {
		w, err := results.NewS3Writer(ctx, cfg.S3Bucket, "results", cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("configuring S3 results: %w", err)
		}
		multi = append(multi, w)
	}
	if cfg.MinIOEndpoint != "" {
		w, err := results.NewMinIOWriter(results.MinIOOptions{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Prefix:    "results",
			Secure:    cfg.MinIOSecure,
			Compress:  cfg.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring MinIO results: %w", err)
		}
		multi = append(multi, w)
	}
	if len(multi) == 1 {
		return multi[0], nil
	}
	return multi, nil
}

// RunOptions tunes one orchestrator.
type RunOptions struct {
	Threshold float64 // 0 uses the configured threshold
	Stride    int     // 0 uses the configured stride
	Live      bool    // read sources as live streams
}

// Orchestrator creates a pipeline orchestrator with a fresh matcher.
func (a *App) Orchestrator(opts RunOptions) *pipeline.Orchestrator {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = a.Config.Matching.Threshold
	}
	stride := opts.Stride
	if stride < 1 {
		stride = a.Config.Processing.VideoStride
	}
	opener := a.videoOpener
	if opts.Live {
		opener = a.streamOpener
	}
	return pipeline.New(a.Store, a.Detector, a.Sink, pipeline.Options{
		Threshold:      threshold,
		TopK:           a.Config.Matching.TopK,
		EmbeddingDim:   a.Config.Matching.EmbeddingDim,
		VideoStride:    stride,
		ReconnectDelay: a.Config.Processing.ReconnectDelay,
		ReadTimeout:    a.Config.Processing.ReadTimeout,
		Opener:         opener,
		IsImage:        a.Config.IsImageFile,
		Results:        a.Results,
		Logger:         a.Logger,
	})
}

// Health reports whether the store and the detector respond.
type Health struct {
	Database bool `json:"database"`
	Detector bool `json:"detector"`
	Events   bool `json:"events"`
}

// CheckHealth probes the store and the detector.
func (a *App) CheckHealth(ctx context.Context) Health {
	var h Health
	if _, err := a.Store.Count(ctx); err == nil {
		h.Database = true
	} else {
		a.Logger.Debug("health: store unavailable", "error", err)
	}
	if err := a.Detector.Ping(ctx); err == nil {
		h.Detector = true
	} else {
		a.Logger.Debug("health: detector unavailable", "error", err)
	}
	h.Events = a.Sink != nil
	return h
}

// Close flushes pending event deliveries and releases every connection.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Sink != nil {
		if err := a.Sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing event sink: %w", err))
		}
	}
	for _, c := range a.closers {
		c()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	return errors.Join(errs...)
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Matching   MatchingConfig
	Database   DatabaseConfig
	Detector   DetectorConfig
	Events     EventsConfig
	Processing ProcessingConfig
	Results    ResultsConfig
	Web        WebConfig
	Logging    LoggingConfig

	// ImageExtensions lists the lowercase file extensions treated as images.
	ImageExtensions []string
}

type MatchingConfig struct {
	Threshold    float64 // Minimum cosine similarity for a match (default 0.35)
	EmbeddingDim int     // Expected embedding length (default 512)
	TopK         int     // Candidates returned per query face (default 1)
}

type DatabaseConfig struct {
	Type         string // sqlite, postgres, mysql or nats
	URL          string // SQLite path, PostgreSQL URL, MySQL DSN or NATS URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	NATSBucket   string // JetStream key-value bucket name
}

type DetectorConfig struct {
	URL     string // defaults to http://localhost:8000
	Timeout time.Duration
}

type EventsConfig struct {
	WebhookURL     string // empty disables webhook delivery
	WebhookTimeout time.Duration
	WebhookRate    float64 // events per second, 0 = unlimited
	NATSURL        string  // empty disables NATS fan-out
	NATSSubject    string
	MQTTBroker     string // host:port, empty disables MQTT fan-out
	MQTTTopic      string
	MQTTClientID   string
}

type ProcessingConfig struct {
	VideoStride    int
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration // live stream stall limit; 0 waits forever
}

type ResultsConfig struct {
	Dir            string
	Compress       bool // zstd-compress persisted result files
	S3Bucket       string
	MinIOEndpoint  string
	MinIOBucket    string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOSecure    bool
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins; empty allows localhost only
	UploadDir      string
	WatchlistDir   string
	MaxUploadMB    int
}

type LoggingConfig struct {
	Level  string
	Format string // text or json
}

// defaults mirrors defaults.yaml.
type defaults struct {
	Matching struct {
		Threshold    float64 `yaml:"threshold"`
		EmbeddingDim int     `yaml:"embedding_dim"`
		TopK         int     `yaml:"top_k"`
	} `yaml:"matching"`
	Database struct {
		Type         string `yaml:"type"`
		URL          string `yaml:"url"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
		NATSBucket   string `yaml:"nats_bucket"`
	} `yaml:"database"`
	Detector struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"detector"`
	Events struct {
		WebhookTimeout string `yaml:"webhook_timeout"`
		NATSSubject    string `yaml:"nats_subject"`
		MQTTTopic      string `yaml:"mqtt_topic"`
		MQTTClientID   string `yaml:"mqtt_client_id"`
	} `yaml:"events"`
	Processing struct {
		VideoStride    int    `yaml:"video_stride"`
		ReconnectDelay string `yaml:"reconnect_delay"`
		ReadTimeout    string `yaml:"read_timeout"`
	} `yaml:"processing"`
	Results struct {
		Dir string `yaml:"dir"`
	} `yaml:"results"`
	Web struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		UploadDir    string `yaml:"upload_dir"`
		WatchlistDir string `yaml:"watchlist_dir"`
		MaxUploadMB  int    `yaml:"max_upload_mb"`
	} `yaml:"web"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	ImageExtensions []string `yaml:"image_extensions"`
}

// envString returns the env var value, or defaultVal when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a bool (1, true, yes, on).
func envBool(key string, defaultVal bool) bool {
	s := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch s {
	case "":
		return defaultVal
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("5s", "250ms").
// A bare number is taken as seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	return parseDuration(s, defaultVal)
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// Embedded at build time, so this only fires on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := loadDefaults()

	exts := make([]string, 0, len(d.ImageExtensions))
	for _, e := range d.ImageExtensions {
		exts = append(exts, strings.ToLower(e))
	}

	return &Config{
		Matching: MatchingConfig{
			Threshold:    envFloat("SIMILARITY_THRESHOLD", d.Matching.Threshold),
			EmbeddingDim: envInt("EMBEDDING_DIM", d.Matching.EmbeddingDim),
			TopK:         envInt("MATCH_TOP_K", d.Matching.TopK),
		},
		Database: DatabaseConfig{
			Type:         strings.ToLower(envString("DATABASE_TYPE", d.Database.Type)),
			URL:          envString("DATABASE_URL", d.Database.URL),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
			NATSBucket:   envString("NATS_KV_BUCKET", d.Database.NATSBucket),
		},
		Detector: DetectorConfig{
			URL:     envString("DETECTOR_URL", d.Detector.URL),
			Timeout: envDuration("DETECTOR_TIMEOUT", parseDuration(d.Detector.Timeout, 30*time.Second)),
		},
		Events: EventsConfig{
			WebhookURL:     os.Getenv("WEBHOOK_URL"),
			WebhookTimeout: envDuration("WEBHOOK_TIMEOUT", parseDuration(d.Events.WebhookTimeout, 5*time.Second)),
			WebhookRate:    envFloat("WEBHOOK_RATE", 0),
			NATSURL:        os.Getenv("EVENT_NATS_URL"),
			NATSSubject:    envString("EVENT_NATS_SUBJECT", d.Events.NATSSubject),
			MQTTBroker:     os.Getenv("MQTT_BROKER"),
			MQTTTopic:      envString("MQTT_TOPIC", d.Events.MQTTTopic),
			MQTTClientID:   envString("MQTT_CLIENT_ID", d.Events.MQTTClientID),
		},
		Processing: ProcessingConfig{
			VideoStride:    envInt("VIDEO_STRIDE", d.Processing.VideoStride),
			ReconnectDelay: envDuration("STREAM_RECONNECT_DELAY", parseDuration(d.Processing.ReconnectDelay, 5*time.Second)),
			ReadTimeout:    envDuration("STREAM_READ_TIMEOUT", parseDuration(d.Processing.ReadTimeout, 15*time.Second)),
		},
		Results: ResultsConfig{
			Dir:            envString("RESULTS_DIR", d.Results.Dir),
			Compress:       envBool("RESULTS_COMPRESS", false),
			S3Bucket:       os.Getenv("RESULTS_S3_BUCKET"),
			MinIOEndpoint:  os.Getenv("RESULTS_MINIO_ENDPOINT"),
			MinIOBucket:    os.Getenv("RESULTS_MINIO_BUCKET"),
			MinIOAccessKey: os.Getenv("RESULTS_MINIO_ACCESS_KEY"),
			MinIOSecretKey: os.Getenv("RESULTS_MINIO_SECRET_KEY"),
			MinIOSecure:    envBool("RESULTS_MINIO_SECURE", false),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			UploadDir:      envString("UPLOAD_DIR", d.Web.UploadDir),
			WatchlistDir:   envString("WATCHLIST_DIR", d.Web.WatchlistDir),
			MaxUploadMB:    envInt("MAX_UPLOAD_MB", d.Web.MaxUploadMB),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", d.Logging.Level)),
			Format: strings.ToLower(envString("LOG_FORMAT", d.Logging.Format)),
		},
		ImageExtensions: exts,
	}
}

// Validate checks values that would otherwise fail deep inside a pipeline run.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_TYPE %q", c.Database.Type))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Matching.Threshold < -1 || c.Matching.Threshold > 1 {
		errs = append(errs, fmt.Errorf("SIMILARITY_THRESHOLD must be within [-1, 1], got %v", c.Matching.Threshold))
	}
	if c.Matching.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Matching.EmbeddingDim))
	}
	return errors.Join(errs...)
}

// IsImageFile reports whether path has one of the configured image extensions.
func (c *Config) IsImageFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range c.ImageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

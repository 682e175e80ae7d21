// Package config loads the immutable runtime configuration for morphd from
// MORPHD_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the immutable configuration snapshot for one daemon run.
type Config struct {
	// HTTP surface
	ListenAddr string
	BaseURL    string // external base URL for artifact links, e.g. "/videos"

	// Filesystem layout
	OutputDir string // generated video artifacts and analysis payloads
	ImagesDir string // category image corpus root

	// Morph pipeline
	FrameCount   int // frames per morph sequence, includes alpha 0 and 1
	FPS          int // encoded video frame rate
	BaseSize     int // square working resolution, pixels
	MinLandmarks int // minimum usable landmarks before falling back to blend
	MaxJobs      int64

	// External collaborators
	DetectorURL   string // landmark detector sidecar; empty disables detection
	ClassifierURL string // classifier/attribution sidecar; empty means stub
	FFmpegPath    string

	// Session lifecycle
	SessionTTL time.Duration // retention past terminal state

	// Rate limiting
	RequestsPerMinute int // per-IP API limit
	JobStartPerMinute int // global job admission limit

	// Telemetry
	LogLevel         string
	OTELEnabled      bool
	OTELExporter     string // "grpc" or "http"
	OTELEndpoint     string
	OTELSamplingRate float64
}

// FromEnv builds a Config from environment variables with defaults matching
// the reference deployment (120 frames at 30 fps, 320px working size).
func FromEnv() Config {
	return Config{
		ListenAddr:        ParseString("MORPHD_LISTEN", ":8080"),
		BaseURL:           ParseString("MORPHD_BASE_URL", "/videos"),
		OutputDir:         ParseString("MORPHD_OUTPUT_DIR", "./outputs"),
		ImagesDir:         ParseString("MORPHD_IMAGES_DIR", "./images"),
		FrameCount:        ParseInt("MORPHD_FRAMES", 120),
		FPS:               ParseInt("MORPHD_FPS", 30),
		BaseSize:          ParseInt("MORPHD_BASE_SIZE", 320),
		MinLandmarks:      ParseInt("MORPHD_MIN_LANDMARKS", 3),
		MaxJobs:           int64(ParseInt("MORPHD_MAX_JOBS", 2)),
		DetectorURL:       ParseString("MORPHD_DETECTOR_URL", ""),
		ClassifierURL:     ParseString("MORPHD_CLASSIFIER_URL", ""),
		FFmpegPath:        ParseString("MORPHD_FFMPEG", "ffmpeg"),
		SessionTTL:        ParseDuration("MORPHD_SESSION_TTL", 15*time.Minute),
		RequestsPerMinute: ParseInt("MORPHD_RATE_LIMIT", 120),
		JobStartPerMinute: ParseInt("MORPHD_JOB_RATE_LIMIT", 10),
		LogLevel:          ParseString("MORPHD_LOG_LEVEL", "info"),
		OTELEnabled:       ParseBool("MORPHD_OTEL_ENABLED", false),
		OTELExporter:      ParseString("MORPHD_OTEL_EXPORTER", "grpc"),
		OTELEndpoint:      ParseString("MORPHD_OTEL_ENDPOINT", "localhost:4317"),
		OTELSamplingRate:  ParseFloat("MORPHD_OTEL_SAMPLING", 1.0),
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.FrameCount < 2 {
		return fmt.Errorf("frame count must be at least 2, got %d", c.FrameCount)
	}
	if c.FPS < 1 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.BaseSize < 16 {
		return fmt.Errorf("base size must be at least 16, got %d", c.BaseSize)
	}
	if c.MaxJobs < 1 {
		return fmt.Errorf("max jobs must be at least 1, got %d", c.MaxJobs)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory must be set")
	}
	return nil
}

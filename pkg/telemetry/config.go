package telemetry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config bundles the observability settings for one warden process.
type Config struct {
	// Service names the process in traces and metrics.
	Service string

	// Version is the build version reported alongside traces.
	Version string

	// Environment tags telemetry with the deployment environment.
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig shapes the process root logger.
type LoggingConfig struct {
	// Level is the minimum level that gets written. Parsed by zerolog, so
	// trace through fatal are accepted.
	Level string

	// Format is "console" for humans or "json" for machines.
	Format string

	// Output is "stdout", "stderr", or a file path to append to.
	Output string

	// WithCaller stamps file:line onto every entry.
	WithCaller bool

	// TimeFormat is "rfc3339" or "unix". Unix timestamps are cheaper and
	// what log pipelines expect.
	TimeFormat string

	// Sampling, when set, rate-limits bursts. Nil writes every entry.
	Sampling *LogSampling
}

// LogSampling rate-limits log output: the first Burst entries per second
// pass, then every Nth.
type LogSampling struct {
	Burst      int
	Thereafter int
}

// TracingConfig shapes the OpenTelemetry tracer.
type TracingConfig struct {
	// Enabled turns span recording on.
	Enabled bool

	// Exporter is "otlp", "stdout", or "none". None records spans without
	// exporting them, which keeps trace ids flowing into logs.
	Exporter string

	// Endpoint is the OTLP gRPC target, e.g. "otel-collector:4317".
	Endpoint string

	// SampleRatio is the fraction of new traces to sample, 0 to 1. Child
	// spans follow their parent's decision.
	SampleRatio float64

	// BatchSize caps how many spans one export carries.
	BatchSize int

	// ExportTimeout bounds a single export attempt.
	ExportTimeout time.Duration

	// Headers ride along on OTLP requests, for collector auth.
	Headers map[string]string

	// Insecure skips TLS on the OTLP connection.
	Insecure bool
}

// MetricsConfig shapes the Prometheus registry and its HTTP endpoint.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool

	// ListenAddress serves the scrape endpoint, e.g. ":9090".
	ListenAddress string

	// Path is the scrape path. Defaults to /metrics.
	Path string

	// Namespace prefixes every metric family.
	Namespace string

	// Buckets are the histogram boundaries in seconds for run durations.
	Buckets []float64
}

// EventsConfig shapes the in-process event bus.
type EventsConfig struct {
	// Enabled turns event publishing on.
	Enabled bool

	// Async buffers events and delivers them in batches off the hot path.
	// Synchronous delivery hands each event to subscribers at publish time.
	Async bool

	// BufferSize caps the async buffer. A full buffer drops the event
	// rather than blocking the publisher.
	BufferSize int

	// BatchSize is how many buffered events one delivery pass handles.
	BatchSize int

	// FlushInterval delivers partial batches that have been waiting.
	FlushInterval time.Duration
}

// levelFromEnv returns the LOG_LEVEL environment variable when set,
// falling back to the profile default otherwise.
func levelFromEnv(fallback string) string {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		return v
	}
	return fallback
}

// DefaultConfig is the operator profile: console logs on stderr, no
// tracing, no metrics endpoint, synchronous events. One-shot CLI
// invocations have nothing to scrape and nowhere to ship spans.
func DefaultConfig() *Config {
	return &Config{
		Service:     "warden",
		Version:     "dev",
		Environment: "local",
		Logging: LoggingConfig{
			Level:      levelFromEnv("info"),
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "none",
			SampleRatio: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Path:      "/metrics",
			Namespace: "warden",
		},
		Events: EventsConfig{
			Enabled:    true,
			Async:      false,
			BufferSize: 256,
			BatchSize:  32,
		},
	}
}

// CIConfig is the pipeline profile: JSON logs, OTLP traces at a sampled
// ratio, a scrape endpoint, and an async event bus sized for apply runs.
func CIConfig() *Config {
	return &Config{
		Service:     "warden",
		Version:     "dev",
		Environment: "ci",
		Logging: LoggingConfig{
			Level:      levelFromEnv("info"),
			Format:     "json",
			Output:     "stdout",
			TimeFormat: "unix",
			Sampling:   &LogSampling{Burst: 100, Thereafter: 100},
		},
		Tracing: TracingConfig{
			Enabled:       true,
			Exporter:      "otlp",
			Endpoint:      "localhost:4317",
			SampleRatio:   0.1,
			BatchSize:     512,
			ExportTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "warden",
		},
		Events: EventsConfig{
			Enabled:       true,
			Async:         true,
			BufferSize:    1024,
			BatchSize:     64,
			FlushInterval: 5 * time.Second,
		},
	}
}

// Validate rejects configurations the constructors cannot honor.
func (c *Config) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("service name is required")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q: want console or json", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter %q: want otlp, stdout, or none", c.Tracing.Exporter)
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("trace sample ratio %v is outside [0, 1]", c.Tracing.SampleRatio)
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
			return fmt.Errorf("otlp exporter needs an endpoint")
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics need a listen address")
	}

	if c.Events.Enabled && c.Events.Async && c.Events.BufferSize <= 0 {
		return fmt.Errorf("async events need a positive buffer size, got %d", c.Events.BufferSize)
	}

	return nil
}

package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process root logger. Components derive their own
// child loggers from it (`logger.With().Str("component", …).Logger()`);
// context propagation uses zerolog's own mechanism, logger.WithContext and
// zerolog.Ctx.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, error) {
	writer, err := logWriter(cfg.Output)
	if err != nil {
		return zerolog.Nop(), err
	}

	if cfg.TimeFormat == "unix" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()

	if cfg.WithCaller {
		logger = logger.With().Caller().Logger()
	}

	if s := cfg.Sampling; s != nil {
		logger = logger.Sample(&zerolog.BurstSampler{
			Burst:       uint32(s.Burst),
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(s.Thereafter)},
		})
	}

	return logger.Hook(TraceHook{}), nil
}

func logWriter(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return file, nil
	}
}

// TraceHook stamps trace_id and span_id onto entries logged with
// Event.Ctx when that context carries an active span, so log lines join
// up with traces.
type TraceHook struct{}

func (TraceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	sc := trace.SpanFromContext(e.GetCtx()).SpanContext()
	if !sc.IsValid() {
		return
	}
	e.Str("trace_id", sc.TraceID().String())
	e.Str("span_id", sc.SpanID().String())
}

package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the four instruments a warden process runs with.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
}

// New builds the bundle from a validated config.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.Service, cfg.Version, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
	}, nil
}

// Attach embeds the root logger in the context via zerolog's own carrier;
// zerolog.Ctx(ctx) retrieves it anywhere downstream.
func (t *Telemetry) Attach(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// ServeMetrics exposes the scrape endpoint if metrics are enabled.
func (t *Telemetry) ServeMetrics() error {
	return t.Metrics.StartMetricsServer()
}

// Shutdown drains the event bus, then flushes the tracer. The metrics
// endpoint keeps serving until the process exits so late scrapes land.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// TrackRun opens the instrumentation for one run: a span, a run-scoped
// logger embedded in the returned context, the started metric, and the
// started event. The returned done function closes all of it; call it
// exactly once with the final status.
func (t *Telemetry) TrackRun(ctx context.Context, runID, phase, subject string) (context.Context, func(status string, err error)) {
	ctx, span := t.Tracer.Start(ctx, "run."+phase, trace.WithAttributes(
		AttrRunID.String(runID),
		AttrRunPhase.String(phase),
	))

	logger := t.Logger.With().
		Str("run_id", runID).
		Str("phase", phase).
		Str("subject", subject).
		Logger()
	ctx = logger.WithContext(ctx)

	t.Metrics.RecordRunStarted(phase)
	_ = t.Events.PublishRunStarted(runID, subject)

	started := time.Now()
	done := func(status string, err error) {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.SetAttributes(AttrRunStatus.String(status))
		span.End()

		duration := time.Since(started)
		t.Metrics.RecordRunCompleted(phase, status, duration)
		if err != nil {
			_ = t.Events.PublishRunFailed(runID, err.Error())
		} else {
			_ = t.Events.PublishRunCompleted(runID, status, duration)
		}
	}
	return ctx, done
}

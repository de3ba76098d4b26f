// Package telemetry provides observability instrumentation for warden.
//
// It bundles four concerns behind one configuration: structured logging
// (zerolog), distributed tracing (OpenTelemetry), metrics (Prometheus), and
// an event bus carrying run life-cycle events.
//
// # Setup
//
// Build the bundle once at process start and shut it down on exit:
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.Attach(ctx)
//
// DefaultConfig suits an operator at a terminal: console logs on stderr,
// tracing and metrics off, synchronous event delivery. CIConfig suits a
// pipeline worker: JSON logs, OTLP traces at 10% sampling, a /metrics
// endpoint, and async buffered events.
//
// # Logging
//
// NewLogger builds a zerolog.Logger from LoggingConfig; Telemetry.Logger is
// that logger. It travels in the context the standard zerolog way:
//
//	logger := zerolog.Ctx(ctx)
//	logger.Info().Str("scope", scope.String()).Msg("Starting apply")
//
// Every logger carries TraceHook, which stamps trace_id and span_id onto
// entries logged with Event.Ctx while a span is active, so log lines and
// traces cross-reference without extra plumbing.
//
// # Tracing
//
// Tracer.Start opens spans; RecordError and RecordSuccess close out their
// status:
//
//	ctx, span := tel.Tracer.Start(ctx, "plan.compute")
//	defer span.End()
//
//	span.SetAttributes(telemetry.AttrScope.String(scope.String()))
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Exporters: "otlp" ships spans over gRPC to a collector, "stdout" prints
// them, "none" generates spans (so TraceID and the log hook still work)
// without exporting. The Attr* variables define the attribute vocabulary;
// use them instead of ad-hoc keys.
//
// # Metrics
//
// Metrics wraps a Prometheus registry with recorders for the reconcile and
// admission paths:
//
//	tel.Metrics.RecordRunStarted("apply")
//	tel.Metrics.RecordRunCompleted("apply", "succeeded", elapsed)
//	tel.Metrics.RecordPlanChanges("create", plan.Summary.ToCreate)
//	tel.Metrics.RecordLockContention()
//	tel.Metrics.RecordAdmissionDecision("denied")
//	tel.Metrics.RecordGateViolation("error")
//
// Families exposed (namespace "warden"): runs_total{phase},
// run_duration_seconds{phase,status}, active_runs, plan_changes{action},
// lock_contention_total, admission_decisions_total{decision},
// gate_violations_total{severity}. ServeMetrics exposes them over HTTP at
// /metrics when MetricsConfig.Enabled is set.
//
// # Events
//
// The driver and the admission controller publish run life-cycle events
// (run.started, run.completed, run.failed, plan.computed, lock.acquired,
// lock.contended, resource.changed, gate.violation, admission.decision).
// Subscribers attach with an optional filter:
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s: %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// With EventsConfig.Async set, Publish enqueues into a bounded buffer and a
// worker batches deliveries; a full buffer drops the event rather than block
// the publisher. Synchronous mode skips the buffer and hands events over at
// publish time. Either way each subscriber runs on its own goroutine, so a
// slow one cannot stall the rest.
//
// # Run tracking
//
// TrackRun ties the four concerns together for one run phase: it opens a
// span, scopes the logger to the run, bumps the run metrics, and publishes
// run.started. The returned done function records the outcome everywhere:
//
//	ctx, done := tel.TrackRun(ctx, runID, "apply", subject)
//	err := driver.Apply(ctx, plan)
//	done(statusOf(err), err)
package telemetry

package extensibility

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/logging"
	"github.com/comalice/commando/internal/primitives"
)

// LoggingActionRunner wraps an ActionRunner and logs each action with its
// duration.
type LoggingActionRunner struct {
	inner  core.ActionRunner
	logger *logging.Logger
}

// NewLoggingActionRunner creates a new LoggingActionRunner wrapping the given inner runner.
func NewLoggingActionRunner(inner core.ActionRunner, logger *logging.Logger) *LoggingActionRunner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LoggingActionRunner{inner: inner, logger: logger.WithComponent("actions")}
}

// Run logs before and after delegating to the inner runner.
func (r *LoggingActionRunner) Run(ctx context.Context, action primitives.Action, x *core.Execution) error {
	r.logger.Debug("executing action",
		"action", action.String(),
		"from", x.From.String(),
		"event", x.Message.Event.String(),
	)
	start := time.Now()
	err := r.inner.Run(ctx, action, x)
	if err != nil {
		r.logger.Warn("action failed", "action", action.String(), "duration", time.Since(start), "error", err)
		return err
	}
	r.logger.Debug("action completed", "action", action.String(), "duration", time.Since(start))
	return nil
}

// TracingActionRunner records one span per executed action.
type TracingActionRunner struct {
	inner  core.ActionRunner
	tracer trace.Tracer
}

// NewTracingActionRunner wraps inner; spans are started on tracer.
func NewTracingActionRunner(inner core.ActionRunner, tracer trace.Tracer) *TracingActionRunner {
	return &TracingActionRunner{inner: inner, tracer: tracer}
}

func (r *TracingActionRunner) Run(ctx context.Context, action primitives.Action, x *core.Execution) error {
	ctx, span := r.tracer.Start(ctx, "pilot.action."+action.String(),
		trace.WithAttributes(
			attribute.String("pilot.action", action.String()),
			attribute.String("pilot.from", x.From.String()),
			attribute.String("pilot.to", x.To.String()),
			attribute.String("pilot.event", x.Message.Event.String()),
		),
	)
	defer span.End()

	if action == primitives.ActionApplyVelocity {
		span.SetAttributes(attribute.String("pilot.velocity", x.Pending().String()))
	}

	err := r.inner.Run(ctx, action, x)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

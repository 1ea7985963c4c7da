package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-verification/internal/events"
	"github.com/spec-kit/visit-verification/internal/observability"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// instruments bundles the ambient collaborators every workflow service uses.
type instruments struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

func newInstruments(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) instruments {
	if logger == nil {
		logger = zap.NewNop()
	}
	return instruments{
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		tracer:     otel.Tracer(observability.TracerName),
	}
}

func (i instruments) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish closes the span and counts the outcome under the stable error code.
func (i instruments) finish(span trace.Span, operation string, err error) {
	outcome := "OK"
	if err != nil {
		outcome = outcomeCode(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
	i.metrics.RecordOutcome(operation, outcome)
}

func outcomeCode(err error) string {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	}
	return apperrors.ToDomainError(err).Code
}

// publish runs after commit; handler failures are logged, never returned.
func (i instruments) publish(ctx context.Context, event events.Event) {
	if i.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := i.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		i.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("aggregate_id", event.AggregateID),
			zap.Error(err),
		)
	}
}

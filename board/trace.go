package board

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackhead/task-management-app/domain"
)

func (s *Store) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// remoteFailure records err on the span and wraps it as a domain.RemoteError.
func remoteFailure(span trace.Span, op string, err error) error {
	recordError(span, err)
	return &domain.RemoteError{Op: op, Err: err}
}

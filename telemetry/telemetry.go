// Package telemetry installs the tracer provider. Finished spans are written
// to the structured log.
package telemetry

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogProcessor logs every finished span. Failed spans are logged at warn
// level, the rest at debug level.
type LogProcessor struct {
	logger *log.Logger
}

// NewLogProcessor returns a processor writing to logger.
func NewLogProcessor(logger *log.Logger) *LogProcessor {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogProcessor{logger: logger}
}

func (p *LogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *LogProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := log.Fields{
		"span":        s.Name(),
		"trace_id":    s.SpanContext().TraceID().String(),
		"span_id":     s.SpanContext().SpanID().String(),
		"duration_ms": float64(s.EndTime().Sub(s.StartTime())) / 1e6,
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	entry := p.logger.WithFields(fields)
	if st := s.Status(); st.Code == codes.Error {
		entry.WithField("error", st.Description).Warn("span.failed")
		return
	}
	entry.Debug("span.finished")
}

func (p *LogProcessor) Shutdown(context.Context) error { return nil }

func (p *LogProcessor) ForceFlush(context.Context) error { return nil }

// Install registers a tracer provider backed by a LogProcessor as the global
// provider and returns it so the caller can shut it down.
func Install(logger *log.Logger) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewLogProcessor(logger)))
	otel.SetTracerProvider(tp)
	return tp
}

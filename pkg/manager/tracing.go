package manager

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MapColonies/jobnik/pkg/core"
)

// tracerName is the instrumentation scope name for manager spans.
const tracerName = "github.com/MapColonies/jobnik"

// Span attribute keys.
const (
	attrJobID     = attribute.Key("jobnik.job.id")
	attrStageID   = attribute.Key("jobnik.stage.id")
	attrTaskID    = attribute.Key("jobnik.task.id")
	attrStageType = attribute.Key("jobnik.stage.type")
	attrStatus    = attribute.Key("jobnik.status")
	attrCode      = attribute.Key("jobnik.code")
)

func (m *Manager) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attrCode.String(string(core.CodeOf(err))))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

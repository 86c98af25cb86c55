package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records the fault. The error message is
// duplicated onto the event attributes so trace search can filter on it
// alongside the errand.* workflow attributes.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attrs = append(attrs, attribute.String(ErrorMessageKey, err.Error()))
	span.AddEvent("engine_error", trace.WithAttributes(attrs...))
}

package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error classes recorded on spans as error.type.
const (
	ErrTypeInvalidInput = "invalid_input"
	ErrTypeCanceled     = "canceled"
	ErrTypeInternal     = "internal"
)

// RecordSpanError marks span as failed with err and tags it with errType.
// A nil err is ignored.
func RecordSpanError(span trace.Span, err error, errType string) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.type", errType))
}

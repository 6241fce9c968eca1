package canvasemit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each Event into a point-in-time OpenTelemetry span
// named after event.Message, carrying canvas/batch/node identifiers
// and Fields as attributes.
type OTelEmitter struct {
	tracer trace.Tracer
}

func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, event.Message)
	defer span.End()
	o.annotate(span, event)
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Message)
		o.annotate(span, event)
		span.End()
	}
	return nil
}

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("canvasengine.canvas_id", event.CanvasID),
		attribute.String("canvasengine.batch_id", event.BatchID),
		attribute.String("canvasengine.task_id", event.TaskID),
		attribute.String("canvasengine.node_id", event.NodeID),
	)
	for key, value := range event.Fields {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	if event.Kind == KindError {
		span.SetStatus(codes.Error, event.Message)
		span.RecordError(fmt.Errorf("%s", event.Message))
	}
}

func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

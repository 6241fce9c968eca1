package canvasmetrics

import (
	"context"

	"github.com/flowcanvas/canvasengine/canvasemit"
)

// MetricsEmitter wraps a canvasemit.Emitter and derives counter
// increments from the structured events that already flow through it,
// rather than adding a separate metrics parameter to every mutation,
// clone, and workflow entry point. It always forwards the event to the
// wrapped Emitter unchanged, so composing it into an emitter chain is
// metrics-neutral from the caller's perspective.
type MetricsEmitter struct {
	next    canvasemit.Emitter
	metrics *PrometheusMetrics
}

// Tap returns an Emitter that increments metrics counters from events
// produced by the canvas mutation, clone, and workflow packages, then
// forwards every event to next unchanged.
func Tap(next canvasemit.Emitter, metrics *PrometheusMetrics) *MetricsEmitter {
	if next == nil {
		next = canvasemit.NullEmitter{}
	}
	return &MetricsEmitter{next: next, metrics: metrics}
}

// Emit increments the counter implied by event, if any, then forwards
// to the wrapped Emitter.
func (m *MetricsEmitter) Emit(ctx context.Context, event canvasemit.Event) {
	m.observe(event)
	m.next.Emit(ctx, event)
}

// EmitBatch applies Emit's tapping to every event, then forwards the
// whole batch to the wrapped Emitter in one call.
func (m *MetricsEmitter) EmitBatch(ctx context.Context, events []canvasemit.Event) error {
	for _, event := range events {
		m.observe(event)
	}
	return m.next.EmitBatch(ctx, events)
}

// Flush forwards to the wrapped Emitter; this tap holds no buffered state of its own.
func (m *MetricsEmitter) Flush(ctx context.Context) error {
	return m.next.Flush(ctx)
}

func (m *MetricsEmitter) observe(event canvasemit.Event) {
	if m.metrics == nil {
		return
	}
	switch event.Kind {
	case canvasemit.KindWarning:
		if _, dropped := event.Fields["edgeId"]; dropped {
			m.metrics.IncrementEdgesDropped(canvasIDOf(event))
		}
	case canvasemit.KindError:
		nodeType, _ := event.Fields["nodeType"].(string)
		reason, _ := event.Fields["reason"].(string)
		if nodeType != "" {
			m.metrics.IncrementTasksFailed(nodeType, reason)
		}
	case canvasemit.KindInfo:
		if reason, _ := event.Fields["reason"].(string); reason == "exclusivity" {
			m.metrics.IncrementBatchDeferrals(event.CanvasID)
		}
	}
}

// canvasIDOf prefers event.Fields["canvasId"] (set, for example, on
// canvas/mutate.ApplyCanvasUpdate's dropped-edge warnings) over the
// top-level CanvasID field.
func canvasIDOf(event canvasemit.Event) string {
	if id, ok := event.Fields["canvasId"].(string); ok && id != "" {
		return id
	}
	return event.CanvasID
}

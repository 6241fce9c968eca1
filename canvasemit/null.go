package canvasemit

import "context"

// NullEmitter discards every event. Used as the default when no
// observability backend is configured.
type NullEmitter struct{}

func (NullEmitter) Emit(context.Context, Event) {}

func (NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (NullEmitter) Flush(context.Context) error { return nil }

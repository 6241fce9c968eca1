package canvasemit

import "context"

// Emitter receives observability events from the canvas engine.
// Implementations must be non-blocking and must not panic; a slow or
// failing backend should degrade observability, not workflow
// execution.
type Emitter interface {
	Emit(ctx context.Context, event Event)
	EmitBatch(ctx context.Context, events []Event) error
	Flush(ctx context.Context) error
}

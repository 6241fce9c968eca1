package workflow

import (
	"context"

	"github.com/flowcanvas/canvasengine/canvas"
)

// Dispatcher enqueues a dispatch envelope onto the durable workflow
// queue under the "process-node" job name (spec.md §6, Workflow queue
// protocol). canvasqueue.Queue implements this; it is accepted here as
// an interface so the dispatch policy never depends on the concrete
// queue's transport.
type Dispatcher interface {
	Enqueue(ctx context.Context, envelope canvas.DispatchEnvelope) error
}

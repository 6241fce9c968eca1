package processor

import (
	"context"

	"github.com/flowcanvas/canvasengine/canvas/schema"
)

// NewValidatingProcessor wraps proc so that a node whose persisted
// Config has drifted out of schema (corrupted by a direct store write,
// or created before a schema was registered for its type) fails as an
// ordinary task rather than reaching the processor with data it does
// not expect. This is the processor-boundary half of spec.md §3's
// "schema validation at the edge" design note; the other half runs at
// the patch-apply boundary, in canvashttp, before a bad config is ever
// persisted.
func NewValidatingProcessor(proc Processor, registry *schema.Registry) Processor {
	return ProcessorFunc(func(ctx context.Context, in Input) (Output, error) {
		if err := registry.Validate(in.Node.Type, in.Node.Config); err != nil {
			return Output{Success: false, Error: err.Error()}, nil
		}
		return proc.Process(ctx, in)
	})
}

// Package processor defines the Node-Processor Contract (spec.md
// §4.6): the boundary between the Workflow Processor and type-specific
// node implementations (LLM calls, image generation, compositing,
// plain passthrough). A Processor is a canvas-node-aware callback with
// explicit Snapshot/Resolver/Store access, since canvas nodes don't
// share a single typed state the way a generic state-transform
// callback would assume.
package processor

import (
	"context"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/resolver"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// Input is everything a processor needs to execute one node.
type Input struct {
	Node     canvas.Node
	Snapshot *canvas.Snapshot
	Resolver *resolver.Resolver
	Store    canvasstore.Store
	APIKey   string
}

// Output is a processor's verdict on one node execution.
type Output struct {
	Success   bool
	Error     string
	NewResult *canvas.ResultEnvelope
}

// Processor implements one node type's execution semantics. A
// Processor must not mutate Input.Snapshot in place (copy-on-write is
// fine) and must not write to the node's persisted row directly —
// persistence is the Workflow Processor's responsibility. Any asset a
// Processor creates through Input.Store must be surfaced through the
// returned Output.NewResult.
type Processor interface {
	Process(ctx context.Context, in Input) (Output, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, in Input) (Output, error)

func (f ProcessorFunc) Process(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// Registry maps node types to their processor. It is always
// constructor-injected into the Workflow Processor rather than
// consulted as a package-level global, so callers can run multiple
// independently-configured engines in one process (e.g. in tests).
type Registry struct {
	byType map[canvas.NodeType]Processor
}

// NewRegistry builds a Registry from a type->processor map. The map is
// copied; mutating the input after construction has no effect.
func NewRegistry(processors map[canvas.NodeType]Processor) *Registry {
	r := &Registry{byType: make(map[canvas.NodeType]Processor, len(processors))}
	for t, p := range processors {
		r.byType[t] = p
	}
	return r
}

// Lookup returns the processor registered for nodeType, if any.
func (r *Registry) Lookup(nodeType canvas.NodeType) (Processor, bool) {
	p, ok := r.byType[nodeType]
	return p, ok
}

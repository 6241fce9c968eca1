package illustrative

import (
	"context"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/processor"
)

// EchoProcessor copies its first connected input value to its first
// output handle unchanged. Useful for exercising multi-hop plans in
// tests without depending on any node-type-specific behavior.
type EchoProcessor struct{}

func (EchoProcessor) Process(_ context.Context, in processor.Input) (processor.Output, error) {
	values := in.Resolver.GetAllInputValuesWithHandle(in.Node.ID)

	var item *canvas.Item
	for _, v := range values {
		if v.Item != nil {
			item = v.Item
			break
		}
	}
	if item == nil {
		return processor.Output{Success: false, Error: "no connected input value to echo"}, nil
	}

	outputHandleID := ""
	for _, h := range in.Snapshot.HandlesForNode(in.Node.ID) {
		if h.Type == canvas.HandleOutput {
			outputHandleID = h.ID
			break
		}
	}

	echoed := *item
	echoed.OutputHandleID = outputHandleID

	return processor.Output{
		Success: true,
		NewResult: &canvas.ResultEnvelope{
			Outputs:             []canvas.Output{{Items: []canvas.Item{echoed}}},
			SelectedOutputIndex: 0,
		},
	}, nil
}

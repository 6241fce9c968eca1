package illustrative

import (
	"context"
	"encoding/json"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/processor"
)

// CompositorProcessor builds a VirtualMediaTree whose root is a
// MediaOpCompose node and whose children are one MediaOpLayer node per
// input handle that resolves to an item (of any data type), in handle
// Order. The tree is emitted as
// the node's sole output item rather than rendered: it is the
// processor-visible plan a real compositing backend would consume.
type CompositorProcessor struct{}

func (CompositorProcessor) Process(_ context.Context, in processor.Input) (processor.Output, error) {
	values := in.Resolver.GetAllInputValuesWithHandle(in.Node.ID)

	var layers []canvas.VirtualMediaTree
	for _, v := range values {
		if v.Item == nil {
			continue
		}
		layers = append(layers, canvas.VirtualMediaTree{
			Operation: canvas.MediaOpLayer,
			SourceMeta: map[string]any{
				"handleId": v.Handle.ID,
				"dataType": string(v.Item.Type),
			},
			Children: []canvas.VirtualMediaTree{
				{Operation: canvas.MediaOpSource, SourceMeta: map[string]any{"outputHandleId": v.Item.OutputHandleID}},
			},
		})
	}

	tree := canvas.VirtualMediaTree{
		Operation: canvas.MediaOpCompose,
		Children:  layers,
	}

	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return processor.Output{Success: false, Error: err.Error()}, nil
	}

	outputHandleID := ""
	for _, h := range in.Snapshot.HandlesForNode(in.Node.ID) {
		if h.Type == canvas.HandleOutput {
			outputHandleID = h.ID
			break
		}
	}

	return processor.Output{
		Success: true,
		NewResult: &canvas.ResultEnvelope{
			Outputs: []canvas.Output{
				{Items: []canvas.Item{{Type: canvas.DataTypeImage, Data: treeJSON, OutputHandleID: outputHandleID}}},
			},
			SelectedOutputIndex: 0,
		},
	}, nil
}

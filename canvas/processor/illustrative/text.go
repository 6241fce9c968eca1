// Package illustrative ships a handful of processors exercising the
// Node-Processor Contract end to end in tests: a Text passthrough, an
// Echo processor usable on any handle-compatible node type, a
// Compositor processor that builds a VirtualMediaTree from its
// connected layers, and an LLMProcessor that sends its text inputs to
// an Anthropic, OpenAI or Google chat model. Real image/video
// processors are out of scope (spec.md §1 Non-goals). Text, Echo and
// Compositor call no external service; LLMProcessor calls the
// selected provider's API.
package illustrative

import (
	"context"
	"encoding/json"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/processor"
)

// textConfig is the shape a Text node's opaque Config carries its
// literal value in, per spec.md §6's Run payload resolution step
// ("writes the string into config.content").
type textConfig struct {
	Content string `json:"content"`
}

// TextProcessor emits its node's config.content verbatim as a single
// text output on the node's first output handle.
type TextProcessor struct{}

func (TextProcessor) Process(_ context.Context, in processor.Input) (processor.Output, error) {
	var cfg textConfig
	if len(in.Node.Config) > 0 {
		if err := json.Unmarshal(in.Node.Config, &cfg); err != nil {
			return processor.Output{Success: false, Error: "invalid text node config: " + err.Error()}, nil
		}
	}

	outputHandleID := ""
	for _, h := range in.Snapshot.HandlesForNode(in.Node.ID) {
		if h.Type == canvas.HandleOutput {
			outputHandleID = h.ID
			break
		}
	}

	data, err := json.Marshal(cfg.Content)
	if err != nil {
		return processor.Output{Success: false, Error: err.Error()}, nil
	}

	return processor.Output{
		Success: true,
		NewResult: &canvas.ResultEnvelope{
			Outputs: []canvas.Output{
				{Items: []canvas.Item{{Type: canvas.DataTypeText, Data: data, OutputHandleID: outputHandleID}}},
			},
			SelectedOutputIndex: 0,
		},
	}, nil
}

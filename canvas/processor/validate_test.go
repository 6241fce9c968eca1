package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/schema"
)

func TestNewValidatingProcessorFailsTaskOnSchemaViolation(t *testing.T) {
	registry, err := schema.NewRegistry(map[canvas.NodeType]json.RawMessage{
		canvas.NodeTypeLLM: json.RawMessage(`{"type":"object","required":["provider"]}`),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	called := false
	inner := ProcessorFunc(func(ctx context.Context, in Input) (Output, error) {
		called = true
		return Output{Success: true}, nil
	})

	proc := NewValidatingProcessor(inner, registry)
	node := canvas.Node{ID: "n1", Type: canvas.NodeTypeLLM, Config: canvas.RawJSON(`{}`)}
	out, err := proc.Process(context.Background(), Input{Node: node})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Success {
		t.Error("expected failure for a config missing the required field")
	}
	if called {
		t.Error("inner processor must not run when schema validation fails")
	}
}

func TestNewValidatingProcessorPassesThroughConformingConfig(t *testing.T) {
	registry, err := schema.NewRegistry(map[canvas.NodeType]json.RawMessage{
		canvas.NodeTypeLLM: json.RawMessage(`{"type":"object","required":["provider"]}`),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	inner := ProcessorFunc(func(ctx context.Context, in Input) (Output, error) {
		return Output{Success: true}, nil
	})

	proc := NewValidatingProcessor(inner, registry)
	node := canvas.Node{ID: "n1", Type: canvas.NodeTypeLLM, Config: canvas.RawJSON(`{"provider":"anthropic"}`)}
	out, err := proc.Process(context.Background(), Input{Node: node})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Success {
		t.Errorf("expected success, got error %q", out.Error)
	}
}

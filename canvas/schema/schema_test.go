package schema

import (
	"encoding/json"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
)

func TestRegistryValidateRejectsConfigMissingRequiredField(t *testing.T) {
	raw := map[canvas.NodeType]json.RawMessage{
		canvas.NodeTypeLLM: json.RawMessage(`{
			"type": "object",
			"required": ["provider"],
			"properties": {"provider": {"type": "string"}}
		}`),
	}
	registry, err := NewRegistry(raw)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	err = registry.Validate(canvas.NodeTypeLLM, canvas.RawJSON(`{"model":"gpt-5"}`))
	var validationErr *ValidationError
	if err == nil {
		t.Fatal("expected a validation error for missing required field")
	}
	if ve, ok := err.(*ValidationError); ok {
		validationErr = ve
	} else {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if validationErr.NodeType != canvas.NodeTypeLLM {
		t.Errorf("expected NodeType %s, got %s", canvas.NodeTypeLLM, validationErr.NodeType)
	}
}

func TestRegistryValidateAcceptsConformingConfig(t *testing.T) {
	raw := map[canvas.NodeType]json.RawMessage{
		canvas.NodeTypeLLM: json.RawMessage(`{
			"type": "object",
			"required": ["provider"],
			"properties": {"provider": {"type": "string"}}
		}`),
	}
	registry, err := NewRegistry(raw)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if err := registry.Validate(canvas.NodeTypeLLM, canvas.RawJSON(`{"provider":"anthropic"}`)); err != nil {
		t.Errorf("expected conforming config to validate, got %v", err)
	}
}

func TestRegistryValidateIsNoOpForUnregisteredNodeType(t *testing.T) {
	registry, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.Validate(canvas.NodeTypeText, canvas.RawJSON(`{"anything":"goes"}`)); err != nil {
		t.Errorf("expected no-op for unregistered type, got %v", err)
	}
}

func TestRegistryValidateTreatsEmptyConfigAsEmptyObject(t *testing.T) {
	raw := map[canvas.NodeType]json.RawMessage{
		canvas.NodeTypeText: json.RawMessage(`{"type":"object"}`),
	}
	registry, err := NewRegistry(raw)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.Validate(canvas.NodeTypeText, canvas.RawJSON(``)); err != nil {
		t.Errorf("expected empty config to validate against an unconstrained object schema, got %v", err)
	}
}

func TestNilRegistryValidateIsNoOp(t *testing.T) {
	var registry *Registry
	if err := registry.Validate(canvas.NodeTypeText, canvas.RawJSON(`{}`)); err != nil {
		t.Errorf("expected nil registry to be a no-op, got %v", err)
	}
}

// Package schema provides the JSON Schema validation spec.md §3's
// Opaque JSON fields design note calls for "at the edge (incoming
// patches, processor boundary)": a per-NodeType compiled schema that
// Node.Config is checked against before it is trusted anywhere else in
// the engine. Grounded on yesoreyeram-thaiyyal's
// pkg/executor/schema_validator.go use of xeipuuv/gojsonschema.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowcanvas/canvasengine/canvas"
)

// Registry holds one compiled JSON Schema per node type. A node type
// absent from the registry is left unvalidated, so callers can adopt
// schemas incrementally, type by type, rather than all at once.
type Registry struct {
	schemas map[canvas.NodeType]*gojsonschema.Schema
}

// NewRegistry compiles raw (one JSON Schema document per node type)
// into a Registry.
func NewRegistry(raw map[canvas.NodeType]json.RawMessage) (*Registry, error) {
	r := &Registry{schemas: make(map[canvas.NodeType]*gojsonschema.Schema, len(raw))}
	for nodeType, doc := range raw {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("compile schema for node type %s: %w", nodeType, err)
		}
		r.schemas[nodeType] = compiled
	}
	return r, nil
}

// Validate checks config against nodeType's registered schema. It is a
// no-op (nil error) if nodeType has no registered schema. An empty
// config validates against the document `{}`.
func (r *Registry) Validate(nodeType canvas.NodeType, config canvas.RawJSON) error {
	if r == nil {
		return nil
	}
	compiled, ok := r.schemas[nodeType]
	if !ok {
		return nil
	}

	document := []byte(config)
	if len(document) == 0 {
		document = []byte("{}")
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("validate config against %s schema: %w", nodeType, err)
	}
	if result.Valid() {
		return nil
	}

	descriptions := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		descriptions = append(descriptions, e.String())
	}
	return &ValidationError{NodeType: nodeType, Violations: descriptions}
}

// ValidationError reports a node config's schema violations, the
// ClientError/"schema violation on node config" case of spec.md §7.
type ValidationError struct {
	NodeType   canvas.NodeType
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config schema violation for node type %s: %s", e.NodeType, strings.Join(e.Violations, "; "))
}

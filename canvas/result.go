package canvas

import (
	"encoding/json"
)

// RawJSON is an opaque, type-specific payload (Node.Config, and the
// data carried inside TaskBatch.PendingJobData before it is decoded
// into a DispatchEnvelope). Schema validation happens at the edges
// that produce or consume it (the patch boundary, the processor
// boundary); internally it is kept as raw bytes and only walked with
// gjson/sjson path expressions by the code that needs specific
// fields, rather than unmarshaled into map[string]interface{}.
type RawJSON []byte

// String returns the payload as a string, or "{}" for a nil/empty payload.
func (r RawJSON) String() string {
	if len(r) == 0 {
		return "{}"
	}
	return string(r)
}

// MarshalJSON implements json.Marshaler so RawJSON round-trips as an
// embedded JSON value rather than a base64 string.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler by storing the raw bytes verbatim.
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

// ResultEnvelope is the shape every node's Result conforms to.
type ResultEnvelope struct {
	Outputs             []Output `json:"outputs"`
	SelectedOutputIndex  int      `json:"selectedOutputIndex"`
}

// SelectedItems returns the items of the currently-selected output,
// or nil if Outputs is empty or SelectedOutputIndex is out of range.
// An out-of-range index is not reported as an error here; Validate
// reports it.
func (r ResultEnvelope) SelectedItems() []Item {
	if len(r.Outputs) == 0 {
		return nil
	}
	if r.SelectedOutputIndex < 0 || r.SelectedOutputIndex >= len(r.Outputs) {
		return nil
	}
	return r.Outputs[r.SelectedOutputIndex].Items
}

// Validate enforces the invariant from spec.md §3:
// selectedOutputIndex ∈ [0, len(outputs)) whenever outputs is
// non-empty, 0 otherwise.
func (r ResultEnvelope) Validate() error {
	if len(r.Outputs) == 0 {
		if r.SelectedOutputIndex != 0 {
			return &InvariantError{Message: "selectedOutputIndex must be 0 when outputs is empty"}
		}
		return nil
	}
	if r.SelectedOutputIndex < 0 || r.SelectedOutputIndex >= len(r.Outputs) {
		return &InvariantError{Message: "selectedOutputIndex out of range"}
	}
	return nil
}

// Output is one candidate result produced by a node (e.g. one
// generation among several samples).
type Output struct {
	Items []Item `json:"items"`
}

// Item is a single typed value flowing along an edge.
type Item struct {
	Type           DataType        `json:"type"`
	Data           json.RawMessage `json:"data"`
	OutputHandleID string          `json:"outputHandleId"`
}

// FileReference points to a persisted asset.
type FileReference struct {
	ID        string  `json:"id"`
	Key       string  `json:"key"`
	Bucket    string  `json:"bucket"`
	MimeType  string  `json:"mimeType"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// ProcessData is an inline, transient item payload: a data URL or
// signed URL plus metadata, as opposed to a persisted FileReference.
type ProcessData struct {
	DataURL  string `json:"dataUrl,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// MediaOperation tags a VirtualMediaTree node's role in the pipeline.
type MediaOperation string

const (
	MediaOpSource MediaOperation = "source"
	MediaOpText   MediaOperation = "text"
	MediaOpCut    MediaOperation = "cut"
	MediaOpCrop   MediaOperation = "crop"
	MediaOpSpeed  MediaOperation = "speed"
	MediaOpFilter MediaOperation = "filter"
	MediaOpFlip   MediaOperation = "flip"
	MediaOpRotate MediaOperation = "rotate"
	MediaOpCompose MediaOperation = "compose"
	MediaOpLayer  MediaOperation = "layer"
)

// VirtualMediaTree is a recursive operation tree used by video and
// compositor pipelines. Leaves are Operation == MediaOpSource; the
// root's SourceMeta describes the final rendered output.
type VirtualMediaTree struct {
	Operation  MediaOperation     `json:"operation"`
	SourceMeta map[string]any     `json:"sourceMeta,omitempty"`
	Children   []VirtualMediaTree `json:"children,omitempty"`
}

// Leaves returns every source leaf of the tree, in left-to-right
// order, using an explicit stack rather than recursion so arbitrarily
// deep trees never grow the Go call stack.
func (t VirtualMediaTree) Leaves() []VirtualMediaTree {
	var leaves []VirtualMediaTree
	type frame struct {
		node  VirtualMediaTree
		index int
	}
	stack := []frame{{node: t}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.node.Children) == 0 {
			leaves = append(leaves, top.node)
			stack = stack[:len(stack)-1]
			continue
		}
		if top.index < len(top.node.Children) {
			child := top.node.Children[top.index]
			top.index++
			stack = append(stack, frame{node: child})
			continue
		}
		stack = stack[:len(stack)-1]
	}
	return leaves
}

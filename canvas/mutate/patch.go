package mutate

import "github.com/flowcanvas/canvasengine/canvas"

// Patch is a bulk, client-submitted canvas diff (spec.md §4.2). Items
// may carry temp-prefixed client-allocated IDs or real server IDs.
// Any existing entity whose real ID is absent from the corresponding
// KeepIDs (computed from the submitted items, see classify.go) is
// deleted.
type Patch struct {
	Nodes   []NodePatch
	Handles []HandlePatch
	Edges   []EdgePatch
}

// NodePatch is one submitted node create/update.
type NodePatch struct {
	ID         string
	Type       canvas.NodeType
	Name       string
	Position   canvas.Position
	Width      float64
	Height     float64
	TemplateID string
	Config     canvas.RawJSON
	// Result is nil when the patch does not touch the node's result.
	// For an update to a non-terminal node, a non-nil Result fully
	// replaces the persisted result (spec.md §4.2 step 7).
	Result *canvas.ResultEnvelope
}

// HandlePatch is one submitted handle create/update. NodeID may be a
// temp- ID referring to a node created in the same patch.
type HandlePatch struct {
	ID               string
	NodeID           string
	Type             canvas.HandleDirection
	DataTypes        []canvas.DataType
	Label            string
	Required         bool
	Order            int
	TemplateHandleID string
}

// EdgePatch is one submitted edge create/update. Source/Target/
// handle IDs may be temp- IDs.
type EdgePatch struct {
	ID             string
	Source         string
	Target         string
	SourceHandleID string
	TargetHandleID string
}

// IDMapping carries the temp->real ID assignments made while applying
// a patch, returned to the client so it can reconcile optimistic
// local state (spec.md §4.2, "Return value").
type IDMapping struct {
	Nodes   map[string]string
	Handles map[string]string
	Edges   map[string]string
}

func newIDMapping() IDMapping {
	return IDMapping{
		Nodes:   map[string]string{},
		Handles: map[string]string{},
		Edges:   map[string]string{},
	}
}

// Result is the outcome of a successful ApplyCanvasUpdate.
type Result struct {
	Version int
	Mapping IDMapping
}

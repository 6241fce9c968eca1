package mutate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

func newTestStore(t *testing.T, canvasID string, templates map[canvas.NodeType]canvas.NodeTemplate) *canvasstore.MemStore {
	t.Helper()
	store := canvasstore.NewMemStore(templates)
	if err := store.CreateCanvas(context.Background(), canvas.Canvas{ID: canvasID, Owner: "user-1"}); err != nil {
		t.Fatalf("seed canvas: %v", err)
	}
	return store
}

func TestApplyCanvasUpdateUnknownCanvasReturnsClientError(t *testing.T) {
	store := canvasstore.NewMemStore(nil)

	_, err := ApplyCanvasUpdate(context.Background(), store, canvasemit.NullEmitter{}, "missing", Patch{})

	var clientErr *canvas.ClientError
	if !asClientError(err, &clientErr) {
		t.Fatalf("expected *canvas.ClientError, got %v (%T)", err, err)
	}
	if clientErr.Code != "CanvasNotFound" {
		t.Errorf("expected CanvasNotFound, got %s", clientErr.Code)
	}
}

func asClientError(err error, target **canvas.ClientError) bool {
	ce, ok := err.(*canvas.ClientError)
	if ok {
		*target = ce
	}
	return ok
}

func TestApplyCanvasUpdateCreatesNodesHandlesAndEdgesWithTempIDRemap(t *testing.T) {
	store := newTestStore(t, "canvas-1", map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText: {Type: canvas.NodeTypeText},
		canvas.NodeTypeLLM:  {Type: canvas.NodeTypeLLM},
	})

	patch := Patch{
		Nodes: []NodePatch{
			{ID: "temp-a", Type: canvas.NodeTypeText, Name: "source"},
			{ID: "temp-b", Type: canvas.NodeTypeLLM, Name: "sink"},
		},
		Handles: []HandlePatch{
			{ID: "temp-h-out", NodeID: "temp-a", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-h-in", NodeID: "temp-b", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Required: true},
		},
		Edges: []EdgePatch{
			{ID: "temp-e", Source: "temp-a", Target: "temp-b", SourceHandleID: "temp-h-out", TargetHandleID: "temp-h-in"},
		},
	}

	result, err := ApplyCanvasUpdate(context.Background(), store, canvasemit.NullEmitter{}, "canvas-1", patch)
	if err != nil {
		t.Fatalf("ApplyCanvasUpdate: %v", err)
	}
	if result.Version != 1 {
		t.Errorf("expected version 1, got %d", result.Version)
	}

	realNodeA, ok := result.Mapping.Nodes["temp-a"]
	if !ok {
		t.Fatalf("expected temp-a to be mapped")
	}
	realEdge, ok := result.Mapping.Edges["temp-e"]
	if !ok {
		t.Fatalf("expected temp-e to be mapped")
	}

	snap, err := store.LoadSnapshot(context.Background(), "canvas-1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Nodes) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(snap.Nodes))
	}
	if len(snap.Edges) != 1 || snap.Edges[0].ID != realEdge {
		t.Errorf("expected 1 edge with id %s, got %+v", realEdge, snap.Edges)
	}
	if _, ok := snap.Nodes[realNodeA]; !ok {
		t.Errorf("expected node %s to exist", realNodeA)
	}
}

func TestApplyCanvasUpdateDropsEdgeReferencingUnresolvedHandle(t *testing.T) {
	store := newTestStore(t, "canvas-1", map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText: {Type: canvas.NodeTypeText},
	})

	patch := Patch{
		Nodes: []NodePatch{
			{ID: "temp-a", Type: canvas.NodeTypeText},
		},
		Handles: []HandlePatch{
			{ID: "temp-h-out", NodeID: "temp-a", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
		},
		Edges: []EdgePatch{
			// references a handle id that is neither submitted nor pre-existing
			{ID: "temp-e", Source: "temp-a", Target: "temp-a", SourceHandleID: "temp-h-out", TargetHandleID: "nonexistent-handle"},
		},
	}

	buffered := canvasemit.NewBufferedEmitter()
	result, err := ApplyCanvasUpdate(context.Background(), store, buffered, "canvas-1", patch)
	if err != nil {
		t.Fatalf("ApplyCanvasUpdate: %v", err)
	}
	if _, ok := result.Mapping.Edges["temp-e"]; ok {
		t.Errorf("expected dropped edge to have no mapping entry")
	}

	snap, _ := store.LoadSnapshot(context.Background(), "canvas-1")
	if len(snap.Edges) != 0 {
		t.Errorf("expected edge to be dropped, got %+v", snap.Edges)
	}

	history := buffered.History("canvas-1")
	found := false
	for _, ev := range history {
		if ev.Kind == canvasemit.KindWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning event for the dropped edge")
	}
}

func TestApplyCanvasUpdatePreservesTerminalResultExceptSelection(t *testing.T) {
	store := newTestStore(t, "canvas-1", map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypePreview: {Type: canvas.NodeTypePreview, IsTerminalNode: true},
	})

	existingResult := canvas.ResultEnvelope{
		Outputs: []canvas.Output{
			{Items: []canvas.Item{{Type: canvas.DataTypeText, Data: json.RawMessage(`"v1"`)}}},
			{Items: []canvas.Item{{Type: canvas.DataTypeText, Data: json.RawMessage(`"v2"`)}}},
		},
		SelectedOutputIndex: 0,
	}

	// Seed an existing terminal node directly via a create patch first.
	createPatch := Patch{Nodes: []NodePatch{{ID: "temp-t", Type: canvas.NodeTypePreview, Result: &existingResult}}}
	created, err := ApplyCanvasUpdate(context.Background(), store, canvasemit.NullEmitter{}, "canvas-1", createPatch)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	realID := created.Mapping.Nodes["temp-t"]

	// Now patch it with a result that tries to overwrite the outputs
	// and move the selection to index 1.
	attack := canvas.ResultEnvelope{
		Outputs:             []canvas.Output{{Items: []canvas.Item{{Type: canvas.DataTypeText, Data: json.RawMessage(`"forged"`)}}}},
		SelectedOutputIndex: 1,
	}
	updatePatch := Patch{Nodes: []NodePatch{{ID: realID, Type: canvas.NodeTypePreview, Result: &attack}}}
	if _, err := ApplyCanvasUpdate(context.Background(), store, canvasemit.NullEmitter{}, "canvas-1", updatePatch); err != nil {
		t.Fatalf("update: %v", err)
	}

	node, err := store.LoadNode(context.Background(), realID)
	if err != nil {
		t.Fatalf("LoadNode: %v", err)
	}
	if len(node.Result.Outputs) != 2 {
		t.Fatalf("expected historical outputs preserved, got %d outputs", len(node.Result.Outputs))
	}
	if node.Result.SelectedOutputIndex != 1 {
		t.Errorf("expected selection moved to 1, got %d", node.Result.SelectedOutputIndex)
	}
}

func TestApplyCanvasUpdateDeletesEntitiesAbsentFromPatch(t *testing.T) {
	store := newTestStore(t, "canvas-1", map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText: {Type: canvas.NodeTypeText},
	})

	create := Patch{Nodes: []NodePatch{{ID: "temp-a", Type: canvas.NodeTypeText}, {ID: "temp-b", Type: canvas.NodeTypeText}}}
	result, err := ApplyCanvasUpdate(context.Background(), store, canvasemit.NullEmitter{}, "canvas-1", create)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	realB := result.Mapping.Nodes["temp-b"]

	// Resubmit with only node B: node A should be implicitly deleted.
	update := Patch{Nodes: []NodePatch{{ID: realB, Type: canvas.NodeTypeText}}}
	if _, err := ApplyCanvasUpdate(context.Background(), store, canvasemit.NullEmitter{}, "canvas-1", update); err != nil {
		t.Fatalf("update: %v", err)
	}

	snap, _ := store.LoadSnapshot(context.Background(), "canvas-1")
	if len(snap.Nodes) != 1 {
		t.Fatalf("expected 1 remaining node, got %d", len(snap.Nodes))
	}
	if _, ok := snap.Nodes[realB]; !ok {
		t.Errorf("expected node B to survive")
	}
}

func TestApplyCanvasUpdateRewritesCompositorLayerUpdatesKeys(t *testing.T) {
	store := newTestStore(t, "canvas-1", map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeCompositor: {Type: canvas.NodeTypeCompositor},
	})

	patch := Patch{
		Nodes: []NodePatch{
			{
				ID:     "temp-c",
				Type:   canvas.NodeTypeCompositor,
				Config: canvas.RawJSON(`{"layerUpdates":{"temp-h1":{"opacity":0.5}}}`),
			},
		},
		Handles: []HandlePatch{
			{ID: "temp-h1", NodeID: "temp-c", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeImage}},
		},
	}

	result, err := ApplyCanvasUpdate(context.Background(), store, canvasemit.NullEmitter{}, "canvas-1", patch)
	if err != nil {
		t.Fatalf("ApplyCanvasUpdate: %v", err)
	}
	realHandle := result.Mapping.Handles["temp-h1"]
	realNode := result.Mapping.Nodes["temp-c"]

	node, err := store.LoadNode(context.Background(), realNode)
	if err != nil {
		t.Fatalf("LoadNode: %v", err)
	}

	var decoded struct {
		LayerUpdates map[string]json.RawMessage `json:"layerUpdates"`
	}
	if err := json.Unmarshal(node.Config, &decoded); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if _, ok := decoded.LayerUpdates[realHandle]; !ok {
		t.Errorf("expected layerUpdates rewritten to real handle id %s, got %v", realHandle, decoded.LayerUpdates)
	}
	if _, ok := decoded.LayerUpdates["temp-h1"]; ok {
		t.Errorf("expected temp-h1 key removed from layerUpdates")
	}
}

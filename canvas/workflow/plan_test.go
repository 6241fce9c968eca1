package workflow

import (
	"context"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/mutate"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

func seedLinearChain(t *testing.T, store *canvasstore.MemStore, canvasID string) (nodeA, nodeB, nodeC string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateCanvas(ctx, canvas.Canvas{ID: canvasID, Owner: "u1"}); err != nil {
		t.Fatalf("seed canvas: %v", err)
	}
	patch := mutate.Patch{
		Nodes: []mutate.NodePatch{
			{ID: "temp-a", Type: canvas.NodeTypeText},
			{ID: "temp-b", Type: canvas.NodeTypeText},
			{ID: "temp-c", Type: canvas.NodeTypeText},
		},
		Handles: []mutate.HandlePatch{
			{ID: "temp-a-out", NodeID: "temp-a", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-b-in", NodeID: "temp-b", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-b-out", NodeID: "temp-b", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-c-in", NodeID: "temp-c", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
		},
		Edges: []mutate.EdgePatch{
			{ID: "temp-e1", Source: "temp-a", Target: "temp-b", SourceHandleID: "temp-a-out", TargetHandleID: "temp-b-in"},
			{ID: "temp-e2", Source: "temp-b", Target: "temp-c", SourceHandleID: "temp-b-out", TargetHandleID: "temp-c-in"},
		},
	}
	result, err := mutate.ApplyCanvasUpdate(ctx, store, canvasemit.NullEmitter{}, canvasID, patch)
	if err != nil {
		t.Fatalf("seed patch: %v", err)
	}
	return result.Mapping.Nodes["temp-a"], result.Mapping.Nodes["temp-b"], result.Mapping.Nodes["temp-c"]
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestProcessNodesTopologicalOrder(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{canvas.NodeTypeText: {Type: canvas.NodeTypeText}})
	nodeA, nodeB, nodeC := seedLinearChain(t, store, "c1")

	plan, err := ProcessNodes(context.Background(), store, "c1", nil)
	if err != nil {
		t.Fatalf("ProcessNodes: %v", err)
	}
	if len(plan.Order) != 3 {
		t.Fatalf("expected 3 nodes in order, got %d: %v", len(plan.Order), plan.Order)
	}
	if indexOf(plan.Order, nodeA) > indexOf(plan.Order, nodeB) || indexOf(plan.Order, nodeB) > indexOf(plan.Order, nodeC) {
		t.Errorf("expected order A,B,C respecting dependencies, got %v", plan.Order)
	}
	for _, id := range plan.Order {
		if !plan.SelectionMap[id] {
			t.Errorf("expected node %s explicitly selected when nodeIds=nil", id)
		}
	}
}

func TestProcessNodesUpstreamClosureAndSelection(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{canvas.NodeTypeText: {Type: canvas.NodeTypeText}})
	nodeA, nodeB, nodeC := seedLinearChain(t, store, "c1")

	plan, err := ProcessNodes(context.Background(), store, "c1", []string{nodeC})
	if err != nil {
		t.Fatalf("ProcessNodes: %v", err)
	}
	if len(plan.Order) != 3 {
		t.Fatalf("expected upstream closure to retain A,B,C, got %v", plan.Order)
	}
	if plan.SelectionMap[nodeA] || plan.SelectionMap[nodeB] {
		t.Errorf("expected only nodeC explicitly selected, got %v", plan.SelectionMap)
	}
	if !plan.SelectionMap[nodeC] {
		t.Errorf("expected nodeC explicitly selected")
	}
}

func TestProcessNodesFiltersUnselectedTerminalAncestors(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText:    {Type: canvas.NodeTypeText},
		canvas.NodeTypeExport:  {Type: canvas.NodeTypeExport, IsTerminalNode: true},
	})
	ctx := context.Background()
	if err := store.CreateCanvas(ctx, canvas.Canvas{ID: "c1", Owner: "u1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// export -> text: export is upstream of text but terminal and unselected.
	patch := mutate.Patch{
		Nodes: []mutate.NodePatch{
			{ID: "temp-export", Type: canvas.NodeTypeExport},
			{ID: "temp-text", Type: canvas.NodeTypeText},
		},
		Handles: []mutate.HandlePatch{
			{ID: "temp-export-out", NodeID: "temp-export", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-text-in", NodeID: "temp-text", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
		},
		Edges: []mutate.EdgePatch{
			{ID: "temp-e", Source: "temp-export", Target: "temp-text", SourceHandleID: "temp-export-out", TargetHandleID: "temp-text-in"},
		},
	}
	result, err := mutate.ApplyCanvasUpdate(ctx, store, canvasemit.NullEmitter{}, "c1", patch)
	if err != nil {
		t.Fatalf("seed patch: %v", err)
	}
	textID := result.Mapping.Nodes["temp-text"]
	exportID := result.Mapping.Nodes["temp-export"]

	plan, err := ProcessNodes(ctx, store, "c1", []string{textID})
	if err != nil {
		t.Fatalf("ProcessNodes: %v", err)
	}
	if len(plan.Order) != 1 || plan.Order[0] != textID {
		t.Errorf("expected only text node retained, got %v (export=%s)", plan.Order, exportID)
	}
}

func TestProcessNodesDetectsCycle(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{canvas.NodeTypeText: {Type: canvas.NodeTypeText}})
	ctx := context.Background()
	if err := store.CreateCanvas(ctx, canvas.Canvas{ID: "c1", Owner: "u1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	patch := mutate.Patch{
		Nodes: []mutate.NodePatch{
			{ID: "temp-a", Type: canvas.NodeTypeText},
			{ID: "temp-b", Type: canvas.NodeTypeText},
		},
		Handles: []mutate.HandlePatch{
			{ID: "temp-a-in", NodeID: "temp-a", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-a-out", NodeID: "temp-a", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-b-in", NodeID: "temp-b", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-b-out", NodeID: "temp-b", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
		},
		Edges: []mutate.EdgePatch{
			{ID: "temp-e1", Source: "temp-a", Target: "temp-b", SourceHandleID: "temp-a-out", TargetHandleID: "temp-b-in"},
			{ID: "temp-e2", Source: "temp-b", Target: "temp-a", SourceHandleID: "temp-b-out", TargetHandleID: "temp-a-in"},
		},
	}
	if _, err := mutate.ApplyCanvasUpdate(ctx, store, canvasemit.NullEmitter{}, "c1", patch); err != nil {
		t.Fatalf("seed patch: %v", err)
	}

	_, err := ProcessNodes(ctx, store, "c1", nil)
	if err == nil {
		t.Fatal("expected CycleDetected error")
	}
	planErr, ok := err.(*canvas.PlanError)
	if !ok || planErr.Code != "CycleDetected" {
		t.Errorf("expected *canvas.PlanError{Code: CycleDetected}, got %v (%T)", err, err)
	}
}

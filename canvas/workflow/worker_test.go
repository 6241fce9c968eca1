package workflow

import (
	"context"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/mutate"
	"github.com/flowcanvas/canvasengine/canvas/processor"
	"github.com/flowcanvas/canvasengine/canvas/processor/illustrative"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

func seedTextToEcho(t *testing.T, store *canvasstore.MemStore, canvasID string) (textNode, echoNode string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateCanvas(ctx, canvas.Canvas{ID: canvasID, Owner: "u1"}); err != nil {
		t.Fatalf("seed canvas: %v", err)
	}
	patch := mutate.Patch{
		Nodes: []mutate.NodePatch{
			{ID: "temp-text", Type: canvas.NodeTypeText, Config: canvas.RawJSON(`{"content":"hello"}`)},
			{ID: "temp-echo", Type: canvas.NodeTypeFile},
		},
		Handles: []mutate.HandlePatch{
			{ID: "temp-text-out", NodeID: "temp-text", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-echo-in", NodeID: "temp-echo", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-echo-out", NodeID: "temp-echo", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
		},
		Edges: []mutate.EdgePatch{
			{ID: "temp-e", Source: "temp-text", Target: "temp-echo", SourceHandleID: "temp-text-out", TargetHandleID: "temp-echo-in"},
		},
	}
	result, err := mutate.ApplyCanvasUpdate(ctx, store, canvasemit.NullEmitter{}, canvasID, patch)
	if err != nil {
		t.Fatalf("seed patch: %v", err)
	}
	return result.Mapping.Nodes["temp-text"], result.Mapping.Nodes["temp-echo"]
}

func TestRunBatchPropagatesResultThroughChain(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText: {Type: canvas.NodeTypeText},
		canvas.NodeTypeFile: {Type: canvas.NodeTypeFile},
	})
	ctx := context.Background()
	_, echoNode := seedTextToEcho(t, store, "c1")

	registry := processor.NewRegistry(map[canvas.NodeType]processor.Processor{
		canvas.NodeTypeText: illustrative.TextProcessor{},
		canvas.NodeTypeFile: illustrative.EchoProcessor{},
	})

	plan, err := ProcessNodes(ctx, store, "c1", nil)
	if err != nil {
		t.Fatalf("ProcessNodes: %v", err)
	}
	d := &recordingDispatcher{}
	batch, err := CreateBatch(ctx, store, d, canvasemit.NullEmitter{}, plan, "")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(d.enqueued) != 1 {
		t.Fatalf("expected one enqueue, got %d", len(d.enqueued))
	}

	if err := RunBatch(ctx, store, registry, nil, d, canvasemit.NullEmitter{}, d.enqueued[0]); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	finished, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if finished.FinishedAt == nil {
		t.Error("expected batch to be finished")
	}

	echo, err := store.LoadNode(ctx, echoNode)
	if err != nil {
		t.Fatalf("LoadNode: %v", err)
	}
	if len(echo.Result.Outputs) == 0 || len(echo.Result.Outputs[0].Items) == 0 {
		t.Fatalf("expected echo node to receive a propagated result, got %+v", echo.Result)
	}
}

func TestRunBatchFailsTaskWhenNoProcessorRegistered(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText: {Type: canvas.NodeTypeText},
		canvas.NodeTypeFile: {Type: canvas.NodeTypeFile},
	})
	ctx := context.Background()
	seedTextToEcho(t, store, "c1")

	registry := processor.NewRegistry(map[canvas.NodeType]processor.Processor{
		canvas.NodeTypeText: illustrative.TextProcessor{},
	})

	plan, err := ProcessNodes(ctx, store, "c1", nil)
	if err != nil {
		t.Fatalf("ProcessNodes: %v", err)
	}
	d := &recordingDispatcher{}
	_, err = CreateBatch(ctx, store, d, canvasemit.NullEmitter{}, plan, "")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	if err := RunBatch(ctx, store, registry, nil, d, canvasemit.NullEmitter{}, d.enqueued[0]); err != nil {
		t.Fatalf("RunBatch should not abort the batch on a single task failure: %v", err)
	}

	var sawFailed bool
	for _, taskID := range d.enqueued[0].TaskSequence {
		task, err := store.GetTask(ctx, taskID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.Status == canvas.TaskFailed {
			sawFailed = true
			if task.Error == nil {
				t.Error("expected failed task to carry an Error")
			}
		}
	}
	if !sawFailed {
		t.Error("expected the file-type task to fail for lack of a registered processor")
	}
}

func TestRunBatchRunsOnlySelectedNodeWhenTerminalIsDownstream(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText:   {Type: canvas.NodeTypeText},
		canvas.NodeTypeExport: {Type: canvas.NodeTypeExport, IsTerminalNode: true},
	})
	ctx := context.Background()
	if err := store.CreateCanvas(ctx, canvas.Canvas{ID: "c1", Owner: "u1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	patch := mutate.Patch{
		Nodes: []mutate.NodePatch{
			{ID: "temp-text", Type: canvas.NodeTypeText, Config: canvas.RawJSON(`{"content":"hi"}`)},
			{ID: "temp-export", Type: canvas.NodeTypeExport},
		},
		Handles: []mutate.HandlePatch{
			{ID: "temp-text-out", NodeID: "temp-text", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
			{ID: "temp-export-in", NodeID: "temp-export", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}},
		},
		Edges: []mutate.EdgePatch{
			{ID: "temp-e", Source: "temp-text", Target: "temp-export", SourceHandleID: "temp-text-out", TargetHandleID: "temp-export-in"},
		},
	}
	result, err := mutate.ApplyCanvasUpdate(ctx, store, canvasemit.NullEmitter{}, "c1", patch)
	if err != nil {
		t.Fatalf("seed patch: %v", err)
	}
	textID := result.Mapping.Nodes["temp-text"]

	registry := processor.NewRegistry(map[canvas.NodeType]processor.Processor{
		canvas.NodeTypeText: illustrative.TextProcessor{},
	})

	plan, err := ProcessNodes(ctx, store, "c1", []string{textID})
	if err != nil {
		t.Fatalf("ProcessNodes: %v", err)
	}
	if len(plan.Order) != 1 {
		t.Fatalf("expected export node filtered from plan (downstream of the selection), got %v", plan.Order)
	}

	d := &recordingDispatcher{}
	if _, err := CreateBatch(ctx, store, d, canvasemit.NullEmitter{}, plan, ""); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := RunBatch(ctx, store, registry, nil, d, canvasemit.NullEmitter{}, d.enqueued[0]); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	task, err := store.GetTask(ctx, d.enqueued[0].TaskSequence[0])
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != canvas.TaskCompleted {
		t.Errorf("expected text task completed, got %s", task.Status)
	}
}

func TestRunBatchHandsOffToPendingBatchOnFinish(t *testing.T) {
	store := canvasstore.NewMemStore(map[canvas.NodeType]canvas.NodeTemplate{
		canvas.NodeTypeText: {Type: canvas.NodeTypeText},
		canvas.NodeTypeFile: {Type: canvas.NodeTypeFile},
	})
	ctx := context.Background()
	seedTextToEcho(t, store, "c1")

	registry := processor.NewRegistry(map[canvas.NodeType]processor.Processor{
		canvas.NodeTypeText: illustrative.TextProcessor{},
		canvas.NodeTypeFile: illustrative.EchoProcessor{},
	})

	d := &recordingDispatcher{}
	plan1, err := ProcessNodes(ctx, store, "c1", nil)
	if err != nil {
		t.Fatalf("ProcessNodes 1: %v", err)
	}
	batch1, err := CreateBatch(ctx, store, d, canvasemit.NullEmitter{}, plan1, "")
	if err != nil {
		t.Fatalf("CreateBatch 1: %v", err)
	}

	plan2, err := ProcessNodes(ctx, store, "c1", nil)
	if err != nil {
		t.Fatalf("ProcessNodes 2: %v", err)
	}
	batch2, err := CreateBatch(ctx, store, d, canvasemit.NullEmitter{}, plan2, "")
	if err != nil {
		t.Fatalf("CreateBatch 2: %v", err)
	}
	if len(d.enqueued) != 1 {
		t.Fatalf("expected only batch1 dispatched before batch1 finishes, got %d", len(d.enqueued))
	}

	if err := RunBatch(ctx, store, registry, nil, d, canvasemit.NullEmitter{}, d.enqueued[0]); err != nil {
		t.Fatalf("RunBatch batch1: %v", err)
	}
	if len(d.enqueued) != 2 {
		t.Fatalf("expected batch2 to be handed off after batch1 finished, got %d enqueues", len(d.enqueued))
	}
	if d.enqueued[1].BatchID != batch2.ID {
		t.Errorf("expected handoff envelope for batch2, got %s", d.enqueued[1].BatchID)
	}

	if err := RunBatch(ctx, store, registry, nil, d, canvasemit.NullEmitter{}, d.enqueued[1]); err != nil {
		t.Fatalf("RunBatch batch2: %v", err)
	}
	finished2, err := store.GetBatch(ctx, batch2.ID)
	if err != nil {
		t.Fatalf("GetBatch batch2: %v", err)
	}
	if finished2.FinishedAt == nil {
		t.Error("expected batch2 to finish")
	}
	_ = batch1
}

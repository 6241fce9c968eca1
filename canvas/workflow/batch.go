package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// CreateBatch materializes a Plan into a TaskBatch and its Tasks
// (spec.md §4.4.2), then applies the per-canvas exclusivity dispatch
// policy (spec.md §4.4.3): either enqueues immediately or persists the
// envelope onto the batch's PendingJobData for a later handoff.
func CreateBatch(ctx context.Context, store canvasstore.Store, dispatcher Dispatcher, emitter canvasemit.Emitter, plan Plan, apiKey string) (canvas.TaskBatch, error) {
	if emitter == nil {
		emitter = canvasemit.NullEmitter{}
	}

	batchID := canvas.NewSortableID()
	batch := canvas.TaskBatch{
		ID:        batchID,
		CanvasID:  plan.CanvasID,
		CreatedAt: time.Now(),
	}
	if err := store.CreateBatch(ctx, batch); err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("create batch: %w", err)
	}

	if len(plan.Order) == 0 {
		now := time.Now()
		batch.FinishedAt = &now
		if err := store.UpdateBatch(ctx, batch); err != nil {
			return canvas.TaskBatch{}, fmt.Errorf("finalize empty batch: %w", err)
		}
		return batch, nil
	}

	taskIDs := make([]string, len(plan.Order))
	tasks := make([]canvas.Task, len(plan.Order))
	selectionMap := make(map[string]bool, len(plan.Order))
	for i, nodeID := range plan.Order {
		taskID := canvas.NewSortableID()
		taskIDs[i] = taskID
		node := plan.Snapshot.Nodes[nodeID]
		name := node.Name
		if name == "" {
			name = string(node.Type)
		}
		tasks[i] = canvas.Task{ID: taskID, BatchID: batchID, NodeID: nodeID, Name: name, Status: canvas.TaskQueued}
		selectionMap[taskID] = plan.SelectionMap[nodeID]
	}
	if err := store.CreateTasks(ctx, tasks); err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("create tasks: %w", err)
	}

	envelope := canvas.DispatchEnvelope{
		BatchID:      batchID,
		CanvasID:     plan.CanvasID,
		TaskSequence: taskIDs,
		SelectionMap: selectionMap,
		APIKey:       apiKey,
	}

	started, err := store.TryStartBatch(ctx, plan.CanvasID, batchID)
	if err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("try start batch: %w", err)
	}
	if !started {
		batch.PendingJobData = &envelope
		if err := store.UpdateBatch(ctx, batch); err != nil {
			return canvas.TaskBatch{}, fmt.Errorf("persist pending dispatch: %w", err)
		}
		emitter.Emit(ctx, canvasemit.Event{CanvasID: plan.CanvasID, BatchID: batchID, Kind: canvasemit.KindInfo, Message: "batch deferred: another batch already active on canvas", Fields: map[string]any{"reason": "exclusivity"}})
		return batch, nil
	}

	if err := dispatcher.Enqueue(ctx, envelope); err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("enqueue process-node job: %w", err)
	}

	now := time.Now()
	batch.StartedAt = &now
	return batch, nil
}

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/processor"
	"github.com/flowcanvas/canvasengine/canvas/resolver"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// RunBatch executes every task in envelope.TaskSequence serially
// (spec.md §4.4.4), then finalizes the batch and hands off the next
// pending batch on the same canvas, if any (spec.md §4.4.5). It is the
// function a queue worker calls for each "process-node" job.
func RunBatch(ctx context.Context, store canvasstore.Store, registry *processor.Registry, media resolver.MediaStore, dispatcher Dispatcher, emitter canvasemit.Emitter, envelope canvas.DispatchEnvelope) error {
	if emitter == nil {
		emitter = canvasemit.NullEmitter{}
	}

	snap, err := store.LoadSnapshot(ctx, envelope.CanvasID)
	if err != nil {
		return fmt.Errorf("load snapshot for batch %s: %w", envelope.BatchID, err)
	}

	for _, taskID := range envelope.TaskSequence {
		snap, err = runOneTask(ctx, store, registry, media, emitter, envelope, taskID, snap)
		if err != nil {
			return fmt.Errorf("run task %s: %w", taskID, err)
		}
	}

	if err := FinalizeBatch(ctx, store, dispatcher, emitter, envelope.BatchID, envelope.CanvasID); err != nil {
		return fmt.Errorf("finalize batch %s: %w", envelope.BatchID, err)
	}
	return nil
}

// runOneTask executes the full per-task lifecycle (spec.md §4.4.4
// steps 1-10) and returns the snapshot to use for the next task, which
// is snap unchanged unless this task completed with a new result.
func runOneTask(ctx context.Context, store canvasstore.Store, registry *processor.Registry, media resolver.MediaStore, emitter canvasemit.Emitter, envelope canvas.DispatchEnvelope, taskID string, snap *canvas.Snapshot) (*canvas.Snapshot, error) {
	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		return snap, fmt.Errorf("load task: %w", err)
	}

	startedAt := time.Now()
	task.Status = canvas.TaskExecuting
	task.StartedAt = &startedAt
	if err := store.UpdateTask(ctx, task); err != nil {
		return snap, fmt.Errorf("mark task executing: %w", err)
	}

	node, err := store.LoadNode(ctx, task.NodeID)
	if err == canvasstore.ErrNotFound {
		failTask(ctx, store, &task, "Node removed before processing")
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("load node: %w", err)
	}
	snap = snap.WithNodeResult(node.ID, node.Result)

	templates, err := store.LoadTemplatesByType(ctx, []canvas.NodeType{node.Type})
	if err != nil {
		return snap, fmt.Errorf("load template: %w", err)
	}
	tmpl := templates[node.Type]

	isExplicitlySelected := envelope.SelectionMap[taskID]
	if tmpl.IsTerminalNode && !isExplicitlySelected {
		completeTask(ctx, store, &task, startedAt)
		return snap, nil
	}

	proc, ok := registry.Lookup(node.Type)
	if !ok {
		message := fmt.Sprintf("No processor for type %s", node.Type)
		failTask(ctx, store, &task, message)
		emitter.Emit(ctx, canvasemit.Event{CanvasID: envelope.CanvasID, BatchID: envelope.BatchID, TaskID: taskID, NodeID: node.ID, Kind: canvasemit.KindError, Message: message, Fields: map[string]any{"nodeType": string(node.Type), "reason": "no_processor"}})
		return snap, nil
	}

	out, procErr := proc.Process(ctx, processor.Input{
		Node:     node,
		Snapshot: snap,
		Resolver: resolver.New(snap, media),
		Store:    store,
		APIKey:   envelope.APIKey,
	})
	if procErr != nil {
		failTask(ctx, store, &task, procErr.Error())
		emitter.Emit(ctx, canvasemit.Event{CanvasID: envelope.CanvasID, BatchID: envelope.BatchID, TaskID: taskID, NodeID: node.ID, Kind: canvasemit.KindError, Message: procErr.Error(), Fields: map[string]any{"nodeType": string(node.Type), "reason": "processor_error"}})
		return snap, nil
	}
	if !out.Success {
		failTask(ctx, store, &task, out.Error)
		emitter.Emit(ctx, canvasemit.Event{CanvasID: envelope.CanvasID, BatchID: envelope.BatchID, TaskID: taskID, NodeID: node.ID, Kind: canvasemit.KindError, Message: out.Error, Fields: map[string]any{"nodeType": string(node.Type), "reason": "processor_failure"}})
		return snap, nil
	}

	if out.NewResult != nil {
		snap = snap.WithNodeResult(node.ID, *out.NewResult)
		if !tmpl.IsTransient {
			if err := store.UpdateNodeResult(ctx, node.ID, *out.NewResult); err != nil && err != canvasstore.ErrNotFound {
				return snap, fmt.Errorf("persist node result: %w", err)
			}
		}
	}

	completeTask(ctx, store, &task, startedAt)
	return snap, nil
}

func completeTask(ctx context.Context, store canvasstore.Store, task *canvas.Task, startedAt time.Time) {
	finishedAt := time.Now()
	task.Status = canvas.TaskCompleted
	task.FinishedAt = &finishedAt
	task.DurationMs = finishedAt.Sub(startedAt).Milliseconds()
	_ = store.UpdateTask(ctx, task)
}

func failTask(ctx context.Context, store canvasstore.Store, task *canvas.Task, message string) {
	now := time.Now()
	task.Status = canvas.TaskFailed
	task.FinishedAt = &now
	if task.StartedAt != nil {
		task.DurationMs = now.Sub(*task.StartedAt).Milliseconds()
	}
	task.Error = &canvas.TaskError{Message: message}
	_ = store.UpdateTask(ctx, task)
}

// FinalizeBatch sets the batch's finishedAt, then hands off the oldest
// pending batch on the same canvas, if one is waiting (spec.md
// §4.4.5). The handoff is atomic with respect to other dispatch
// attempts because it goes through the same TryStartBatch used by
// CreateBatch. Exported so canvasqueue's crash-recovery reconciler can
// finalize a batch it finds stuck with every task terminal but
// finishedAt still nil (spec.md §4.4.6), without duplicating the
// handoff logic.
func FinalizeBatch(ctx context.Context, store canvasstore.Store, dispatcher Dispatcher, emitter canvasemit.Emitter, batchID, canvasID string) error {
	batch, err := store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	now := time.Now()
	batch.FinishedAt = &now
	if err := store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("mark batch finished: %w", err)
	}

	next, err := store.OldestPendingBatch(ctx, canvasID)
	if err != nil {
		return fmt.Errorf("find pending batch: %w", err)
	}
	if next == nil {
		return nil
	}

	envelope := *next.PendingJobData
	started, err := store.TryStartBatch(ctx, canvasID, next.ID)
	if err != nil {
		return fmt.Errorf("start pending batch: %w", err)
	}
	if !started {
		return nil
	}
	if err := dispatcher.Enqueue(ctx, envelope); err != nil {
		return fmt.Errorf("enqueue handed-off batch: %w", err)
	}
	emitter.Emit(ctx, canvasemit.Event{CanvasID: canvasID, BatchID: next.ID, Kind: canvasemit.KindInfo, Message: "batch handed off from predecessor"})
	return nil
}

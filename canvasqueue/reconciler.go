package canvasqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/workflow"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// defaultStaleTaskThreshold bounds how long a task may sit EXECUTING
// before the reconciler gives up on it and marks it FAILED, on the
// assumption that the worker that started it crashed mid-run.
const defaultStaleTaskThreshold = 10 * time.Minute

// Reconciler periodically sweeps store state for two kinds of damage
// a crashed worker can leave behind (spec.md §4.4.6):
//
//  1. a task stuck EXECUTING long after its worker died, with no
//     process left to ever complete or fail it;
//  2. a batch whose tasks have all reached a terminal status but
//     whose FinishedAt was never recorded, because the worker died
//     between the last task completing and FinalizeBatch running.
//
// Runs as a ticker-driven background loop that polls store state
// rather than queue depth.
type Reconciler struct {
	store          canvasstore.Store
	dispatcher     workflow.Dispatcher
	emitter        canvasemit.Emitter
	interval       time.Duration
	staleThreshold time.Duration
}

// NewReconciler builds a Reconciler that sweeps every interval. A
// non-positive interval defaults to 30s; a non-positive staleThreshold
// defaults to 10m.
func NewReconciler(store canvasstore.Store, dispatcher workflow.Dispatcher, emitter canvasemit.Emitter, interval, staleThreshold time.Duration) *Reconciler {
	if emitter == nil {
		emitter = canvasemit.NullEmitter{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if staleThreshold <= 0 {
		staleThreshold = defaultStaleTaskThreshold
	}
	return &Reconciler{store: store, dispatcher: dispatcher, emitter: emitter, interval: interval, staleThreshold: staleThreshold}
}

// Run blocks, sweeping every r.interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

// sweepOnce fails stale EXECUTING tasks and finalizes every unfinished
// batch whose tasks have all reached a terminal status. Errors
// handling one batch do not stop the sweep from examining the rest.
func (r *Reconciler) sweepOnce(ctx context.Context) {
	unfinished, err := r.store.ListUnfinishedBatches(ctx)
	if err != nil {
		r.emitter.Emit(ctx, canvasemit.Event{Kind: canvasemit.KindError, Message: fmt.Sprintf("reconciler: list unfinished batches: %v", err)})
		return
	}

	for _, batch := range unfinished {
		if batch.StartedAt == nil {
			// Still waiting for its turn via the exclusivity handoff,
			// not stuck.
			continue
		}

		tasks, err := r.store.ListTasks(ctx, batch.ID)
		if err != nil {
			r.emitter.Emit(ctx, canvasemit.Event{CanvasID: batch.CanvasID, BatchID: batch.ID, Kind: canvasemit.KindError, Message: fmt.Sprintf("reconciler: list tasks: %v", err)})
			continue
		}
		if len(tasks) == 0 {
			continue
		}

		if err := r.failStaleTasks(ctx, batch, tasks); err != nil {
			r.emitter.Emit(ctx, canvasemit.Event{CanvasID: batch.CanvasID, BatchID: batch.ID, Kind: canvasemit.KindError, Message: fmt.Sprintf("reconciler: fail stale tasks: %v", err)})
			continue
		}
		if !allTerminal(tasks) {
			continue
		}

		if err := workflow.FinalizeBatch(ctx, r.store, r.dispatcher, r.emitter, batch.ID, batch.CanvasID); err != nil {
			r.emitter.Emit(ctx, canvasemit.Event{CanvasID: batch.CanvasID, BatchID: batch.ID, Kind: canvasemit.KindError, Message: fmt.Sprintf("reconciler: finalize stuck batch: %v", err)})
			continue
		}
		r.emitter.Emit(ctx, canvasemit.Event{CanvasID: batch.CanvasID, BatchID: batch.ID, Kind: canvasemit.KindInfo, Message: "reconciler: finalized stuck batch"})
	}
}

// failStaleTasks marks FAILED, in place within tasks, every task that
// has sat EXECUTING longer than r.staleThreshold, so a caller that
// re-checks allTerminal(tasks) immediately afterward sees the effect
// without a second store round trip.
func (r *Reconciler) failStaleTasks(ctx context.Context, batch canvas.TaskBatch, tasks []canvas.Task) error {
	now := time.Now()
	for i := range tasks {
		t := &tasks[i]
		if t.Status != canvas.TaskExecuting || t.StartedAt == nil {
			continue
		}
		if now.Sub(*t.StartedAt) < r.staleThreshold {
			continue
		}

		t.Status = canvas.TaskFailed
		t.FinishedAt = &now
		t.DurationMs = now.Sub(*t.StartedAt).Milliseconds()
		t.Error = &canvas.TaskError{Message: "task timed out: worker did not report completion within the staleness threshold"}
		if err := r.store.UpdateTask(ctx, *t); err != nil {
			return fmt.Errorf("update stale task %s: %w", t.ID, err)
		}
		r.emitter.Emit(ctx, canvasemit.Event{CanvasID: batch.CanvasID, BatchID: batch.ID, TaskID: t.ID, NodeID: t.NodeID, Kind: canvasemit.KindError, Message: t.Error.Message, Fields: map[string]any{"reason": "stale_task"}})
	}
	return nil
}

func allTerminal(tasks []canvas.Task) bool {
	for _, t := range tasks {
		if t.Status != canvas.TaskCompleted && t.Status != canvas.TaskFailed {
			return false
		}
	}
	return true
}

package canvashttp

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/batch"
	"github.com/flowcanvas/canvasengine/canvas/clone"
	"github.com/flowcanvas/canvasengine/canvas/workflow"
	"github.com/flowcanvas/canvasengine/canvasrun"
)

// handleRunStart implements POST /api/v1/run (spec.md §6): optionally
// duplicates the target canvas, resolves any supplied run payload onto
// it (spec.md §6 "Run payload shape"), builds and dispatches a batch,
// and reports its handle. Everything through
// workflow.CreateBatch's dispatch decision happens synchronously in
// the request, while the batch's own task execution runs on the
// configured Dispatcher (in-process queue or otherwise), which is why
// the response usually carries no result yet.
func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "InvalidRequest", "error": err.Error()})
		return
	}
	if req.CanvasID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "InvalidRequest", "error": "canvasId is required"})
		return
	}

	ctx := r.Context()
	targetCanvasID := req.CanvasID
	var idMapping map[string]string

	if req.duplicateCanvas() {
		newCanvas, mapping, err := clone.Duplicate(ctx, s.store, req.CanvasID, canvas.NewServerID(), clone.Options{IsAPICanvas: true})
		if err != nil {
			writeError(w, err)
			return
		}
		targetCanvasID = newCanvas.ID
		idMapping = mapping.Nodes
	}

	if len(req.Payload) > 0 {
		if err := canvasrun.ResolvePayload(ctx, s.store, s.assets, s.urls, targetCanvasID, idMapping, req.Payload); err != nil {
			writeError(w, err)
			return
		}
	}

	plan, err := workflow.ProcessNodes(ctx, s.store, targetCanvasID, req.NodeIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	taskBatch, err := workflow.CreateBatch(ctx, s.store, s.dispatcher, s.emitter, plan, req.APIKey)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := runResponse{BatchHandleID: taskBatch.ID, Success: true}
	if taskBatch.FinishedAt != nil {
		s.populateFinishedResult(ctx, &resp, taskBatch.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRunStatus implements GET /api/v1/run/{batchId}/status (spec.md
// §6): "same response schema" as the start call, with result omitted
// until the batch has finished.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	taskBatch, err := s.store.GetBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := runResponse{BatchHandleID: taskBatch.ID, Success: true}
	if taskBatch.FinishedAt != nil {
		s.populateFinishedResult(r.Context(), &resp, taskBatch.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// populateFinishedResult fills resp.Result (or resp.Success/Error on
// failure) for a batch whose tasks have all reached a terminal state,
// per the Batch Resolver (spec.md §4.5). A batch with any FAILED task
// reports success=false with that task's error rather than a partial
// result.
func (s *Server) populateFinishedResult(ctx context.Context, resp *runResponse, batchID string) {
	tasks, err := s.store.ListTasks(ctx, batchID)
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		return
	}
	for _, t := range tasks {
		if t.Status == canvas.TaskFailed {
			resp.Success = false
			if t.Error != nil {
				resp.Error = t.Error.Message
			}
			return
		}
	}

	result, err := batch.ResolveBatchResult(ctx, s.store, s.batchURLs, batchID)
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		return
	}
	resp.Result = result
}

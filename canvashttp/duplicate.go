package canvashttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/clone"
)

// handleDuplicate implements POST /canvas/{id}/duplicate (spec.md §4.3, §6).
func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	sourceCanvasID := chi.URLParam(r, "canvasID")

	var req duplicateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": "InvalidRequest", "error": err.Error()})
			return
		}
	}

	newCanvas, _, err := clone.Duplicate(r.Context(), s.store, sourceCanvasID, canvas.NewServerID(), clone.Options{
		IsAPICanvas: req.IsAPICanvas,
		KeepResults: req.KeepResults,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, duplicateResponse{CanvasID: newCanvas.ID})
}

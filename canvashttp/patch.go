package canvashttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/mutate"
)

// handlePatch implements POST /canvas/{id}/patch (spec.md §4.2, §6):
// applies a bulk patch atomically and returns the new version and ID
// mapping. Schema validation of each node's Config runs before the
// patch reaches the mutation engine, per the Opaque JSON fields design
// note ("validation at the edges, not deep in the engine") — this is
// the patch-boundary half of the `gojsonschema` wiring; the other half
// runs at the processor boundary via
// canvas/processor.NewValidatingProcessor.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	var req patchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "InvalidPatch", "error": err.Error()})
		return
	}

	for _, n := range req.Nodes {
		if err := s.schemas.Validate(n.Type, n.Config); err != nil {
			writeError(w, &canvas.ClientError{Code: "InvalidPatch", Message: err.Error(), Cause: canvas.ErrInvalidPatch})
			return
		}
	}

	result, err := mutate.ApplyCanvasUpdate(r.Context(), s.store, s.emitter, canvasID, req.toPatch())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, patchResponse{Version: result.Version, Mapping: result.Mapping})
}

package canvashttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/schema"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError translates the engine's error taxonomy (spec.md §7) into
// an HTTP response. A bare, unrecognized error becomes a 500 rather
// than leaking internal detail to the client.
func writeError(w http.ResponseWriter, err error) {
	var clientErr *canvas.ClientError
	if errors.As(err, &clientErr) {
		status := http.StatusBadRequest
		if clientErr.Code == "CanvasNotFound" || clientErr.Code == "UnknownRunPayloadNode" {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"code": clientErr.Code, "error": clientErr.Error()})
		return
	}

	var planErr *canvas.PlanError
	if errors.As(err, &planErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"code": planErr.Code, "error": planErr.Error()})
		return
	}

	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "SchemaViolation", "error": validationErr.Error()})
		return
	}

	if errors.Is(err, canvasstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "NotFound", "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "InternalFailure", "error": "internal error"})
}

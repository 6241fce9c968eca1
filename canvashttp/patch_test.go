package canvashttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/schema"
)

func TestHandlePatchCreatesNodeAndReturnsMapping(t *testing.T) {
	srv, store := newTestServer(t)
	if err := store.CreateCanvas(context.Background(), canvas.Canvas{ID: "c1", Owner: "user-1"}); err != nil {
		t.Fatalf("seed canvas: %v", err)
	}

	body := `{"nodes":[{"id":"temp-a","type":"text","name":"source"}]}`
	req := httptest.NewRequest(http.MethodPost, "/canvas/c1/patch", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp patchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version != 1 {
		t.Errorf("expected version 1, got %d", resp.Version)
	}
	realID, ok := resp.Mapping.Nodes["temp-a"]
	if !ok || realID == "" {
		t.Fatalf("expected temp-a remapped to a real node id, got %+v", resp.Mapping)
	}
}

func TestHandlePatchUnknownCanvasReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/canvas/missing/patch", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePatchRejectsConfigViolatingSchema(t *testing.T) {
	store := newSeededMemStore(t, "c1")
	schemas, err := schema.NewRegistry(map[canvas.NodeType]json.RawMessage{
		canvas.NodeTypeLLM: json.RawMessage(`{"type":"object","required":["provider"]}`),
	})
	if err != nil {
		t.Fatalf("schema.NewRegistry: %v", err)
	}
	srv := NewServer(Options{Store: store, Dispatcher: inlineDispatcher{store: store}, Schemas: schemas})

	body := `{"nodes":[{"id":"temp-a","type":"llm","config":{"model":"gpt-5"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/canvas/c1/patch", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for schema violation, got %d: %s", rec.Code, rec.Body.String())
	}
}

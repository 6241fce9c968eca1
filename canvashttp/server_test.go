package canvashttp

import (
	"context"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/processor"
	"github.com/flowcanvas/canvasengine/canvas/schema"
	"github.com/flowcanvas/canvasengine/canvas/workflow"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// inlineDispatcher runs every dispatched batch synchronously, standing
// in for canvasqueue.Queue so handler tests observe a finished batch
// without a background worker. Test fixtures only use Text/File/Export
// nodes, none of which need a registered processor.Registry entry to
// reach a terminal status.
type inlineDispatcher struct {
	store canvasstore.Store
}

func (d inlineDispatcher) Enqueue(ctx context.Context, envelope canvas.DispatchEnvelope) error {
	registry := processor.NewRegistry(nil)
	return workflow.RunBatch(ctx, d.store, registry, nil, d, canvasemit.NullEmitter{}, envelope)
}

func newTestServer(t *testing.T) (*Server, *canvasstore.MemStore) {
	t.Helper()
	store := canvasstore.NewMemStore(canvas.DefaultTemplates())

	schemas, err := schema.NewRegistry(nil)
	if err != nil {
		t.Fatalf("schema.NewRegistry: %v", err)
	}

	srv := NewServer(Options{
		Store:      store,
		Dispatcher: inlineDispatcher{store: store},
		Emitter:    canvasemit.NullEmitter{},
		Schemas:    schemas,
		BatchURLs:  noopURLResolver{},
	})
	return srv, store
}

func newSeededMemStore(t *testing.T, canvasID string) *canvasstore.MemStore {
	t.Helper()
	store := canvasstore.NewMemStore(canvas.DefaultTemplates())
	if err := store.CreateCanvas(context.Background(), canvas.Canvas{ID: canvasID, Owner: "user-1"}); err != nil {
		t.Fatalf("seed canvas: %v", err)
	}
	return store
}

type noopURLResolver struct{}

func (noopURLResolver) ResolveURL(context.Context, canvas.FileReference) (string, error) {
	return "", nil
}

package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/flowcanvas/canvasengine/canvas"
)

func textItem(t *testing.T, handleID, text string) canvas.Item {
	t.Helper()
	data, err := json.Marshal(text)
	if err != nil {
		t.Fatalf("marshal item data: %v", err)
	}
	return canvas.Item{Type: canvas.DataTypeText, Data: data, OutputHandleID: handleID}
}

// buildLinearSnapshot builds A(Text,out="hi") -> B(Echo), matching
// end-to-end scenario 1 from spec.md §8.
func buildLinearSnapshot(t *testing.T) *canvas.Snapshot {
	t.Helper()
	nodes := []canvas.Node{
		{ID: "A", CanvasID: "c1", Type: canvas.NodeTypeText, Result: canvas.ResultEnvelope{
			Outputs: []canvas.Output{{Items: []canvas.Item{textItem(t, "A-out", "hi")}}},
		}},
		{ID: "B", CanvasID: "c1", Type: canvas.NodeTypeText},
	}
	handles := []canvas.Handle{
		{ID: "A-out", NodeID: "A", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Label: "text", Order: 0},
		{ID: "B-in", NodeID: "B", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Label: "text", Required: true, Order: 0},
	}
	edges := []canvas.Edge{
		{ID: "e1", CanvasID: "c1", Source: "A", Target: "B", SourceHandleID: "A-out", TargetHandleID: "B-in"},
	}
	return canvas.NewSnapshot("c1", nodes, handles, edges)
}

func TestGetInputValueResolvesThroughEdge(t *testing.T) {
	snap := buildLinearSnapshot(t)
	r := New(snap, nil)

	item, err := r.GetInputValue("B", true, InputQuery{DataType: canvas.DataTypeText, Label: "text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got string
	if err := json.Unmarshal(item.Data, &got); err != nil {
		t.Fatalf("unmarshal item data: %v", err)
	}
	if got != "hi" {
		t.Errorf("expected %q, got %q", "hi", got)
	}
}

func TestGetInputValueRequiredMissingFails(t *testing.T) {
	snap := canvas.NewSnapshot("c1", []canvas.Node{{ID: "B", CanvasID: "c1"}}, []canvas.Handle{
		{ID: "B-in", NodeID: "B", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Label: "text", Required: true},
	}, nil)
	r := New(snap, nil)

	_, err := r.GetInputValue("B", true, InputQuery{DataType: canvas.DataTypeText, Label: "text"})
	if !errors.Is(err, canvas.ErrMissingRequiredInput) {
		t.Fatalf("expected ErrMissingRequiredInput, got %v", err)
	}
}

func TestGetInputValueOptionalMissingReturnsNil(t *testing.T) {
	snap := canvas.NewSnapshot("c1", []canvas.Node{{ID: "B", CanvasID: "c1"}}, []canvas.Handle{
		{ID: "B-in", NodeID: "B", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Label: "text"},
	}, nil)
	r := New(snap, nil)

	item, err := r.GetInputValue("B", false, InputQuery{DataType: canvas.DataTypeText, Label: "text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Errorf("expected nil item, got %+v", item)
	}
}

func TestGetInputValuesByTypePreservesOrder(t *testing.T) {
	nodes := []canvas.Node{
		{ID: "A", Result: canvas.ResultEnvelope{Outputs: []canvas.Output{{Items: []canvas.Item{textItem(t, "A-1", "first"), textItem(t, "A-2", "second")}}}}},
		{ID: "B"},
	}
	handles := []canvas.Handle{
		{ID: "A-1", NodeID: "A", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Order: 0},
		{ID: "A-2", NodeID: "A", Type: canvas.HandleOutput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Order: 1},
		{ID: "B-2", NodeID: "B", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Order: 1},
		{ID: "B-1", NodeID: "B", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Order: 0},
	}
	edges := []canvas.Edge{
		{ID: "e1", Source: "A", Target: "B", SourceHandleID: "A-1", TargetHandleID: "B-1"},
		{ID: "e2", Source: "A", Target: "B", SourceHandleID: "A-2", TargetHandleID: "B-2"},
	}
	snap := canvas.NewSnapshot("c1", nodes, handles, edges)
	r := New(snap, nil)

	items := r.GetInputValuesByType("B", canvas.DataTypeText)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	var first, second string
	_ = json.Unmarshal(items[0].Data, &first)
	_ = json.Unmarshal(items[1].Data, &second)
	if first != "first" || second != "second" {
		t.Errorf("expected order [first second], got [%s %s]", first, second)
	}
}

func TestGetAllInputValuesWithHandleIncludesUnresolved(t *testing.T) {
	snap := canvas.NewSnapshot("c1", []canvas.Node{{ID: "B"}}, []canvas.Handle{
		{ID: "B-1", NodeID: "B", Type: canvas.HandleInput, DataTypes: []canvas.DataType{canvas.DataTypeText}, Order: 0},
	}, nil)
	r := New(snap, nil)

	values := r.GetAllInputValuesWithHandle("B")
	if len(values) != 1 {
		t.Fatalf("expected 1 handle value, got %d", len(values))
	}
	if values[0].Item != nil {
		t.Errorf("expected unresolved item to be nil, got %+v", values[0].Item)
	}
}

type fakeMediaStore struct {
	bytes []byte
	err   error
}

func (f fakeMediaStore) FetchAsset(ctx context.Context, ref canvas.FileReference) ([]byte, error) {
	return f.bytes, f.err
}

func TestLoadMediaBufferFetchesFileReference(t *testing.T) {
	ref := canvas.FileReference{ID: "f1", Key: "k", Bucket: "b", MimeType: "image/png"}
	data, _ := json.Marshal(ref)
	item := canvas.Item{Type: canvas.DataTypeImage, Data: data}

	r := New(nil, fakeMediaStore{bytes: []byte("PNGDATA")})
	buf, err := r.LoadMediaBuffer(context.Background(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf) != "PNGDATA" {
		t.Errorf("expected PNGDATA, got %q", buf)
	}
}

func TestLoadMediaBufferDecodesDataURL(t *testing.T) {
	pd := canvas.ProcessData{DataURL: "data:text/plain;base64,aGVsbG8="}
	data, _ := json.Marshal(pd)
	item := canvas.Item{Type: canvas.DataTypeFile, Data: data}

	r := New(nil, nil)
	buf, err := r.LoadMediaBuffer(context.Background(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("expected hello, got %q", buf)
	}
}

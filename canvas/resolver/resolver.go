// Package resolver implements the Graph Resolver (spec.md §4.1): pure
// lookups of a node's resolved input items, given a canvas snapshot.
// Nothing here mutates the snapshot it is handed.
package resolver

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/flowcanvas/canvasengine/canvas"
)

// MediaStore resolves a FileReference or data-URL-bearing ProcessData
// into raw bytes. Object storage itself is out of this core's scope
// (spec.md §1); this is the single interface the engine depends on to
// cross that boundary.
type MediaStore interface {
	FetchAsset(ctx context.Context, ref canvas.FileReference) ([]byte, error)
}

// Resolver answers input-resolution queries against a fixed Snapshot.
type Resolver struct {
	snapshot *canvas.Snapshot
	media    MediaStore
}

// New builds a Resolver over snap. media may be nil if the caller
// never invokes LoadMediaBuffer.
func New(snap *canvas.Snapshot, media MediaStore) *Resolver {
	return &Resolver{snapshot: snap, media: media}
}

// InputQuery selects an input handle by label and accepted data type.
type InputQuery struct {
	DataType canvas.DataType
	Label    string
}

// GetInputValue finds the Input handle on nodeID matching both Label
// and DataType, follows its unique incoming edge, and returns the
// item the source node produced on that edge's source handle. If
// required and any step fails, it returns canvas.ErrMissingRequiredInput.
// If not required, a failed lookup returns (nil, nil).
func (r *Resolver) GetInputValue(nodeID string, required bool, q InputQuery) (*canvas.Item, error) {
	handle, ok := r.findInputHandle(nodeID, q)
	if !ok {
		return r.missOrNil(required, nodeID, "no matching input handle for label %q type %q", q.Label, q.DataType)
	}

	item, ok := r.resolveHandle(handle)
	if !ok {
		return r.missOrNil(required, nodeID, "no resolved value for handle %s", handle.ID)
	}
	return item, nil
}

// GetInputValuesByType returns the resolved items across every Input
// handle on nodeID whose DataTypes include dt, in handle Order.
func (r *Resolver) GetInputValuesByType(nodeID string, dt canvas.DataType) []canvas.Item {
	handles := r.inputHandles(nodeID)
	sort.Slice(handles, func(i, j int) bool { return handles[i].Order < handles[j].Order })

	var items []canvas.Item
	for _, h := range handles {
		if !h.HasDataType(dt) {
			continue
		}
		if item, ok := r.resolveHandle(h); ok {
			items = append(items, *item)
		}
	}
	return items
}

// HandleValue pairs an Input handle with its currently resolved item
// (nil if unresolved).
type HandleValue struct {
	Handle canvas.Handle
	Item   *canvas.Item
}

// GetAllInputValuesWithHandle enumerates every Input handle on
// nodeID, in Order, alongside its resolved item or nil.
func (r *Resolver) GetAllInputValuesWithHandle(nodeID string) []HandleValue {
	handles := r.inputHandles(nodeID)
	sort.Slice(handles, func(i, j int) bool { return handles[i].Order < handles[j].Order })

	out := make([]HandleValue, 0, len(handles))
	for _, h := range handles {
		item, _ := r.resolveHandle(h)
		out = append(out, HandleValue{Handle: h, Item: item})
	}
	return out
}

// LoadMediaBuffer resolves an item's Data into raw bytes. This is the
// single boundary across which media bytes enter node processors: a
// FileReference is fetched from the MediaStore, a ProcessData data
// URL is decoded in place, and anything else is treated as already
// being an inline primitive with no buffer to load.
func (r *Resolver) LoadMediaBuffer(ctx context.Context, item canvas.Item) ([]byte, error) {
	switch item.Type {
	case canvas.DataTypeImage, canvas.DataTypeVideo, canvas.DataTypeAudio, canvas.DataTypeFile, canvas.DataTypeMask, canvas.DataTypeLottie:
	default:
		return nil, fmt.Errorf("item type %q does not carry a media buffer", item.Type)
	}

	var asRef canvas.FileReference
	if err := unmarshalInto(item.Data, &asRef); err == nil && asRef.Key != "" {
		if r.media == nil {
			return nil, fmt.Errorf("no media store configured to fetch asset %s", asRef.ID)
		}
		return r.media.FetchAsset(ctx, asRef)
	}

	var asProcess canvas.ProcessData
	if err := unmarshalInto(item.Data, &asProcess); err == nil && asProcess.DataURL != "" {
		return decodeDataURL(asProcess.DataURL)
	}

	return nil, fmt.Errorf("item carries neither a FileReference nor a data URL")
}

func (r *Resolver) missOrNil(required bool, nodeID, format string, args ...any) (*canvas.Item, error) {
	if required {
		return nil, fmt.Errorf("%w: node %s: %s", canvas.ErrMissingRequiredInput, nodeID, fmt.Sprintf(format, args...))
	}
	return nil, nil
}

func (r *Resolver) inputHandles(nodeID string) []canvas.Handle {
	all := r.snapshot.HandlesForNode(nodeID)
	out := make([]canvas.Handle, 0, len(all))
	for _, h := range all {
		if h.Type == canvas.HandleInput {
			out = append(out, h)
		}
	}
	return out
}

func (r *Resolver) findInputHandle(nodeID string, q InputQuery) (canvas.Handle, bool) {
	for _, h := range r.inputHandles(nodeID) {
		if h.Label != q.Label {
			continue
		}
		if !h.HasDataType(q.DataType) {
			continue
		}
		return h, true
	}
	return canvas.Handle{}, false
}

// resolveHandle follows handle's unique incoming edge to the upstream
// node's currently selected output and picks the item whose
// OutputHandleID matches the edge's source handle.
func (r *Resolver) resolveHandle(handle canvas.Handle) (*canvas.Item, bool) {
	edge, ok := r.snapshot.EdgeIntoHandle(handle.ID)
	if !ok {
		return nil, false
	}
	source, ok := r.snapshot.Nodes[edge.Source]
	if !ok {
		return nil, false
	}
	for _, item := range source.Result.SelectedItems() {
		if item.OutputHandleID == edge.SourceHandleID {
			it := item
			return &it, true
		}
	}
	return nil, false
}

func decodeDataURL(dataURL string) ([]byte, error) {
	idx := strings.Index(dataURL, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data URL")
	}
	meta, payload := dataURL[:idx], dataURL[idx+1:]
	if strings.Contains(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	return []byte(payload), nil
}

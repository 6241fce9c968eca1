// Package clone implements the Canvas Cloner (spec.md §4.3): a pure,
// three-pass deep copy of a canvas with full ID-reference rewriting,
// applied transactionally the same way canvas/mutate commits a patch.
package clone

import (
	"context"
	"fmt"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// Options configures a Duplicate call.
type Options struct {
	// IsAPICanvas marks the clone as a one-shot canvas created for an
	// API run rather than an interactive copy.
	IsAPICanvas bool
	// KeepResults, when true, carries over each node's persisted
	// Result (with OutputHandleID references rewritten); otherwise
	// every cloned node starts with an empty ResultEnvelope.
	KeepResults bool
	// OwnerOverride, if non-empty, sets the clone's Owner instead of
	// inheriting the source canvas's.
	OwnerOverride string
}

// Mapping records how source IDs were rewritten, exposed mainly for
// tests and diagnostics; callers normally only need the returned
// canvas ID.
type Mapping struct {
	Nodes   map[string]string
	Handles map[string]string
}

// Duplicate deep-copies sourceCanvasID into a brand-new canvas,
// rewriting every internal ID reference so nothing in the clone points
// back at a source-canvas entity. It never mutates the source.
func Duplicate(ctx context.Context, store canvasstore.Store, sourceCanvasID string, newCanvasID string, opts Options) (canvas.Canvas, Mapping, error) {
	source, err := store.GetCanvas(ctx, sourceCanvasID)
	if err != nil {
		if err == canvasstore.ErrNotFound {
			return canvas.Canvas{}, Mapping{}, &canvas.ClientError{Code: "CanvasNotFound", Message: sourceCanvasID, Cause: err}
		}
		return canvas.Canvas{}, Mapping{}, fmt.Errorf("load source canvas: %w", err)
	}

	owner := source.Owner
	if opts.OwnerOverride != "" {
		owner = opts.OwnerOverride
	}

	newCanvas := canvas.Canvas{
		ID:               newCanvasID,
		Owner:            owner,
		OriginalCanvasID: source.ID,
		IsAPICanvas:      opts.IsAPICanvas,
		Version:          1,
	}

	mapping := Mapping{Nodes: map[string]string{}, Handles: map[string]string{}}

	err = store.WithTransaction(ctx, func(ctx context.Context, tx canvasstore.CanvasTx) error {
		if err := tx.CreateCanvas(ctx, newCanvas); err != nil {
			return fmt.Errorf("create clone canvas: %w", err)
		}

		snap, err := tx.SourceSnapshot(ctx, sourceCanvasID)
		if err != nil {
			return fmt.Errorf("load source snapshot: %w", err)
		}

		// Pass 1: create nodes and handles verbatim, recording the
		// old->new ID tables (spec.md §4.3 step 3).
		nodeIDAlloc := make(map[string]string, len(snap.Nodes))
		for oldID := range snap.Nodes {
			nodeIDAlloc[oldID] = canvas.NewServerID()
		}
		handleIDAlloc := make(map[string]string, len(snap.Handles))
		for oldID := range snap.Handles {
			handleIDAlloc[oldID] = canvas.NewServerID()
		}

		for oldID, n := range snap.Nodes {
			newID := nodeIDAlloc[oldID]
			result := canvas.ResultEnvelope{}
			if opts.KeepResults {
				result = n.Result
			}
			newNode := canvas.Node{
				ID:             newID,
				CanvasID:       newCanvasID,
				Type:           n.Type,
				Name:           n.Name,
				Position:       n.Position,
				Width:          n.Width,
				Height:         n.Height,
				TemplateID:     n.TemplateID,
				Config:         n.Config, // rewritten in pass 2
				Result:         result,
				OriginalNodeID: oldID,
			}
			if err := tx.CreateNode(ctx, newNode); err != nil {
				return fmt.Errorf("create cloned node %s: %w", newID, err)
			}
		}

		for oldID, h := range snap.Handles {
			newID := handleIDAlloc[oldID]
			newHandle := canvas.Handle{
				ID:               newID,
				NodeID:           nodeIDAlloc[h.NodeID],
				Type:             h.Type,
				DataTypes:        h.DataTypes,
				Label:            h.Label,
				Required:         h.Required,
				Order:            h.Order,
				TemplateHandleID: h.TemplateHandleID,
			}
			if err := tx.CreateHandle(ctx, newHandle); err != nil {
				return fmt.Errorf("create cloned handle %s: %w", newID, err)
			}
		}

		// Pass 2: rewrite config/result handle references through the
		// mapping tables and persist the update (spec.md §4.3 step 4).
		for oldID, n := range snap.Nodes {
			newID := nodeIDAlloc[oldID]
			node, err := tx.GetNode(ctx, newID)
			if err != nil {
				return fmt.Errorf("reload cloned node %s: %w", newID, err)
			}
			node.Config = rewriteConfig(n.Type, n.Config, handleIDAlloc)
			if opts.KeepResults {
				rewriteResultHandles(&node.Result, handleIDAlloc)
			}
			if err := tx.UpdateNode(ctx, node); err != nil {
				return fmt.Errorf("persist rewritten node %s: %w", newID, err)
			}
		}

		// Pass 3: create edges through both mapping tables, skipping
		// any whose mapping is incomplete (spec.md §4.3 step 5).
		for _, e := range snap.Edges {
			newSource, okSource := nodeIDAlloc[e.Source]
			newTarget, okTarget := nodeIDAlloc[e.Target]
			newSourceHandle, okSourceHandle := handleIDAlloc[e.SourceHandleID]
			newTargetHandle, okTargetHandle := handleIDAlloc[e.TargetHandleID]
			if !okSource || !okTarget || !okSourceHandle || !okTargetHandle {
				continue
			}
			newEdge := canvas.Edge{
				ID:             canvas.NewServerID(),
				CanvasID:       newCanvasID,
				Source:         newSource,
				Target:         newTarget,
				SourceHandleID: newSourceHandle,
				TargetHandleID: newTargetHandle,
			}
			if err := tx.CreateEdge(ctx, newEdge); err != nil {
				return fmt.Errorf("create cloned edge: %w", err)
			}
		}

		for oldID, newID := range nodeIDAlloc {
			mapping.Nodes[oldID] = newID
		}
		for oldID, newID := range handleIDAlloc {
			mapping.Handles[oldID] = newID
		}
		return nil
	})
	if err != nil {
		return canvas.Canvas{}, Mapping{}, err
	}

	return newCanvas, mapping, nil
}

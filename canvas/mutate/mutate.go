// Package mutate implements the Canvas Mutation Engine (spec.md §4.2):
// atomic application of a bulk client patch against a canvas, with
// temp-ID remapping, reference fixup, and the terminal-result rule
// applied across the three entity kinds (nodes, handles, edges) a
// patch can touch.
package mutate

import (
	"context"
	"fmt"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// ApplyCanvasUpdate applies patch to canvasID atomically and returns
// the server-assigned version and the temp->real ID mapping the
// client needs to reconcile optimistic local state (spec.md §4.2).
func ApplyCanvasUpdate(ctx context.Context, store canvasstore.Store, emitter canvasemit.Emitter, canvasID string, patch Patch) (Result, error) {
	if emitter == nil {
		emitter = canvasemit.NullEmitter{}
	}

	if _, err := store.GetCanvas(ctx, canvasID); err != nil {
		if err == canvasstore.ErrNotFound {
			return Result{}, &canvas.ClientError{Code: "CanvasNotFound", Message: canvasID, Cause: err}
		}
		return Result{}, fmt.Errorf("load canvas: %w", err)
	}

	if err := validatePatch(patch); err != nil {
		return Result{}, &canvas.ClientError{Code: "InvalidPatch", Message: err.Error(), Cause: canvas.ErrInvalidPatch}
	}

	nodeTypes := make([]canvas.NodeType, 0, len(patch.Nodes))
	seenType := map[canvas.NodeType]bool{}
	for _, n := range patch.Nodes {
		if !seenType[n.Type] {
			seenType[n.Type] = true
			nodeTypes = append(nodeTypes, n.Type)
		}
	}
	templates, err := store.LoadTemplatesByType(ctx, nodeTypes)
	if err != nil {
		return Result{}, fmt.Errorf("load templates: %w", err)
	}

	var result Result

	err = store.WithTransaction(ctx, func(ctx context.Context, tx canvasstore.CanvasTx) error {
		existing, err := tx.ExistingIDs(ctx, canvasID)
		if err != nil {
			return fmt.Errorf("load existing ids: %w", err)
		}

		c := classify(patch, existing)

		handles := rewriteHandles(patch.Handles, c)
		edges, dropped := rewriteEdges(patch.Edges, c)
		for _, edgeID := range dropped {
			delete(c.mapping.Edges, edgeID)
			emitter.Emit(ctx, canvasemit.Event{
				CanvasID: canvasID,
				Kind:     canvasemit.KindWarning,
				Message:  "dropped edge referencing unresolved handle",
				Fields:   map[string]any{"canvasId": canvasID, "edgeId": edgeID},
			})
		}

		nodes := make([]canvas.Node, 0, len(patch.Nodes))
		for _, np := range patch.Nodes {
			realID := resolveRef(np.ID, c.mapping.Nodes)
			isCreate := c.isCreateNode[realID]

			tmpl := templates[np.Type]

			var existingNode canvas.Node
			if !isCreate {
				existingNode, err = tx.GetNode(ctx, realID)
				if err != nil {
					return fmt.Errorf("load node %s: %w", realID, err)
				}
			}

			config := fixupNodeConfig(np.Type, np.Config, c.mapping.Handles)
			patchResult := np.Result
			if patchResult != nil {
				fixupResultHandles(patchResult, c.mapping.Handles)
			}
			resolved := resolveResult(isCreate, tmpl.IsTerminalNode, existingNode.Result, patchResult)

			nodes = append(nodes, canvas.Node{
				ID:             realID,
				CanvasID:       canvasID,
				Type:           np.Type,
				Name:           np.Name,
				Position:       np.Position,
				Width:          np.Width,
				Height:         np.Height,
				TemplateID:     np.TemplateID,
				Config:         config,
				Result:         resolved,
				OriginalNodeID: existingNode.OriginalNodeID,
			})
		}

		deleteEdges := diff(existing.EdgeIDs, c.keepEdgeIDs)
		deleteHandles := diff(existing.HandleIDs, c.keepHandleIDs)
		deleteNodes := diff(existing.NodeIDs, c.keepNodeIDs)

		if err := tx.DeleteEdges(ctx, deleteEdges); err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		if err := tx.DeleteHandles(ctx, deleteHandles); err != nil {
			return fmt.Errorf("delete handles: %w", err)
		}
		if err := tx.DeleteNodes(ctx, deleteNodes); err != nil {
			return fmt.Errorf("delete nodes: %w", err)
		}

		for _, n := range nodes {
			if c.isCreateNode[n.ID] {
				if err := tx.CreateNode(ctx, n); err != nil {
					return fmt.Errorf("create node %s: %w", n.ID, err)
				}
			} else {
				if err := tx.UpdateNode(ctx, n); err != nil {
					return fmt.Errorf("update node %s: %w", n.ID, err)
				}
			}
		}
		for _, h := range handles {
			if c.isCreateHandle[h.ID] {
				if err := tx.CreateHandle(ctx, h); err != nil {
					return fmt.Errorf("create handle %s: %w", h.ID, err)
				}
			} else {
				if err := tx.UpdateHandle(ctx, h); err != nil {
					return fmt.Errorf("update handle %s: %w", h.ID, err)
				}
			}
		}
		for _, e := range edges {
			e.CanvasID = canvasID
			if c.isCreateEdge[e.ID] {
				if err := tx.CreateEdge(ctx, e); err != nil {
					return fmt.Errorf("create edge %s: %w", e.ID, err)
				}
			} else {
				if err := tx.UpdateEdge(ctx, e); err != nil {
					return fmt.Errorf("update edge %s: %w", e.ID, err)
				}
			}
		}

		version, err := tx.BumpCanvasVersion(ctx, canvasID)
		if err != nil {
			return fmt.Errorf("bump canvas version: %w", err)
		}

		result = Result{Version: version, Mapping: c.mapping}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return result, nil
}

// diff returns the keys of existing that are absent from keep.
func diff(existing, keep map[string]bool) []string {
	out := make([]string, 0)
	for id := range existing {
		if !keep[id] {
			out = append(out, id)
		}
	}
	return out
}

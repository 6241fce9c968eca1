// Package batch implements the Batch Resolver (spec.md §4.5): once a
// run's tasks have all reached a terminal status, collapse the
// Export-type nodes touched by the run into a client-consumable
// mapping keyed by each node's pre-duplication identity.
package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// AssetURLResolver turns a persisted FileReference into a client-
// consumable URL (signed or public, at the storage service's
// discretion). It is the one boundary across which this package
// depends on an object-storage concern, mirroring the narrow
// MediaStore seam canvas/resolver uses for the same reason.
type AssetURLResolver interface {
	ResolveURL(ctx context.Context, ref canvas.FileReference) (string, error)
}

// ResolvedOutput is one entry of a resolved batch result: the item's
// declared type plus a client-consumable representation of its data.
type ResolvedOutput struct {
	Type canvas.DataType
	Data string
}

// ResolveBatchResult implements spec.md §4.5 steps 1-6: load the
// batch's tasks, filter to Export-type nodes, and for each one read
// its already-populated result (the run wrote it during
// workflow.RunBatch) and resolve its selected output item into a
// client-consumable value, keyed by the node's pre-duplication
// originalNodeId. A node with no originalNodeId (the run executed
// directly against a non-duplicated canvas) is keyed by its own id.
func ResolveBatchResult(ctx context.Context, store canvasstore.Store, assets AssetURLResolver, batchID string) (map[string]ResolvedOutput, error) {
	tasks, err := store.ListTasks(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for batch %s: %w", batchID, err)
	}

	result := make(map[string]ResolvedOutput)
	for _, task := range tasks {
		node, err := store.LoadNode(ctx, task.NodeID)
		if err != nil {
			if err == canvasstore.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("load node %s: %w", task.NodeID, err)
		}
		if node.Type != canvas.NodeTypeExport {
			continue
		}

		key := node.OriginalNodeID
		if key == "" {
			key = node.ID
		}

		item, ok := selectedItem(node.Result)
		if !ok {
			continue
		}

		resolved, err := resolveItem(ctx, assets, item)
		if err != nil {
			return nil, fmt.Errorf("resolve export node %s: %w", node.ID, err)
		}
		result[key] = resolved
	}
	return result, nil
}

// selectedItem picks outputs[selectedOutputIndex].items[0] (spec.md
// §4.5 step 4). An Export node with no outputs yet (e.g. its task
// failed) contributes nothing rather than an empty entry.
func selectedItem(result canvas.ResultEnvelope) (canvas.Item, bool) {
	if len(result.Outputs) == 0 {
		return canvas.Item{}, false
	}
	idx := result.SelectedOutputIndex
	if idx < 0 || idx >= len(result.Outputs) {
		idx = 0
	}
	items := result.Outputs[idx].Items
	if len(items) == 0 {
		return canvas.Item{}, false
	}
	return items[0], true
}

// resolveItem implements spec.md §4.5 step 5: a FileReference is
// resolved through AssetURLResolver; a ProcessData with an
// already-materialized dataUrl is used as-is without a storage round
// trip; anything else is treated as an inline primitive.
func resolveItem(ctx context.Context, assets AssetURLResolver, item canvas.Item) (ResolvedOutput, error) {
	var asProcess canvas.ProcessData
	if err := json.Unmarshal(item.Data, &asProcess); err == nil && asProcess.DataURL != "" {
		return ResolvedOutput{Type: item.Type, Data: asProcess.DataURL}, nil
	}

	var asRef canvas.FileReference
	if err := json.Unmarshal(item.Data, &asRef); err == nil && asRef.Key != "" {
		if assets == nil {
			return ResolvedOutput{}, fmt.Errorf("no asset URL resolver configured to resolve file %s", asRef.ID)
		}
		url, err := assets.ResolveURL(ctx, asRef)
		if err != nil {
			return ResolvedOutput{}, fmt.Errorf("resolve asset url: %w", err)
		}
		return ResolvedOutput{Type: item.Type, Data: url}, nil
	}

	return ResolvedOutput{Type: item.Type, Data: string(item.Data)}, nil
}

package mutate

import "github.com/flowcanvas/canvasengine/canvas"

// resolveRef looks up a possibly-temp reference in mapping, falling
// back to the reference unchanged when it is already a real ID.
func resolveRef(id string, mapping map[string]string) string {
	if canvas.IsTempID(id) {
		if real, ok := mapping[id]; ok {
			return real
		}
		return id // unmapped temp ID: caller treats as unresolved
	}
	return id
}

// rewriteHandles applies node-ID remapping to each handle's NodeID
// and assigns each handle its post-remap ID.
func rewriteHandles(patch []HandlePatch, c classification) []canvas.Handle {
	out := make([]canvas.Handle, 0, len(patch))
	for _, h := range patch {
		out = append(out, canvas.Handle{
			ID:               resolveRef(h.ID, c.mapping.Handles),
			NodeID:           resolveRef(h.NodeID, c.mapping.Nodes),
			Type:             h.Type,
			DataTypes:        h.DataTypes,
			Label:            h.Label,
			Required:         h.Required,
			Order:            h.Order,
			TemplateHandleID: h.TemplateHandleID,
		})
	}
	return out
}

// rewriteEdges applies node- and handle-ID remapping to each edge's
// endpoints, dropping any edge whose resolved handle reference does
// not correspond to a handle that will exist after this patch
// (spec.md §4.2 step 5: "silently dropped with a warning").
//
// dropped holds one entry per skipped edge for the caller to log.
func rewriteEdges(patch []EdgePatch, c classification) (kept []canvas.Edge, dropped []string) {
	for _, e := range patch {
		sourceHandle := resolveRef(e.SourceHandleID, c.mapping.Handles)
		targetHandle := resolveRef(e.TargetHandleID, c.mapping.Handles)

		if !c.keepHandleIDs[sourceHandle] || !c.keepHandleIDs[targetHandle] {
			dropped = append(dropped, e.ID)
			continue
		}

		kept = append(kept, canvas.Edge{
			ID:             resolveRef(e.ID, c.mapping.Edges),
			Source:         resolveRef(e.Source, c.mapping.Nodes),
			Target:         resolveRef(e.Target, c.mapping.Nodes),
			SourceHandleID: sourceHandle,
			TargetHandleID: targetHandle,
		})
	}
	return kept, dropped
}

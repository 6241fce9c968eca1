package mutate

import (
	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// classification records, per submitted entity, whether it is a
// create or an update, plus the ID mapping from submitted ID (temp or
// real) to the ID the entity will live under after remapping.
type classification struct {
	mapping IDMapping

	keepNodeIDs   map[string]bool
	keepHandleIDs map[string]bool
	keepEdgeIDs   map[string]bool

	// isCreate[id] is keyed by the *post-remap* ID.
	isCreateNode   map[string]bool
	isCreateHandle map[string]bool
	isCreateEdge   map[string]bool
}

// classify implements spec.md §4.2 steps 3-4: classify each submitted
// entity as create or update, compute keepIDs, and allocate fresh
// server IDs for every temp- ID.
func classify(patch Patch, existing canvasstore.EntityIDSets) classification {
	c := classification{
		mapping:        newIDMapping(),
		keepNodeIDs:    map[string]bool{},
		keepHandleIDs:  map[string]bool{},
		keepEdgeIDs:    map[string]bool{},
		isCreateNode:   map[string]bool{},
		isCreateHandle: map[string]bool{},
		isCreateEdge:   map[string]bool{},
	}

	for _, n := range patch.Nodes {
		realID := resolveID(n.ID, existing.NodeIDs, c.mapping.Nodes)
		c.keepNodeIDs[realID] = true
		if canvas.IsTempID(n.ID) || !existing.NodeIDs[n.ID] {
			c.isCreateNode[realID] = true
		}
	}
	for _, h := range patch.Handles {
		realID := resolveID(h.ID, existing.HandleIDs, c.mapping.Handles)
		c.keepHandleIDs[realID] = true
		if canvas.IsTempID(h.ID) || !existing.HandleIDs[h.ID] {
			c.isCreateHandle[realID] = true
		}
	}
	for _, e := range patch.Edges {
		realID := resolveID(e.ID, existing.EdgeIDs, c.mapping.Edges)
		c.keepEdgeIDs[realID] = true
		if canvas.IsTempID(e.ID) || !existing.EdgeIDs[e.ID] {
			c.isCreateEdge[realID] = true
		}
	}

	return c
}

// resolveID allocates a fresh server ID for a temp- ID (recording it
// in mapping) and returns it; for an already-real ID it returns the
// ID unchanged, whether or not it existed before (an unknown real ID
// is a create-with-client-chosen-ID, not remapped).
func resolveID(id string, existingSet map[string]bool, mapping map[string]string) string {
	if !canvas.IsTempID(id) {
		return id
	}
	if real, ok := mapping[id]; ok {
		return real
	}
	real := canvas.NewServerID()
	mapping[id] = real
	return real
}

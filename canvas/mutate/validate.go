package mutate

import "fmt"

// validatePatch performs the structural checks that must hold before
// any ID remapping is attempted. Deeper schema validation of a node's
// Config against its type's schema happens at the HTTP boundary
// (canvashttp), per the Opaque JSON fields design note: validation at
// the edges, not deep in the engine.
func validatePatch(p Patch) error {
	for i, n := range p.Nodes {
		if n.ID == "" {
			return fmt.Errorf("nodes[%d]: missing id", i)
		}
		if n.Type == "" {
			return fmt.Errorf("nodes[%d]: missing type", i)
		}
	}
	for i, h := range p.Handles {
		if h.ID == "" {
			return fmt.Errorf("handles[%d]: missing id", i)
		}
		if h.NodeID == "" {
			return fmt.Errorf("handles[%d]: missing nodeId", i)
		}
		if h.Type != "input" && h.Type != "output" {
			return fmt.Errorf("handles[%d]: invalid type %q", i, h.Type)
		}
		if len(h.DataTypes) == 0 {
			return fmt.Errorf("handles[%d]: dataTypes must be non-empty", i)
		}
	}
	for i, e := range p.Edges {
		if e.ID == "" {
			return fmt.Errorf("edges[%d]: missing id", i)
		}
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("edges[%d]: missing source/target", i)
		}
		if e.SourceHandleID == "" || e.TargetHandleID == "" {
			return fmt.Errorf("edges[%d]: missing sourceHandleId/targetHandleId", i)
		}
	}
	return nil
}

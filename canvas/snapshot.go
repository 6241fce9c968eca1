package canvas

// Snapshot is an immutable, in-memory view of a canvas used for
// planning and resolution. Every Graph Resolver operation and the
// Workflow Processor's plan construction operate purely over a
// Snapshot; nothing in this package mutates one in place — the
// worker replaces node Results with a copy-on-write update (see
// Snapshot.WithNodeResult).
type Snapshot struct {
	CanvasID string
	Nodes    map[string]Node   // nodeID -> Node
	Handles  map[string]Handle // handleID -> Handle
	Edges    []Edge

	handlesByNode map[string][]Handle // lazily built index
	edgesByTarget map[string][]Edge   // targetHandleID -> edges (at most one per target, but kept as slice defensively)
}

// NewSnapshot builds a Snapshot and its lookup indexes from raw rows.
func NewSnapshot(canvasID string, nodes []Node, handles []Handle, edges []Edge) *Snapshot {
	s := &Snapshot{
		CanvasID:      canvasID,
		Nodes:         make(map[string]Node, len(nodes)),
		Handles:       make(map[string]Handle, len(handles)),
		Edges:         edges,
		handlesByNode: make(map[string][]Handle),
		edgesByTarget: make(map[string][]Edge),
	}
	for _, n := range nodes {
		s.Nodes[n.ID] = n
	}
	for _, h := range handles {
		s.Handles[h.ID] = h
		s.handlesByNode[h.NodeID] = append(s.handlesByNode[h.NodeID], h)
	}
	for _, e := range edges {
		s.edgesByTarget[e.TargetHandleID] = append(s.edgesByTarget[e.TargetHandleID], e)
	}
	return s
}

// HandlesForNode returns every handle defined on nodeID, in
// declaration order (callers that need Handle.Order sorting should
// sort the result; most templates already hand handles back in order).
func (s *Snapshot) HandlesForNode(nodeID string) []Handle {
	return s.handlesByNode[nodeID]
}

// EdgeIntoHandle returns the unique edge whose TargetHandleID equals
// handleID, or false if none exists. A target handle receives at most
// one edge per the Edge invariants in spec.md §3.
func (s *Snapshot) EdgeIntoHandle(handleID string) (Edge, bool) {
	edges := s.edgesByTarget[handleID]
	if len(edges) == 0 {
		return Edge{}, false
	}
	return edges[0], true
}

// WithNodeResult returns a shallow copy of the snapshot with nodeID's
// Result replaced. Used by the worker to hydrate newly-produced
// results into the in-memory snapshot without mutating the original
// (spec.md §4.4.4 step 6/8).
func (s *Snapshot) WithNodeResult(nodeID string, result ResultEnvelope) *Snapshot {
	next := &Snapshot{
		CanvasID:      s.CanvasID,
		Nodes:         make(map[string]Node, len(s.Nodes)),
		Handles:       s.Handles,
		Edges:         s.Edges,
		handlesByNode: s.handlesByNode,
		edgesByTarget: s.edgesByTarget,
	}
	for id, n := range s.Nodes {
		next.Nodes[id] = n
	}
	if n, ok := next.Nodes[nodeID]; ok {
		n.Result = result
		next.Nodes[nodeID] = n
	}
	return next
}

// Package workflow implements the Workflow Processor (spec.md §4.4):
// plan construction over a canvas snapshot, batch/task materialization,
// the per-canvas exclusivity dispatch policy, and the serial per-task
// worker loop. Plan construction follows a snapshot → dependency-graph
// → topological-order → sequential-execution pipeline, specialized to
// canvas nodes with upstream-closure selection and terminal-node
// filtering.
package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// Plan is the output of ProcessNodes: a topologically ordered task
// sequence ready for batch materialization.
type Plan struct {
	CanvasID     string
	Order        []string        // nodeIDs, topological order
	SelectionMap map[string]bool // nodeID -> explicitly selected
	Snapshot     *canvas.Snapshot
}

// ProcessNodes builds an execution Plan for canvasID. nodeIDs nil means
// "the full node set"; otherwise it is the explicitly selected subset
// (spec.md §4.4.1).
func ProcessNodes(ctx context.Context, store canvasstore.Store, canvasID string, nodeIDs []string) (Plan, error) {
	snap, err := store.LoadSnapshot(ctx, canvasID)
	if err != nil {
		return Plan{}, fmt.Errorf("load snapshot: %w", err)
	}

	reverse := buildReverseDependencyGraph(snap)

	selected := make(map[string]bool)
	if nodeIDs == nil {
		for id := range snap.Nodes {
			selected[id] = true
		}
	} else {
		for _, id := range nodeIDs {
			selected[id] = true
		}
	}

	necessary := upstreamClosure(selected, reverse)

	nodeTypes := make([]canvas.NodeType, 0, len(necessary))
	seenType := map[canvas.NodeType]bool{}
	for id := range necessary {
		n, ok := snap.Nodes[id]
		if !ok {
			return Plan{}, &canvas.PlanError{Code: "InconsistentCanvas", Message: fmt.Sprintf("node %s not loaded", id), Cause: canvas.ErrInconsistentCanvas}
		}
		if !seenType[n.Type] {
			seenType[n.Type] = true
			nodeTypes = append(nodeTypes, n.Type)
		}
	}
	templates, err := store.LoadTemplatesByType(ctx, nodeTypes)
	if err != nil {
		return Plan{}, fmt.Errorf("load templates: %w", err)
	}

	retained := make(map[string]bool, len(necessary))
	for id := range necessary {
		n := snap.Nodes[id]
		tmpl := templates[n.Type]
		if selected[id] || !tmpl.IsTerminalNode {
			retained[id] = true
		}
	}

	forwardSub, reverseSub := buildSubgraphs(snap, retained)

	order, err := topoSort(retained, forwardSub, reverseSub)
	if err != nil {
		return Plan{}, err
	}

	for _, id := range order {
		if _, ok := snap.Nodes[id]; !ok {
			return Plan{}, &canvas.PlanError{Code: "InconsistentCanvas", Message: fmt.Sprintf("retained node %s not loaded", id), Cause: canvas.ErrInconsistentCanvas}
		}
	}

	selectionMap := make(map[string]bool, len(order))
	for _, id := range order {
		selectionMap[id] = selected[id]
	}

	return Plan{CanvasID: canvasID, Order: order, SelectionMap: selectionMap, Snapshot: snap}, nil
}

// buildReverseDependencyGraph maps target node -> source nodes, over
// every edge on the canvas (spec.md §4.4.1 step 2).
func buildReverseDependencyGraph(snap *canvas.Snapshot) map[string][]string {
	reverse := make(map[string][]string)
	for _, e := range snap.Edges {
		sourceNodeID := e.Source
		targetNodeID := e.Target
		reverse[targetNodeID] = append(reverse[targetNodeID], sourceNodeID)
	}
	return reverse
}

// upstreamClosure performs a breadth-first walk from selected, over
// reverse, collecting every ancestor (spec.md §4.4.1 step 4).
func upstreamClosure(selected map[string]bool, reverse map[string][]string) map[string]bool {
	necessary := make(map[string]bool, len(selected))
	queue := make([]string, 0, len(selected))
	for id := range selected {
		necessary[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, upstream := range reverse[id] {
			if !necessary[upstream] {
				necessary[upstream] = true
				queue = append(queue, upstream)
			}
		}
	}
	return necessary
}

// buildSubgraphs rebuilds forward (source->targets) and reverse
// (target->sources) dependency graphs restricted to retained nodes
// (spec.md §4.4.1 step 6).
func buildSubgraphs(snap *canvas.Snapshot, retained map[string]bool) (forward, reverse map[string][]string) {
	forward = make(map[string][]string)
	reverse = make(map[string][]string)
	for _, e := range snap.Edges {
		if !retained[e.Source] || !retained[e.Target] {
			continue
		}
		forward[e.Source] = append(forward[e.Source], e.Target)
		reverse[e.Target] = append(reverse[e.Target], e.Source)
	}
	return forward, reverse
}

// topoSort runs Kahn's algorithm over the retained set, using forward
// to advance in-degree and reverse to compute initial in-degree
// (spec.md §4.4.1 step 7). Ties among ready nodes break by a stable
// insertion order derived by sorting retained node IDs once up front,
// which satisfies spec.md §4.4.1's "any deterministic ordering".
func topoSort(retained map[string]bool, forward, reverse map[string][]string) ([]string, error) {
	ids := make([]string, 0, len(retained))
	for id := range retained {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	inDegree := make(map[string]int, len(retained))
	for _, id := range ids {
		inDegree[id] = len(reverse[id])
	}

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		downstream := append([]string(nil), forward[id]...)
		sort.Strings(downstream)
		for _, next := range downstream {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(retained) {
		return nil, &canvas.PlanError{Code: "CycleDetected", Message: "selection closure contains a cycle", Cause: canvas.ErrCycleDetected}
	}
	return order, nil
}

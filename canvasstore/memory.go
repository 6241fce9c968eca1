package canvasstore

import (
	"context"
	"sync"

	"github.com/flowcanvas/canvasengine/canvas"
)

// MemStore is an in-memory Store implementation.
//
// Designed for:
//   - Unit and integration tests
//   - Local single-process development
//
// Limitations:
//   - Data is lost when the process terminates
//   - Not suitable for multi-process deployments
//
// MemStore is thread-safe: a single RWMutex guards all maps, and
// WithTransaction holds the write lock for the whole callback so the
// atomicity contract holds even though there is no real database
// transaction underneath.
type MemStore struct {
	mu sync.RWMutex

	canvases  map[string]canvas.Canvas
	nodes     map[string]canvas.Node
	handles   map[string]canvas.Handle
	edges     map[string]canvas.Edge
	templates map[canvas.NodeType]canvas.NodeTemplate
	batches   map[string]canvas.TaskBatch
	tasks     map[string]canvas.Task
	assets    map[string]canvas.FileAsset
}

// NewMemStore creates an empty in-memory store seeded with templates.
func NewMemStore(templates map[canvas.NodeType]canvas.NodeTemplate) *MemStore {
	if templates == nil {
		templates = make(map[canvas.NodeType]canvas.NodeTemplate)
	}
	return &MemStore{
		canvases:  make(map[string]canvas.Canvas),
		nodes:     make(map[string]canvas.Node),
		handles:   make(map[string]canvas.Handle),
		edges:     make(map[string]canvas.Edge),
		templates: templates,
		batches:   make(map[string]canvas.TaskBatch),
		tasks:     make(map[string]canvas.Task),
		assets:    make(map[string]canvas.FileAsset),
	}
}

func (m *MemStore) GetCanvas(_ context.Context, canvasID string) (canvas.Canvas, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.canvases[canvasID]
	if !ok {
		return canvas.Canvas{}, ErrNotFound
	}
	return c, nil
}

func (m *MemStore) CreateCanvas(_ context.Context, c canvas.Canvas) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canvases[c.ID] = c
	return nil
}

func (m *MemStore) LoadSnapshot(_ context.Context, canvasID string) (*canvas.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.canvases[canvasID]; !ok {
		return nil, ErrNotFound
	}

	var nodes []canvas.Node
	for _, n := range m.nodes {
		if n.CanvasID == canvasID {
			nodes = append(nodes, n)
		}
	}
	var handles []canvas.Handle
	for _, h := range m.handles {
		if n, ok := m.nodes[h.NodeID]; ok && n.CanvasID == canvasID {
			handles = append(handles, h)
		}
	}
	var edges []canvas.Edge
	for _, e := range m.edges {
		if e.CanvasID == canvasID {
			edges = append(edges, e)
		}
	}
	return canvas.NewSnapshot(canvasID, nodes, handles, edges), nil
}

func (m *MemStore) LoadTemplatesByType(_ context.Context, types []canvas.NodeType) (map[canvas.NodeType]canvas.NodeTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[canvas.NodeType]canvas.NodeTemplate, len(types))
	for _, t := range types {
		if tpl, ok := m.templates[t]; ok {
			out[t] = tpl
		}
	}
	return out, nil
}

func (m *MemStore) LoadNode(_ context.Context, nodeID string) (canvas.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return canvas.Node{}, ErrNotFound
	}
	return n, nil
}

func (m *MemStore) UpdateNodeResult(_ context.Context, nodeID string, result canvas.ResultEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return ErrNotFound
	}
	n.Result = result
	m.nodes[nodeID] = n
	return nil
}

func (m *MemStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx CanvasTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Work on copies so a mid-transaction error leaves the committed
	// maps untouched (spec.md §4.2 step 9: rollback is all-or-nothing).
	tx := &memTx{
		nodes:   cloneMap(m.nodes),
		handles: cloneMap(m.handles),
		edges:   cloneMap(m.edges),
		version: cloneMap(m.canvases),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.nodes = tx.nodes
	m.handles = tx.handles
	m.edges = tx.edges
	m.canvases = tx.version
	return nil
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type memTx struct {
	nodes   map[string]canvas.Node
	handles map[string]canvas.Handle
	edges   map[string]canvas.Edge
	version map[string]canvas.Canvas
}

func (t *memTx) CreateCanvas(_ context.Context, c canvas.Canvas) error {
	t.version[c.ID] = c
	return nil
}

func (t *memTx) SourceSnapshot(_ context.Context, canvasID string) (*canvas.Snapshot, error) {
	var nodes []canvas.Node
	for _, n := range t.nodes {
		if n.CanvasID == canvasID {
			nodes = append(nodes, n)
		}
	}
	var handles []canvas.Handle
	for _, h := range t.handles {
		if n, ok := t.nodes[h.NodeID]; ok && n.CanvasID == canvasID {
			handles = append(handles, h)
		}
	}
	var edges []canvas.Edge
	for _, e := range t.edges {
		if e.CanvasID == canvasID {
			edges = append(edges, e)
		}
	}
	return canvas.NewSnapshot(canvasID, nodes, handles, edges), nil
}

func (t *memTx) ExistingIDs(_ context.Context, canvasID string) (EntityIDSets, error) {
	sets := EntityIDSets{NodeIDs: map[string]bool{}, HandleIDs: map[string]bool{}, EdgeIDs: map[string]bool{}}
	for id, n := range t.nodes {
		if n.CanvasID == canvasID {
			sets.NodeIDs[id] = true
		}
	}
	for id, h := range t.handles {
		if n, ok := t.nodes[h.NodeID]; ok && n.CanvasID == canvasID {
			sets.HandleIDs[id] = true
		}
	}
	for id, e := range t.edges {
		if e.CanvasID == canvasID {
			sets.EdgeIDs[id] = true
		}
	}
	return sets, nil
}

func (t *memTx) DeleteEdges(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.edges, id)
	}
	return nil
}

func (t *memTx) DeleteHandles(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.handles, id)
	}
	return nil
}

func (t *memTx) DeleteNodes(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.nodes, id)
	}
	return nil
}

func (t *memTx) CreateNode(_ context.Context, n canvas.Node) error {
	t.nodes[n.ID] = n
	return nil
}

func (t *memTx) UpdateNode(_ context.Context, n canvas.Node) error {
	t.nodes[n.ID] = n
	return nil
}

func (t *memTx) CreateHandle(_ context.Context, h canvas.Handle) error {
	t.handles[h.ID] = h
	return nil
}

func (t *memTx) UpdateHandle(_ context.Context, h canvas.Handle) error {
	t.handles[h.ID] = h
	return nil
}

func (t *memTx) CreateEdge(_ context.Context, e canvas.Edge) error {
	for _, existing := range t.edges {
		if existing.CanvasID == e.CanvasID && existing.SourceHandleID == e.SourceHandleID && existing.TargetHandleID == e.TargetHandleID {
			return nil // duplicate edge key: skip silently per spec.md §4.2 step 8
		}
	}
	t.edges[e.ID] = e
	return nil
}

func (t *memTx) UpdateEdge(_ context.Context, e canvas.Edge) error {
	t.edges[e.ID] = e
	return nil
}

func (t *memTx) GetNode(_ context.Context, id string) (canvas.Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return canvas.Node{}, ErrNotFound
	}
	return n, nil
}

func (t *memTx) BumpCanvasVersion(_ context.Context, canvasID string) (int, error) {
	c, ok := t.version[canvasID]
	if !ok {
		return 0, ErrNotFound
	}
	c.Version++
	t.version[canvasID] = c
	return c.Version, nil
}

func (m *MemStore) CreateBatch(_ context.Context, batch canvas.TaskBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.ID] = batch
	return nil
}

func (m *MemStore) UpdateBatch(_ context.Context, batch canvas.TaskBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.ID] = batch
	return nil
}

func (m *MemStore) GetBatch(_ context.Context, batchID string) (canvas.TaskBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return canvas.TaskBatch{}, ErrNotFound
	}
	return b, nil
}

func (m *MemStore) CreateTasks(_ context.Context, tasks []canvas.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
	return nil
}

func (m *MemStore) UpdateTask(_ context.Context, task canvas.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *MemStore) GetTask(_ context.Context, taskID string) (canvas.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return canvas.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *MemStore) ListTasks(_ context.Context, batchID string) ([]canvas.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []canvas.Task
	for _, t := range m.tasks {
		if t.BatchID == batchID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) TryStartBatch(_ context.Context, canvasID, batchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.batches {
		if b.CanvasID == canvasID && b.ID != batchID && b.StartedAt != nil && b.FinishedAt == nil {
			return false, nil
		}
	}
	b, ok := m.batches[batchID]
	if !ok {
		return false, ErrNotFound
	}
	now := nowFunc()
	b.StartedAt = &now
	b.PendingJobData = nil
	m.batches[batchID] = b
	return true, nil
}

func (m *MemStore) ListUnfinishedBatches(_ context.Context) ([]canvas.TaskBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []canvas.TaskBatch
	for _, b := range m.batches {
		if b.FinishedAt == nil {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemStore) OldestPendingBatch(_ context.Context, canvasID string) (*canvas.TaskBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *canvas.TaskBatch
	for _, b := range m.batches {
		b := b
		if b.CanvasID != canvasID || b.PendingJobData == nil {
			continue
		}
		if best == nil || b.CreatedAt.Before(best.CreatedAt) {
			best = &b
		}
	}
	return best, nil
}

func (m *MemStore) CreateFileAsset(_ context.Context, asset canvas.FileAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset.ID] = asset
	return nil
}

func (m *MemStore) GetFileAsset(_ context.Context, assetID string) (canvas.FileAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[assetID]
	if !ok {
		return canvas.FileAsset{}, ErrNotFound
	}
	return a, nil
}

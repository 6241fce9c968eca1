// Package canvasstore defines the persistence boundary used by the
// canvas mutation, cloning, execution, and resolution engines, and
// ships in-memory, SQLite, and MySQL implementations of it over the
// relational Canvas/Node/Handle/Edge/TaskBatch/Task/FileAsset schema
// of spec.md §6.
package canvasstore

import (
	"context"
	"errors"

	"github.com/flowcanvas/canvasengine/canvas"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// EntityIDSets is the snapshot of existing IDs on a canvas, used by
// the Canvas Mutation Engine to classify submitted patch entities as
// create vs update and to compute implicit deletions.
type EntityIDSets struct {
	NodeIDs   map[string]bool
	HandleIDs map[string]bool
	EdgeIDs   map[string]bool
}

// Store is the persistence boundary. Implementations must make
// WithTransaction atomic: either every CanvasTx call inside fn is
// durably committed, or none are (spec.md §4.2 step 9).
type Store interface {
	GetCanvas(ctx context.Context, canvasID string) (canvas.Canvas, error)
	CreateCanvas(ctx context.Context, c canvas.Canvas) error
	LoadSnapshot(ctx context.Context, canvasID string) (*canvas.Snapshot, error)
	LoadTemplatesByType(ctx context.Context, types []canvas.NodeType) (map[canvas.NodeType]canvas.NodeTemplate, error)
	LoadNode(ctx context.Context, nodeID string) (canvas.Node, error)
	UpdateNodeResult(ctx context.Context, nodeID string, result canvas.ResultEnvelope) error

	// WithTransaction runs fn atomically. Implementations commit only
	// if fn returns nil, and roll back (leaving no partial writes
	// visible) otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx CanvasTx) error) error

	CreateBatch(ctx context.Context, batch canvas.TaskBatch) error
	UpdateBatch(ctx context.Context, batch canvas.TaskBatch) error
	GetBatch(ctx context.Context, batchID string) (canvas.TaskBatch, error)
	CreateTasks(ctx context.Context, tasks []canvas.Task) error
	UpdateTask(ctx context.Context, task canvas.Task) error
	GetTask(ctx context.Context, taskID string) (canvas.Task, error)
	ListTasks(ctx context.Context, batchID string) ([]canvas.Task, error)

	// TryStartBatch atomically sets batchID.StartedAt iff no other
	// batch on canvasID currently has StartedAt != nil && FinishedAt
	// == nil, per the exclusivity invariant of spec.md §3/§5.
	// Returns false, nil if another batch is active.
	TryStartBatch(ctx context.Context, canvasID, batchID string) (bool, error)

	// OldestPendingBatch returns the oldest batch on canvasID with a
	// non-nil PendingJobData, or nil if none, for the handoff in
	// spec.md §4.4.5.
	OldestPendingBatch(ctx context.Context, canvasID string) (*canvas.TaskBatch, error)

	// ListUnfinishedBatches returns every batch with FinishedAt == nil,
	// across all canvases, for the crash-recovery reconciler of
	// spec.md §4.4.6 to scan for batches whose tasks have all reached
	// a terminal status but which were never finalized.
	ListUnfinishedBatches(ctx context.Context) ([]canvas.TaskBatch, error)

	CreateFileAsset(ctx context.Context, asset canvas.FileAsset) error
	GetFileAsset(ctx context.Context, assetID string) (canvas.FileAsset, error)
}

// CanvasTx is the set of entity-level writes available inside a
// Store.WithTransaction callback. Processing order within a commit
// (spec.md §4.2 step 8) is the caller's responsibility, not the
// transaction's: CanvasTx only guarantees each individual call is
// part of the same atomic unit of work.
type CanvasTx interface {
	ExistingIDs(ctx context.Context, canvasID string) (EntityIDSets, error)

	// CreateCanvas creates a new canvas row as part of the enclosing
	// transaction, used by the Canvas Cloner (spec.md §4.3 step 2) so
	// the new canvas and its copied entities commit atomically.
	CreateCanvas(ctx context.Context, c canvas.Canvas) error

	// SourceSnapshot loads every node, handle, and edge on canvasID as
	// of the start of the enclosing transaction, for the Canvas Cloner
	// to copy from.
	SourceSnapshot(ctx context.Context, canvasID string) (*canvas.Snapshot, error)

	DeleteEdges(ctx context.Context, ids []string) error
	DeleteHandles(ctx context.Context, ids []string) error
	DeleteNodes(ctx context.Context, ids []string) error

	CreateNode(ctx context.Context, n canvas.Node) error
	UpdateNode(ctx context.Context, n canvas.Node) error
	CreateHandle(ctx context.Context, h canvas.Handle) error
	UpdateHandle(ctx context.Context, h canvas.Handle) error

	// CreateEdge silently skips an edge whose (source handle, target
	// handle) pair already exists on the canvas (spec.md §4.2 step 8:
	// "skip duplicate edge keys").
	CreateEdge(ctx context.Context, e canvas.Edge) error
	UpdateEdge(ctx context.Context, e canvas.Edge) error

	GetNode(ctx context.Context, id string) (canvas.Node, error)

	// BumpCanvasVersion increments and returns the canvas's version.
	BumpCanvasVersion(ctx context.Context, canvasID string) (int, error)
}

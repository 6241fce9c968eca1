// Package canvas defines the core data model shared by the canvas
// mutation, cloning, and execution engines: canvases, nodes, handles,
// edges, node templates, task batches, tasks, and the result envelope
// every node's output conforms to.
package canvas

import "time"

// DataType is a closed set of handle/item payload kinds.
type DataType string

const (
	DataTypeText    DataType = "text"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeImage   DataType = "image"
	DataTypeMask    DataType = "mask"
	DataTypeVideo   DataType = "video"
	DataTypeAudio   DataType = "audio"
	DataTypeFile    DataType = "file"
	DataTypeLottie  DataType = "lottie"
)

// NodeType is a closed set of processor tags. The engine treats a
// node's Type only as a lookup key into the NodeTemplate registry and
// the Processor registry; it never branches on it directly.
type NodeType string

const (
	NodeTypeText        NodeType = "text"
	NodeTypeFile        NodeType = "file"
	NodeTypeLLM         NodeType = "llm"
	NodeTypeImageGen    NodeType = "image_gen"
	NodeTypeCompositor  NodeType = "compositor"
	NodeTypeVideoComp   NodeType = "video_compositor"
	NodeTypePaint       NodeType = "paint"
	NodeTypePreview     NodeType = "preview"
	NodeTypeExport      NodeType = "export"
)

// HandleDirection is Input or Output.
type HandleDirection string

const (
	HandleInput  HandleDirection = "input"
	HandleOutput HandleDirection = "output"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "QUEUED"
	TaskExecuting TaskStatus = "EXECUTING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// Canvas is a top-level container owning nodes, handles, and edges.
type Canvas struct {
	ID               string
	Owner            string
	OriginalCanvasID string // set when cloned
	IsAPICanvas      bool   // cloned for a one-shot API run
	Version          int
}

// Position is a node's location on the canvas.
type Position struct {
	X float64
	Y float64
}

// Node is a processing unit on a canvas.
type Node struct {
	ID             string
	CanvasID       string
	Type           NodeType
	Name           string
	Position       Position
	Width          float64
	Height         float64
	TemplateID     string
	Config         RawJSON
	Result         ResultEnvelope
	OriginalNodeID string // set when cloned: points to the source-canvas node
}

// Handle is a typed port on a node.
type Handle struct {
	ID              string
	NodeID          string
	Type            HandleDirection
	DataTypes       []DataType
	Label           string
	Required        bool // Input only
	Order           int
	TemplateHandleID string
}

// HasDataType reports whether dt is among the handle's accepted types.
func (h Handle) HasDataType(dt DataType) bool {
	for _, d := range h.DataTypes {
		if d == dt {
			return true
		}
	}
	return false
}

// Edge is a directed connection between an output handle and an
// input handle.
type Edge struct {
	ID             string
	CanvasID       string
	Source         string // source nodeID
	Target         string // target nodeID
	SourceHandleID string
	TargetHandleID string
}

// NodeTemplate is static metadata for a node type. The engine only
// consults IsTerminalNode and IsTransient; the rest exists for
// completeness of the model and for processors/clients.
type NodeTemplate struct {
	Type            NodeType
	DisplayName     string
	VariableInputs  bool
	VariableOutputs bool
	IsTerminalNode  bool
	IsTransient     bool
}

// TaskBatch is a single run of (part of) a canvas.
type TaskBatch struct {
	ID             string
	CanvasID       string
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	PendingJobData *DispatchEnvelope
}

// TaskError is the structured failure recorded on a Task.
type TaskError struct {
	Message string `json:"message"`
}

// Task is one node-execution unit within a batch.
type Task struct {
	ID         string
	BatchID    string
	NodeID     string
	Name       string
	Status     TaskStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
	DurationMs int64
	Error      *TaskError
}

// DispatchEnvelope is the payload handed to the workflow queue, and
// the shape persisted onto TaskBatch.PendingJobData while a batch
// waits behind another batch on the same canvas.
type DispatchEnvelope struct {
	BatchID       string          `json:"batchId"`
	CanvasID      string          `json:"canvasId"`
	TaskSequence  []string        `json:"taskSequence"`
	SelectionMap  map[string]bool `json:"selectionMap"`
	APIKey        string          `json:"apiKey,omitempty"`
}

// FileAsset is a persisted, storage-backed binary asset. Not detailed
// by spec.md beyond its presence in the table list; its shape mirrors
// FileReference.
type FileAsset struct {
	ID        string
	Key       string
	Bucket    string
	MimeType  string
	Width     int
	Height    int
	Duration  float64
}

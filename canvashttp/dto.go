package canvashttp

import (
	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/batch"
	"github.com/flowcanvas/canvasengine/canvas/mutate"
	"github.com/flowcanvas/canvasengine/canvasrun"
)

// patchRequest is the wire shape of a POST /canvas/{id}/patch body
// (spec.md §4.2, §6).
type patchRequest struct {
	Nodes   []nodePatchDTO   `json:"nodes"`
	Handles []handlePatchDTO `json:"handles"`
	Edges   []edgePatchDTO   `json:"edges"`
}

type nodePatchDTO struct {
	ID         string               `json:"id"`
	Type       canvas.NodeType      `json:"type"`
	Name       string               `json:"name"`
	Position   canvas.Position      `json:"position"`
	Width      float64              `json:"width"`
	Height     float64              `json:"height"`
	TemplateID string               `json:"templateId"`
	Config     canvas.RawJSON       `json:"config"`
	Result     *canvas.ResultEnvelope `json:"result,omitempty"`
}

type handlePatchDTO struct {
	ID               string                `json:"id"`
	NodeID           string                `json:"nodeId"`
	Type             canvas.HandleDirection `json:"type"`
	DataTypes        []canvas.DataType     `json:"dataTypes"`
	Label            string                `json:"label"`
	Required         bool                  `json:"required"`
	Order            int                   `json:"order"`
	TemplateHandleID string                `json:"templateHandleId"`
}

type edgePatchDTO struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Target         string `json:"target"`
	SourceHandleID string `json:"sourceHandleId"`
	TargetHandleID string `json:"targetHandleId"`
}

func (p patchRequest) toPatch() mutate.Patch {
	nodes := make([]mutate.NodePatch, len(p.Nodes))
	for i, n := range p.Nodes {
		nodes[i] = mutate.NodePatch{
			ID:         n.ID,
			Type:       n.Type,
			Name:       n.Name,
			Position:   n.Position,
			Width:      n.Width,
			Height:     n.Height,
			TemplateID: n.TemplateID,
			Config:     n.Config,
			Result:     n.Result,
		}
	}
	handles := make([]mutate.HandlePatch, len(p.Handles))
	for i, h := range p.Handles {
		handles[i] = mutate.HandlePatch{
			ID:               h.ID,
			NodeID:           h.NodeID,
			Type:             h.Type,
			DataTypes:        h.DataTypes,
			Label:            h.Label,
			Required:         h.Required,
			Order:            h.Order,
			TemplateHandleID: h.TemplateHandleID,
		}
	}
	edges := make([]mutate.EdgePatch, len(p.Edges))
	for i, e := range p.Edges {
		edges[i] = mutate.EdgePatch{
			ID:             e.ID,
			Source:         e.Source,
			Target:         e.Target,
			SourceHandleID: e.SourceHandleID,
			TargetHandleID: e.TargetHandleID,
		}
	}
	return mutate.Patch{Nodes: nodes, Handles: handles, Edges: edges}
}

// patchResponse is the wire shape of a successful patch application.
type patchResponse struct {
	Version int                 `json:"version"`
	Mapping mutate.IDMapping    `json:"mapping"`
}

// duplicateRequest is the wire shape of a POST /canvas/{id}/duplicate body.
type duplicateRequest struct {
	IsAPICanvas bool `json:"isAPICanvas"`
	KeepResults bool `json:"keepResults"`
}

type duplicateResponse struct {
	CanvasID string `json:"canvasId"`
}

// runRequest is the wire shape of a POST /api/v1/run body (spec.md §6).
type runRequest struct {
	CanvasID  string            `json:"canvasId"`
	Payload   canvasrun.Payload `json:"payload,omitempty"`
	Duplicate *bool             `json:"duplicate,omitempty"`
	NodeIDs   []string          `json:"nodeIds,omitempty"`
	APIKey    string            `json:"apiKey,omitempty"`
}

func (r runRequest) duplicateCanvas() bool {
	if r.Duplicate == nil {
		return true
	}
	return *r.Duplicate
}

// runResponse is the shared response schema for POST /api/v1/run and
// GET /api/v1/run/{batchId}/status (spec.md §6: "same response schema").
type runResponse struct {
	BatchHandleID string                          `json:"batchHandleId"`
	Success       bool                            `json:"success"`
	Error         string                           `json:"error,omitempty"`
	Result        map[string]batch.ResolvedOutput `json:"result,omitempty"`
}

package canvasemit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes events as structured log lines, in text or JSONL
// form depending on jsonMode.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter builds a LogEmitter writing to writer (os.Stdout if
// nil) in text or JSON mode.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(_ context.Context, event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		CanvasID string         `json:"canvasId"`
		BatchID  string         `json:"batchId,omitempty"`
		TaskID   string         `json:"taskId,omitempty"`
		NodeID   string         `json:"nodeId,omitempty"`
		Kind     Kind           `json:"kind"`
		Message  string         `json:"message"`
		Fields   map[string]any `json:"fields,omitempty"`
	}{event.CanvasID, event.BatchID, event.TaskID, event.NodeID, event.Kind, event.Message, event.Fields})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"kind\":\"error\",\"message\":\"emit marshal failed: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] canvasId=%s", event.Kind, event.CanvasID)
	if event.BatchID != "" {
		fmt.Fprintf(l.writer, " batchId=%s", event.BatchID)
	}
	if event.NodeID != "" {
		fmt.Fprintf(l.writer, " nodeId=%s", event.NodeID)
	}
	fmt.Fprintf(l.writer, " msg=%q", event.Message)
	if len(event.Fields) > 0 {
		if fieldsJSON, err := json.Marshal(event.Fields); err == nil {
			fmt.Fprintf(l.writer, " fields=%s", fieldsJSON)
		}
	}
	fmt.Fprint(l.writer, "\n")
}

func (l *LogEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		l.Emit(ctx, event)
	}
	return nil
}

func (l *LogEmitter) Flush(context.Context) error { return nil }

package canvas

import "errors"

// Sentinel errors for the taxonomy in spec.md §7. Call sites should
// wrap these with errors.Is-compatible structured types (below) rather
// than returning the sentinel bare, except where no extra context
// applies.
var (
	// ErrCanvasNotFound is returned when a patch or run targets an
	// unknown canvas.
	ErrCanvasNotFound = errors.New("canvas not found")

	// ErrInvalidPatch indicates a schema violation on a submitted
	// bulk patch.
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrCycleDetected indicates the retained-subgraph topological
	// sort failed: the selection closure contains a cycle.
	ErrCycleDetected = errors.New("cycle detected in selection closure")

	// ErrInconsistentCanvas indicates a necessary node could not be
	// loaded, or an edge references an unknown handle after mapping.
	ErrInconsistentCanvas = errors.New("inconsistent canvas")

	// ErrMissingRequiredInput indicates a required input handle has
	// no connected, resolved upstream value.
	ErrMissingRequiredInput = errors.New("missing required input")

	// ErrNoProcessor indicates no processor is registered for a node type.
	ErrNoProcessor = errors.New("no processor registered for type")
)

// InvariantError reports a violation of a data-model invariant from
// spec.md §3 (e.g. a malformed ResultEnvelope). It is distinct from
// the request-level error taxonomy: it indicates a bug in code that
// produced the value, not a client or runtime failure.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Message
}

// ClientError wraps ErrInvalidPatch/ErrCanvasNotFound-class failures
// with the detail a caller needs to build an HTTP 4xx response.
type ClientError struct {
	Code    string // e.g. "CanvasNotFound", "InvalidPatch"
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *ClientError) Unwrap() error { return e.Cause }

// PlanError wraps ErrCycleDetected/ErrInconsistentCanvas failures
// from ProcessNodes. No batch is created when a PlanError is returned.
type PlanError struct {
	Code    string // "CycleDetected" or "InconsistentCanvas"
	Message string
	Cause   error
}

func (e *PlanError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *PlanError) Unwrap() error { return e.Cause }

package canvas

// DefaultTemplates returns the NodeTemplate set for the node types
// spec.md §2 names as the closed set (Text, File, LLM, ImageGen,
// Compositor, VideoComp, Paint, Preview, Export). A deployment with
// custom node types loads its own map instead; this is the starting
// point `canvasengine-server` runs with out of the box.
//
// File and Export are terminal: they are run endpoints that must not
// re-execute as an unselected upstream (§4.4's terminal-skip rule).
// Preview is transient: its result is a UI-only render, never
// persisted back onto the node row (§4.4's transient-result rule).
func DefaultTemplates() map[NodeType]NodeTemplate {
	return map[NodeType]NodeTemplate{
		NodeTypeText: {
			Type: NodeTypeText, DisplayName: "Text",
		},
		NodeTypeFile: {
			Type: NodeTypeFile, DisplayName: "File", IsTerminalNode: true,
		},
		NodeTypeLLM: {
			Type: NodeTypeLLM, DisplayName: "LLM", VariableInputs: true,
		},
		NodeTypeImageGen: {
			Type: NodeTypeImageGen, DisplayName: "Image Generation", VariableInputs: true,
		},
		NodeTypeCompositor: {
			Type: NodeTypeCompositor, DisplayName: "Compositor", VariableInputs: true,
		},
		NodeTypeVideoComp: {
			Type: NodeTypeVideoComp, DisplayName: "Video Compositor", VariableInputs: true,
		},
		NodeTypePaint: {
			Type: NodeTypePaint, DisplayName: "Paint",
		},
		NodeTypePreview: {
			Type: NodeTypePreview, DisplayName: "Preview", VariableInputs: true, IsTransient: true,
		},
		NodeTypeExport: {
			Type: NodeTypeExport, DisplayName: "Export", VariableInputs: true, IsTerminalNode: true,
		},
	}
}

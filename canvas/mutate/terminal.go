package mutate

import "github.com/flowcanvas/canvasengine/canvas"

// resolveResult implements the terminal-result rule (spec.md §4.2
// step 7): a terminal node being updated must not have its historical
// outputs overwritten by the patch — only SelectedOutputIndex moves.
// Non-terminal updates and all creates take the patch's Result
// verbatim (a nil patch Result on an update leaves the persisted
// result untouched).
func resolveResult(isCreate, isTerminal bool, existing canvas.ResultEnvelope, patchResult *canvas.ResultEnvelope) canvas.ResultEnvelope {
	if patchResult == nil {
		if isCreate {
			return canvas.ResultEnvelope{}
		}
		return existing
	}

	if isCreate || !isTerminal {
		return *patchResult
	}

	preserved := existing
	preserved.SelectedOutputIndex = patchResult.SelectedOutputIndex
	if err := preserved.Validate(); err != nil {
		preserved.SelectedOutputIndex = 0
	}
	return preserved
}

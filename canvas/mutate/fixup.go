package mutate

import (
	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// fixupNodeConfig rewrites handle-ID references embedded inside a
// node's opaque Config after ID remapping (spec.md §4.2 step 6).
// Compositor and VideoCompositor configs key config.layerUpdates by
// input-handle ID; every other node type's config is returned
// unchanged, since the engine has no general way to know which of its
// fields (if any) are handle references.
func fixupNodeConfig(nodeType canvas.NodeType, config canvas.RawJSON, handleMapping map[string]string) canvas.RawJSON {
	if len(config) == 0 {
		return config
	}
	if nodeType != canvas.NodeTypeCompositor && nodeType != canvas.NodeTypeVideoComp {
		return config
	}

	layerUpdates := gjson.GetBytes(config, "layerUpdates")
	if !layerUpdates.Exists() || !layerUpdates.IsObject() {
		return config
	}

	renames := map[string]string{}
	layerUpdates.ForEach(func(key, _ gjson.Result) bool {
		oldKey := key.String()
		if newKey, ok := handleMapping[oldKey]; ok && newKey != oldKey {
			renames[oldKey] = newKey
		}
		return true
	})
	if len(renames) == 0 {
		return config
	}

	result := string(config)
	for oldKey, newKey := range renames {
		oldVal := gjson.Get(result, "layerUpdates."+gjsonPathEscape(oldKey))
		if !oldVal.Exists() {
			continue
		}
		updated, err := sjson.SetRaw(result, "layerUpdates."+gjsonPathEscape(newKey), oldVal.Raw)
		if err != nil {
			return config
		}
		updated, err = sjson.Delete(updated, "layerUpdates."+gjsonPathEscape(oldKey))
		if err != nil {
			return config
		}
		result = updated
	}
	return canvas.RawJSON(result)
}

// gjsonPathEscape escapes the path metacharacters gjson/sjson treat
// specially. Handle IDs are UUIDs or temp-<n> strings and never
// contain these, but escaping defensively costs nothing.
func gjsonPathEscape(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}

// fixupResultHandles rewrites every item's OutputHandleID in place
// using handleMapping. Used when a patch submits a node Result that
// references temp- handle IDs allocated in the same patch.
func fixupResultHandles(result *canvas.ResultEnvelope, handleMapping map[string]string) {
	if result == nil {
		return
	}
	for oi := range result.Outputs {
		items := result.Outputs[oi].Items
		for ii := range items {
			if real, ok := handleMapping[items[ii].OutputHandleID]; ok {
				items[ii].OutputHandleID = real
			}
		}
	}
}

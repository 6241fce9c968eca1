package clone

import (
	"strconv"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// rewriteConfig rewrites handle-ID references embedded in a cloned
// node's Config: Compositor/VideoCompositor layerUpdates keys, and any
// inline inputHandleId fields nested within it (spec.md §4.3 step 4).
// Every other node type's config copies verbatim, since the engine has
// no general way to know which fields (if any) are handle references.
func rewriteConfig(nodeType canvas.NodeType, config canvas.RawJSON, handleMapping map[string]string) canvas.RawJSON {
	if len(config) == 0 {
		return config
	}
	if nodeType != canvas.NodeTypeCompositor && nodeType != canvas.NodeTypeVideoComp {
		return config
	}

	result := string(config)

	if layerUpdates := gjson.Get(result, "layerUpdates"); layerUpdates.Exists() && layerUpdates.IsObject() {
		renames := map[string]string{}
		layerUpdates.ForEach(func(key, _ gjson.Result) bool {
			oldKey := key.String()
			if newKey, ok := handleMapping[oldKey]; ok {
				renames[oldKey] = newKey
			}
			return true
		})
		for oldKey, newKey := range renames {
			oldVal := gjson.Get(result, "layerUpdates."+oldKey)
			if !oldVal.Exists() {
				continue
			}
			updated, err := sjson.SetRaw(result, "layerUpdates."+newKey, oldVal.Raw)
			if err != nil {
				return config
			}
			updated, err = sjson.Delete(updated, "layerUpdates."+oldKey)
			if err != nil {
				return config
			}
			result = updated
		}
	}

	result = rewriteInputHandleIDFields(result, handleMapping)

	return canvas.RawJSON(result)
}

// rewriteInputHandleIDFields walks every occurrence of an
// "inputHandleId" field anywhere in the JSON document and rewrites its
// value through handleMapping, leaving unmapped values untouched.
func rewriteInputHandleIDFields(doc string, handleMapping map[string]string) string {
	paths := collectInputHandleIDPaths(gjson.Parse(doc), "")
	for _, path := range paths {
		old := gjson.Get(doc, path).String()
		newID, ok := handleMapping[old]
		if !ok {
			continue
		}
		updated, err := sjson.Set(doc, path, newID)
		if err != nil {
			continue
		}
		doc = updated
	}
	return doc
}

// collectInputHandleIDPaths recursively finds every gjson path
// ending in "inputHandleId" within value.
func collectInputHandleIDPaths(value gjson.Result, prefix string) []string {
	var paths []string
	switch {
	case value.IsObject():
		value.ForEach(func(key, v gjson.Result) bool {
			childPath := key.String()
			if prefix != "" {
				childPath = prefix + "." + childPath
			}
			if key.String() == "inputHandleId" && v.Type == gjson.String {
				paths = append(paths, childPath)
			} else {
				paths = append(paths, collectInputHandleIDPaths(v, childPath)...)
			}
			return true
		})
	case value.IsArray():
		i := 0
		value.ForEach(func(_, v gjson.Result) bool {
			childPath := strconv.Itoa(i)
			if prefix != "" {
				childPath = prefix + "." + childPath
			}
			paths = append(paths, collectInputHandleIDPaths(v, childPath)...)
			i++
			return true
		})
	}
	return paths
}

// rewriteResultHandles rewrites every item's OutputHandleID in place
// using handleMapping, used when KeepResults carries a node's result
// into the clone.
func rewriteResultHandles(result *canvas.ResultEnvelope, handleMapping map[string]string) {
	for oi := range result.Outputs {
		items := result.Outputs[oi].Items
		for ii := range items {
			if real, ok := handleMapping[items[ii].OutputHandleID]; ok {
				items[ii].OutputHandleID = real
			}
		}
	}
}

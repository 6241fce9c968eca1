// Package canvasrun implements the run-payload resolution step of
// spec.md §6 ("Run payload shape"): between the Canvas Cloner handing
// back a freshly-duplicated canvas and the Workflow Processor planning
// a run against it, each payload entry supplied with the run request
// is written into its matching node so the run observes it as input.
// Grounded on canvas/mutate's fixup passes for the gjson/sjson idiom
// used to edit a node's opaque Config in place.
package canvasrun

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// AssetStore persists raw bytes as a new storage-backed asset. It is
// the write-side counterpart to resolver.MediaStore's read-only
// FetchAsset, kept as its own narrow interface for the same reason:
// object storage is out of this core's scope (spec.md §1).
type AssetStore interface {
	PutAsset(ctx context.Context, data []byte, mimeType string) (canvas.FileAsset, error)
}

// URLFetcher retrieves bytes from a client-supplied URL, for the "url"
// payload variant.
type URLFetcher interface {
	FetchURL(ctx context.Context, url string) ([]byte, error)
}

// Payload is the decoded `payload` field of a run request: a map
// keyed by originalNodeId to one of the four variants spec.md §6
// describes, left as json.RawMessage until decodeVariant classifies
// the shape.
type Payload map[string]json.RawMessage

// ResolvePayload implements spec.md §6's "Run payload shape" step. For
// every payload entry, it finds the node on canvasID — by
// idMapping[originalNodeID] if the run duplicated the canvas, else by
// originalNodeID directly — then, for a Text node, writes the
// resolved string into config.content, and for a File node, resolves
// the entry to a FileReference (uploading new bytes through assets,
// fetching remote bytes through urls, or pointing at an existing
// asset) and writes it into the node's result as its sole output.
// assets and urls may be nil if payload contains no variant that needs
// them; ResolvePayload returns a ClientError for the "unsupported
// payload variant" case spec.md §7 names (node type neither Text nor
// File) rather than silently dropping the entry.
func ResolvePayload(ctx context.Context, store canvasstore.Store, assets AssetStore, urls URLFetcher, canvasID string, idMapping map[string]string, payload Payload) error {
	if len(payload) == 0 {
		return nil
	}

	return store.WithTransaction(ctx, func(ctx context.Context, tx canvasstore.CanvasTx) error {
		for originalNodeID, raw := range payload {
			nodeID := originalNodeID
			if mapped, ok := idMapping[originalNodeID]; ok {
				nodeID = mapped
			}

			node, err := tx.GetNode(ctx, nodeID)
			if err != nil {
				return &canvas.ClientError{Code: "UnknownRunPayloadNode", Message: originalNodeID, Cause: err}
			}

			switch node.Type {
			case canvas.NodeTypeText:
				content, err := decodeTextVariant(raw)
				if err != nil {
					return &canvas.ClientError{Code: "UnsupportedPayloadVariant", Message: fmt.Sprintf("node %s: %v", originalNodeID, err)}
				}
				config, err := sjson.SetBytes(node.Config, "content", content)
				if err != nil {
					return fmt.Errorf("set config.content for node %s: %w", nodeID, err)
				}
				node.Config = canvas.RawJSON(config)
				if err := tx.UpdateNode(ctx, node); err != nil {
					return fmt.Errorf("persist text payload for node %s: %w", nodeID, err)
				}

			case canvas.NodeTypeFile:
				ref, err := resolveFileVariant(ctx, store, assets, urls, raw)
				if err != nil {
					return &canvas.ClientError{Code: "UnsupportedPayloadVariant", Message: fmt.Sprintf("node %s: %v", originalNodeID, err), Cause: err}
				}
				data, err := json.Marshal(ref)
				if err != nil {
					return fmt.Errorf("encode file reference for node %s: %w", nodeID, err)
				}
				node.Result = canvas.ResultEnvelope{
					Outputs:             []canvas.Output{{Items: []canvas.Item{{Type: canvas.DataTypeFile, Data: data}}}},
					SelectedOutputIndex: 0,
				}
				if err := tx.UpdateNode(ctx, node); err != nil {
					return fmt.Errorf("persist file payload for node %s: %w", nodeID, err)
				}

			default:
				return &canvas.ClientError{Code: "UnsupportedPayloadVariant", Message: fmt.Sprintf("node %s has type %s, run payload only targets text/file nodes", originalNodeID, node.Type)}
			}
		}
		return nil
	})
}

// fileVariant matches the object case of a payload entry, for both
// Text and File nodes. The legacy plain-string case is handled
// separately by the caller checking for a bare JSON string before
// attempting this shape.
type fileVariant struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	AssetID  string `json:"assetId,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// decodeTextVariant accepts either a bare JSON string (the common
// case for a Text node: `"hello"`) or a one-field object
// `{"type":"base64","data":...}` decoded to a UTF-8 string, matching
// spec.md §6's "legacy: treated as ... raw text" fallback.
func decodeTextVariant(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v fileVariant
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("payload entry is neither a string nor a recognized object: %w", err)
	}
	if v.Type != "base64" || v.Data == "" {
		return "", fmt.Errorf("text node payload must be a string or a base64 variant, got type %q", v.Type)
	}
	decoded, err := base64.StdEncoding.DecodeString(v.Data)
	if err != nil {
		return "", fmt.Errorf("decode base64 text payload: %w", err)
	}
	return string(decoded), nil
}

// resolveFileVariant decodes raw into bytes and a MIME type (except
// for the assetId variant, which needs neither) and turns the result
// into a FileReference, per spec.md §6's four payload shapes.
func resolveFileVariant(ctx context.Context, store canvasstore.Store, assets AssetStore, urls URLFetcher, raw json.RawMessage) (canvas.FileReference, error) {
	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		data, mimeType, err := decodeDataURIOrBase64(legacy)
		if err != nil {
			return canvas.FileReference{}, err
		}
		return uploadAsset(ctx, assets, data, mimeType)
	}

	var v fileVariant
	if err := json.Unmarshal(raw, &v); err != nil {
		return canvas.FileReference{}, fmt.Errorf("payload entry is neither a string nor a recognized object: %w", err)
	}

	switch v.Type {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(v.Data)
		if err != nil {
			return canvas.FileReference{}, fmt.Errorf("decode base64 file payload: %w", err)
		}
		return uploadAsset(ctx, assets, data, v.MimeType)

	case "url":
		if urls == nil {
			return canvas.FileReference{}, fmt.Errorf("url payload variant requires a URLFetcher")
		}
		data, err := urls.FetchURL(ctx, v.URL)
		if err != nil {
			return canvas.FileReference{}, fmt.Errorf("fetch payload url: %w", err)
		}
		return uploadAsset(ctx, assets, data, v.MimeType)

	case "assetId":
		asset, err := store.GetFileAsset(ctx, v.AssetID)
		if err != nil {
			return canvas.FileReference{}, fmt.Errorf("load referenced asset %s: %w", v.AssetID, err)
		}
		return assetToReference(asset), nil

	default:
		return canvas.FileReference{}, fmt.Errorf("unrecognized file payload type %q", v.Type)
	}
}

func uploadAsset(ctx context.Context, assets AssetStore, data []byte, mimeType string) (canvas.FileReference, error) {
	if assets == nil {
		return canvas.FileReference{}, fmt.Errorf("inline file payload requires an AssetStore")
	}
	asset, err := assets.PutAsset(ctx, data, mimeType)
	if err != nil {
		return canvas.FileReference{}, fmt.Errorf("store uploaded asset: %w", err)
	}
	return assetToReference(asset), nil
}

func assetToReference(asset canvas.FileAsset) canvas.FileReference {
	return canvas.FileReference{
		ID:       asset.ID,
		Key:      asset.Key,
		Bucket:   asset.Bucket,
		MimeType: asset.MimeType,
		Width:    asset.Width,
		Height:   asset.Height,
		Duration: asset.Duration,
	}
}

// decodeDataURIOrBase64 accepts either a full "data:<mime>;base64,<b>"
// URI or a bare base64 string, matching spec.md §6's legacy fallback
// for a File node ("treated as a base64 data URI or raw text").
func decodeDataURIOrBase64(s string) (data []byte, mimeType string, err error) {
	if strings.HasPrefix(s, "data:") {
		rest := strings.TrimPrefix(s, "data:")
		parts := strings.SplitN(rest, ",", 2)
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		meta, encoded := parts[0], parts[1]
		mimeType = strings.TrimSuffix(meta, ";base64")
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("decode data URI payload: %w", err)
		}
		return decoded, mimeType, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode legacy base64 file payload: %w", err)
	}
	return decoded, "", nil
}

package resolver

import "encoding/json"

// unmarshalInto decodes raw (an Item.Data payload) into v. It exists
// so LoadMediaBuffer can probe an item's shape (is it a
// FileReference? a ProcessData? a bare primitive?) without repeating
// error handling at each call site.
func unmarshalInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(raw, v)
}

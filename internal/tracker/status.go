package tracker

import (
	"encoding/json"
)

// EpicEarlyAccess reports whether a stored legendary payload marks the
// title as early access via its custom attributes.
func EpicEarlyAccess(extra json.RawMessage) bool {
	if len(extra) == 0 {
		return false
	}
	var payload struct {
		Metadata struct {
			CustomAttributes map[string]struct {
				Value string `json:"value"`
			} `json:"customAttributes"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(extra, &payload); err != nil {
		return false
	}
	attr, ok := payload.Metadata.CustomAttributes["EarlyAccess"]
	return ok && attr.Value == "true"
}

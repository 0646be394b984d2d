package convert

import (
	"encoding/json"
	"fmt"
)

// Notification is one diagnostic the engine emitted while converting.
// Fields other than severity and message are kept in Context.
type Notification struct {
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
}

// UnmarshalJSON accepts flat engine records: "severity" and the first
// non-empty of "message", "text", "title" are lifted out and every other key
// lands in Context.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("notification must be an object")
	}

	var out Notification
	out.Severity = takeString(raw, "severity")
	for _, key := range []string{"message", "text", "title"} {
		if msg, ok := raw[key].(string); ok && msg != "" {
			out.Message = msg
			delete(raw, key)
			break
		}
	}
	if nested, ok := raw["context"].(map[string]any); ok {
		delete(raw, "context")
		for k, v := range nested {
			if _, clash := raw[k]; !clash {
				raw[k] = v
			}
		}
	}
	if len(raw) > 0 {
		out.Context = raw
	}
	*n = out
	return nil
}

func takeString(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	delete(raw, key)
	return s
}

// ParseNotifications decodes a notifications file. Empty input yields none.
func ParseNotifications(data []byte) ([]Notification, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []Notification
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return out, nil
}

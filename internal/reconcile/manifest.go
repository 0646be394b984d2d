package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Manifest is the completion record published last into a unit's mirror.
// Its presence with a sufficient version and limit means the unit needs no
// reprocessing.
type Manifest struct {
	ToolVersion        string        `json:"tool_version"`
	ParameterSignature string        `json:"parameter_signature"`
	SessionLimit       *int          `json:"session_limit"`
	SessionsConverted  int           `json:"sessions_converted"`
	TotalSessions      TotalSessions `json:"total_sessions"`
}

// TotalSessions is the converter's view of how many sessions the unit has.
// It is a count when known and a free-form label (such as "unknown") otherwise.
type TotalSessions struct {
	Count int
	Label string
}

// KnownTotal returns a TotalSessions holding a count.
func KnownTotal(n int) TotalSessions { return TotalSessions{Count: n} }

// UnknownTotal returns a TotalSessions holding the label "unknown".
func UnknownTotal() TotalSessions { return TotalSessions{Label: "unknown"} }

func (t TotalSessions) String() string {
	if t.Label != "" {
		return t.Label
	}
	return strconv.Itoa(t.Count)
}

func (t TotalSessions) MarshalJSON() ([]byte, error) {
	if t.Label != "" {
		return json.Marshal(t.Label)
	}
	return json.Marshal(t.Count)
}

func (t *TotalSessions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = UnknownTotal()
		return nil
	}
	if data[0] == '"' {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		if n, err := strconv.Atoi(strings.TrimSpace(label)); err == nil {
			*t = KnownTotal(n)
			return nil
		}
		*t = TotalSessions{Label: label}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("total_sessions: %w", err)
	}
	*t = KnownTotal(n)
	return nil
}

// ParseManifest decodes a published manifest. A manifest without a
// tool_version is rejected because it cannot vouch for any version.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if strings.TrimSpace(m.ToolVersion) == "" {
		return nil, fmt.Errorf("decode manifest: missing tool_version")
	}
	return &m, nil
}

// Limit returns a pointer to n for use as a bounded session limit.
func Limit(n int) *int { return &n }

// ParameterSignature renders the run parameters that shaped a manifest in a
// stable, human-readable form.
func ParameterSignature(sessionLimit *int, primaryExtension string) string {
	limit := "none"
	if sessionLimit != nil {
		limit = strconv.Itoa(*sessionLimit)
	}
	return "session_limit=" + limit + ";primary_extension=" + primaryExtension
}

package domain

import "time"

// Metadata holds the normalized per-object metadata returned with every query hit.
// Timestamps are RFC 3339 strings regardless of the source representation.
type Metadata struct {
	UUID           string   `json:"uuid"`
	CreationTime   string   `json:"creationTime,omitempty"`
	LastUpdateTime string   `json:"lastUpdateTime,omitempty"`
	Distance       *float64 `json:"distance,omitempty"`
	Certainty      *float64 `json:"certainty,omitempty"`
	Score          *float64 `json:"score,omitempty"`
}

// Object is the normalized shape every query and export operates on.
type Object struct {
	UUID       string         `json:"uuid"`
	Properties map[string]any `json:"properties"`
	Vector     []float32      `json:"vector,omitempty"`
	Metadata   Metadata       `json:"metadata"`
}

// FormatTimestamp serializes a unix-millisecond timestamp to RFC 3339 UTC.
// Zero means "unknown" and yields an empty string.
func FormatTimestamp(unixMilli int64) string {
	if unixMilli == 0 {
		return ""
	}
	return time.UnixMilli(unixMilli).UTC().Format(time.RFC3339)
}

package panopto

import (
	"encoding/json"
	"strings"
	"time"
)

// UpdatesResponse is one page of the search index sync update feed.
type UpdatesResponse struct {
	Updates   []Update `json:"Updates"`
	NextToken *string  `json:"NextToken"`
}

// Update identifies a video whose index document changed.
type Update struct {
	VideoID    string `json:"VideoId"`
	UpdateTime string `json:"UpdateTime"`
}

// updateTimeLayout matches the API timestamp with fractional seconds removed.
const updateTimeLayout = "2006-01-02T15:04:05"

// ParsedUpdateTime returns the update timestamp. The API emits a variable
// number of fractional second digits, which are dropped before parsing.
func (u Update) ParsedUpdateTime() (time.Time, error) {
	raw := u.UpdateTime
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSuffix(raw, "Z")
	return time.Parse(updateTimeLayout, raw)
}

// VideoContent is the index document for a single video. ID and Deleted are
// lifted out of the payload; Fields retains the full document for field
// mapping.
type VideoContent struct {
	ID      string
	Deleted bool
	Fields  map[string]any
}

// UnmarshalJSON keeps the raw document available alongside the typed envelope
// fields.
func (v *VideoContent) UnmarshalJSON(data []byte) error {
	var envelope struct {
		ID      string `json:"Id"`
		Deleted bool   `json:"Deleted"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	v.ID = envelope.ID
	v.Deleted = envelope.Deleted
	v.Fields = fields
	return nil
}

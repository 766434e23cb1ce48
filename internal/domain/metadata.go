package domain

import "encoding/json"

// Metadata is the structured blob stored alongside a pending job: the model
// and prompt that produced it, billing cost, and provider-specific
// correlation ids. RequestID carries the secondary id used by providers that
// do not expose the primary task id in their webhook payloads.
type Metadata struct {
	Model           string  `json:"model,omitempty"`
	Prompt          string  `json:"prompt,omitempty"`
	AspectRatio     string  `json:"aspect_ratio,omitempty"`
	Cost            float64 `json:"cost,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
	Title           string  `json:"title,omitempty"`
	RequestID       string  `json:"request_id,omitempty"`
	NotificationID  string  `json:"notification_id,omitempty"`
	SourceImageURL  string  `json:"source_image_url,omitempty"`
}

// Merge overlays non-zero fields of other onto a copy of m. Used when a job
// is enriched with correlation ids discovered only after submission.
func (m Metadata) Merge(other Metadata) Metadata {
	out := m
	if other.Model != "" {
		out.Model = other.Model
	}
	if other.Prompt != "" {
		out.Prompt = other.Prompt
	}
	if other.AspectRatio != "" {
		out.AspectRatio = other.AspectRatio
	}
	if other.Cost != 0 {
		out.Cost = other.Cost
	}
	if other.DurationSeconds != 0 {
		out.DurationSeconds = other.DurationSeconds
	}
	if other.Resolution != "" {
		out.Resolution = other.Resolution
	}
	if other.Title != "" {
		out.Title = other.Title
	}
	if other.RequestID != "" {
		out.RequestID = other.RequestID
	}
	if other.NotificationID != "" {
		out.NotificationID = other.NotificationID
	}
	if other.SourceImageURL != "" {
		out.SourceImageURL = other.SourceImageURL
	}
	return out
}

// MustMarshal serializes v and panics on failure. Only used for values the
// program itself constructs.
func MustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

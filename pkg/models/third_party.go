package models

import "encoding/json"

// ThirdPartyResponse is the envelope returned by the external data source.
// Issues is set when the envelope itself was malformed; Raw then holds the
// body it was decoded from.
type ThirdPartyResponse struct {
	Success bool        `json:"success"`
	Data    *RawPayload `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`

	Issues []ValidationIssue `json:"-"`
	Raw    json.RawMessage   `json:"-"`
}

// RawPayload is the untrusted demographic shape. Fields stay as raw JSON so the
// validator can tell a number from a numeric string, and null from absent.
type RawPayload struct {
	Age     json.RawMessage `json:"age,omitempty"`
	Gender  json.RawMessage `json:"gender,omitempty"`
	Country json.RawMessage `json:"country,omitempty"`
	City    json.RawMessage `json:"city,omitempty"`
	Tags    json.RawMessage `json:"tags,omitempty"`
	Score   json.RawMessage `json:"score,omitempty"`
}

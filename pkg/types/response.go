// Package types holds the JSON shapes shared by every HTTP response.
package types

import "encoding/json"

type SuccessEnvelope struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Data     any      `json:"data,omitempty"`
}

// APIError is the body of a failed request. Retryable tells clients the same
// request may succeed later without changes.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps APIError. INSUFFICIENT_POINTS responses also carry the
// required, balance and shortfall amounts at the top level.
type ErrorEnvelope struct {
	Success   bool            `json:"success"`
	Error     APIError        `json:"error"`
	Required  json.RawMessage `json:"required,omitempty"`
	Balance   json.RawMessage `json:"balance,omitempty"`
	Shortfall json.RawMessage `json:"shortfall,omitempty"`
}

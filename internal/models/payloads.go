package models

import "encoding/json"

// OTPRequestPayload is emitted to the smart-home authority when an entitled
// user asks for a credential.
type OTPRequestPayload struct {
	RequestID string   `json:"request_id"`
	User      Identity `json:"user"`
}

// OTPApproval is the authority's answer to an OTPRequestPayload. Result
// false denies the request. KeypadChars and Length, when set, override the
// default credential alphabet and size, e.g. for numeric-only keypads.
type OTPApproval struct {
	Result      bool   `json:"result"`
	Msg         string `json:"msg,omitempty"`
	Type        string `json:"type,omitempty"`
	KeypadChars string `json:"keypadchars,omitempty"`
	Length      int    `json:"length,omitempty"`
	ValidTime   int    `json:"valid_time,omitempty"`
}

// TokenQuery asks whether a presented token currently opens the door.
type TokenQuery struct {
	Token string `json:"token"`
}

// TokenState answers a TokenQuery.
type TokenState struct {
	Valid bool `json:"valid"`
}

// IDCardRequest asks the local deployment to vouch for a requestor towards
// a remote deployment.
type IDCardRequest struct {
	Requestor string `json:"requestor"`
	Receiver  string `json:"receiver"`
}

// IDCardResult carries the issued federated capability token, already
// prefixed for the wire.
type IDCardResult struct {
	Token string `json:"token"`
}

// ConfigUpdate is a key-value configuration push from a collaborator.
type ConfigUpdate map[string]json.RawMessage

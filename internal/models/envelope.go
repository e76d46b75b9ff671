package models

import (
	"encoding/json"
	"fmt"
)

// Message types carried in the envelope's type tag. Inbound types use the
// "ac_" routing prefix the transport layer dispatches on; outbound types
// are the events pushed towards the smart-home authority and the UI.
const (
	// outbound: approval request towards the smart-home authority
	MsgOTPRequest = "otprequest"
	// inbound: the authority's answer to an approval request
	MsgOTPResponse = "ac_otprequest"
	// inbound: door actuator asking whether a presented token is valid
	MsgTokenQuery = "ac_tokenquery"
	// outbound: answer to a token query
	MsgTokenState = "tokenstate"
	// inbound: request to issue a federated capability token
	MsgIDCard = "ac_idcard"
	// outbound: issued federated capability token
	MsgIDCardResult = "idcard"
	// inbound: key-value configuration update
	MsgConfigUpdate = "ac_config"
)

// FederatedTokenPrefix marks a federated capability token on the wire,
// separating it from local one-time passwords before validation.
const FederatedTokenPrefix = "zm:"

// Envelope is the transport message shape: a type tag selecting the
// handler and an opaque config payload decoded by it.
type Envelope struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// NewEnvelope builds an envelope around the marshalled payload.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshalling %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Config: raw}, nil
}

// Decode unmarshals the envelope payload into out.
func (e Envelope) Decode(out any) error {
	if len(e.Config) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Config, out); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response is a decoded incoming envelope.
//
// Only the header fields used for routing and error classification are decoded, the complete
// frame is kept and can be decoded into a call specific type with Decode.
type Response struct {
	Type          string        `json:"type"`
	CallID        string        `json:"call_id,omitempty"`
	Intent        string        `json:"intent,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorCode     int           `json:"errorCode,omitempty"`
	ErrorHandling ErrorHandling `json:"errorHandling,omitempty"`

	raw json.RawMessage
}

// HelloResponse holds the fields of a client_hello response used by the client.
type HelloResponse struct {
	// Keepalive is the heartbeat period in seconds.
	Keepalive float64 `json:"keepalive"`
}

// AuthResponse holds the fields of a client_auth response.
type AuthResponse struct {
	Email       string          `json:"email"`
	Token       string          `json:"token"`
	Permissions json.RawMessage `json:"permissions,omitempty"`
}

// AuthContext converts the response into the context attached to later requests.
func (r *AuthResponse) AuthContext() *AuthContext {
	return &AuthContext{AuthEmail: r.Email, AuthToken: r.Token, Permissions: r.Permissions}
}

// IntentsResponse holds the fields of a client_intents response.
type IntentsResponse struct {
	DeniedIntents []string `json:"denied_intents,omitempty"`
}

// DecodeResponse decodes a raw frame. It returns ErrInvalidResponse if the frame is not a JSON object.
func DecodeResponse(data []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidResponse
	}

	resp := &Response{}
	if err := json.Unmarshal(trimmed, resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	resp.raw = append(json.RawMessage(nil), trimmed...)

	return resp, nil
}

// Raw returns the complete frame as received.
func (r *Response) Raw() json.RawMessage {
	return r.raw
}

// Decode unmarshals the complete frame into v.
func (r *Response) Decode(v any) error {
	if len(r.raw) == 0 {
		return ErrInvalidResponse
	}

	return json.Unmarshal(r.raw, v)
}

// IsError returns true if the response is a server-declared error.
func (r *Response) IsError() bool {
	return r.Type == TypeError
}

// IsIntentPush returns true if the response is an unsolicited intent push.
func (r *Response) IsIntentPush() bool {
	return r.Type == TypeIntentReceive
}

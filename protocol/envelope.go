package protocol

import (
	"encoding/json"
)

// CallType is the "type" field of an outgoing request envelope.
type CallType string

// Outgoing request types.
const (
	CallHello      CallType = "client_hello"
	CallAuth       CallType = "client_auth"
	CallIntents    CallType = "client_intents"
	CallIntentSend CallType = "client_intent_send"
	CallSubmessage CallType = "client_submessage"
	CallKeepalive  CallType = "client_keepalive"
)

// Incoming envelope types with a special meaning.
const (
	// TypeError marks a server-declared error response.
	TypeError = "error"
	// TypeIntentReceive marks an unsolicited intent push from the server.
	TypeIntentReceive = "server_intent_receive"
)

var callVersions = map[CallType]string{
	CallHello:      "1.0.0",
	CallAuth:       "1.0.0",
	CallIntents:    "1.0.0",
	CallIntentSend: "1.0.0",
	CallKeepalive:  "1.0.0",
	CallSubmessage: "1.0.0",
}

// Version returns the protocol version sent with requests of this call type.
func (t CallType) Version() string {
	return callVersions[t]
}

func (t CallType) String() string { return string(t) }

// AuthContext is returned by a successful client_auth call and attached as "authData"
// to every subsequent request that requires it.
type AuthContext struct {
	AuthEmail   string          `json:"authEmail"`
	AuthToken   string          `json:"authToken"`
	Permissions json.RawMessage `json:"permissions,omitempty"`
}

// Credentials is the login data of a client_auth request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HelloRequest is the client_hello envelope.
type HelloRequest struct {
	Type           CallType `json:"type"`
	Version        string   `json:"version"`
	Authentication bool     `json:"authentication"`
	AppAgent       string   `json:"app_agent"`
	CallID         string   `json:"call_id"`
}

// NewHelloRequest creates a client_hello envelope.
func NewHelloRequest(callID string, authRequired bool, appAgent string) *HelloRequest {
	return &HelloRequest{
		Type:           CallHello,
		Version:        CallHello.Version(),
		Authentication: authRequired,
		AppAgent:       appAgent,
		CallID:         callID,
	}
}

// AuthRequest is the client_auth envelope.
type AuthRequest struct {
	Type    CallType    `json:"type"`
	Version string      `json:"version"`
	CallID  string      `json:"call_id"`
	Data    Credentials `json:"data"`
}

// NewAuthRequest creates a client_auth envelope.
func NewAuthRequest(callID string, creds Credentials) *AuthRequest {
	return &AuthRequest{
		Type:    CallAuth,
		Version: CallAuth.Version(),
		CallID:  callID,
		Data:    creds,
	}
}

// IntentsRequest is the client_intents envelope.
type IntentsRequest struct {
	Type     CallType     `json:"type"`
	Version  string       `json:"version"`
	CallID   string       `json:"call_id"`
	AuthData *AuthContext `json:"authData,omitempty"`
	Data     IntentList   `json:"data"`
}

// IntentList is the payload of a client_intents request.
type IntentList struct {
	Intents []string `json:"intents"`
}

// NewIntentsRequest creates a client_intents envelope.
func NewIntentsRequest(callID string, auth *AuthContext, intents []string) *IntentsRequest {
	if intents == nil {
		intents = []string{}
	}

	return &IntentsRequest{
		Type:     CallIntents,
		Version:  CallIntents.Version(),
		CallID:   callID,
		AuthData: auth,
		Data:     IntentList{Intents: intents},
	}
}

// IntentCreateData declares the access policy of an intent created by publishing to it.
type IntentCreateData struct {
	Intent string `json:"intent"`
	// PermissionRequired tells whether a permission is needed to subscribe.
	PermissionRequired bool `json:"permission_required"`
	// PermissionNode is the permission needed to subscribe when PermissionRequired is set.
	PermissionNode string `json:"permission_node,omitempty"`
	// MembersCanSend tells whether members may publish at all.
	MembersCanSend bool `json:"members_can_send"`
	// MembersSendPermission is the permission needed to publish, empty allows all members.
	MembersSendPermission string `json:"-"`
	// Data is published together with the creation request.
	Data any `json:"data,omitempty"`
}

// MarshalJSON encodes an empty MembersSendPermission as false.
func (d IntentCreateData) MarshalJSON() ([]byte, error) {
	type plain IntentCreateData

	var perm any = false
	if d.MembersSendPermission != "" {
		perm = d.MembersSendPermission
	}

	return json.Marshal(struct {
		plain
		MembersSendPermission any `json:"members_send_permission"`
	}{plain: plain(d), MembersSendPermission: perm})
}

// IntentSendRequest is the client_intent_send envelope. Exactly one of IntentData and
// IntentCreateData is set.
type IntentSendRequest struct {
	Type             CallType          `json:"type"`
	Version          string            `json:"version"`
	CallID           string            `json:"call_id"`
	Intent           string            `json:"intent"`
	AuthData         *AuthContext      `json:"authData,omitempty"`
	IntentData       any               `json:"intent_data,omitempty"`
	IntentCreateData *IntentCreateData `json:"intent_create_data,omitempty"`
}

// NewIntentSendRequest creates a client_intent_send envelope publishing data to intent.
func NewIntentSendRequest(callID string, auth *AuthContext, intent string, data any) *IntentSendRequest {
	return &IntentSendRequest{
		Type:       CallIntentSend,
		Version:    CallIntentSend.Version(),
		CallID:     callID,
		Intent:     intent,
		AuthData:   auth,
		IntentData: data,
	}
}

// NewIntentSendCreateRequest creates a client_intent_send envelope that also declares the intent.
func NewIntentSendCreateRequest(callID string, auth *AuthContext, create IntentCreateData) *IntentSendRequest {
	return &IntentSendRequest{
		Type:             CallIntentSend,
		Version:          CallIntentSend.Version(),
		CallID:           callID,
		Intent:           create.Intent,
		AuthData:         auth,
		IntentCreateData: &create,
	}
}

// SubmessageRequest is the client_submessage envelope.
type SubmessageRequest struct {
	Type     CallType     `json:"type"`
	Version  string       `json:"version"`
	CallID   string       `json:"call_id"`
	AuthData *AuthContext `json:"authData,omitempty"`
	Data     any          `json:"data"`
}

// NewSubmessageRequest creates a client_submessage envelope.
func NewSubmessageRequest(callID string, auth *AuthContext, data any) *SubmessageRequest {
	return &SubmessageRequest{
		Type:     CallSubmessage,
		Version:  CallSubmessage.Version(),
		CallID:   callID,
		AuthData: auth,
		Data:     data,
	}
}

// KeepaliveRequest is the uncorrelated client_keepalive envelope.
type KeepaliveRequest struct {
	Type    CallType `json:"type"`
	Version string   `json:"version"`
}

// NewKeepaliveRequest creates a client_keepalive envelope.
func NewKeepaliveRequest() *KeepaliveRequest {
	return &KeepaliveRequest{
		Type:    CallKeepalive,
		Version: CallKeepalive.Version(),
	}
}

// Package protocol provides the wire-level building blocks of the charWS client protocol: a JSON
// call/response protocol spoken over a full-duplex WebSocket-like message stream.
//
// This package offers the outgoing request envelopes, response decoding, error handling policies
// and sentinel errors shared by the client implementation. It also defines the transport boundary
// consumed by the client and a generic connection state manager for the client's lifecycle.
//
// Call Types:
// Every correlated request carries a call type, a protocol version and a call ID:
//   - CallHello:      handshake, announces the application agent and whether authentication is needed.
//   - CallAuth:       authenticates with email and password, returns the AuthContext.
//   - CallIntents:    subscribes to intent channels.
//   - CallIntentSend: publishes to an intent channel, optionally creating it.
//   - CallSubmessage: opaque application payload, response returned verbatim.
//
// CallKeepalive is fire-and-forget and is never correlated.
//
// Responses:
// A Response is any JSON object. Responses carrying a call_id are routed to the waiting caller,
// responses of type "server_intent_receive" are server pushes keyed by intent name.
// Error responses ({"type":"error"}) carry an ErrorHandling policy deciding how the client recovers.
//
// Transport:
// The Transport interface mirrors a browser WebSocket: Send, Close with code and reason, a ready
// state and a set of event handlers. A TransportFactory constructs one transport per connection
// attempt.
package protocol

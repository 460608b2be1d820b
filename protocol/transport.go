package protocol

import "context"

// TransportState is the ready state of a transport, with the same values as a browser WebSocket.
type TransportState int32

// Transport ready states.
const (
	TransportConnecting TransportState = 0
	TransportOpen       TransportState = 1
	TransportClosing    TransportState = 2
	TransportClosed     TransportState = 3
)

// String returns string representation of the state.
func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportClosing:
		return "closing"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close codes used by the client.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// TransportHandlers are the event handlers of a transport. Nil handlers are skipped.
type TransportHandlers struct {
	// OnOpen is called once the transport becomes open.
	OnOpen func()
	// OnMessage is called for each received text frame.
	OnMessage func(data []byte)
	// OnError is called when the transport fails. OnClose follows.
	OnError func(err error)
	// OnClose is called once when the transport is closed.
	OnClose func(code int, reason string)
}

// Transport is a full-duplex message stream, modeled on a browser WebSocket.
//
// Implementations must be safe for concurrent use. Handlers may be called from a transport owned
// goroutine and must not block for long.
type Transport interface {
	// Send sends a text frame. It does not wait for the peer.
	Send(data []byte) error
	// Close closes the transport with the close code and reason.
	Close(code int, reason string) error
	// State returns the current ready state.
	State() TransportState
	// SetHandlers replaces the event handlers.
	SetHandlers(handlers TransportHandlers)
}

// TransportFactory constructs a transport connecting to url. It must not wait for the
// connection to be established: the returned transport starts in TransportConnecting.
type TransportFactory func(ctx context.Context, url string) (Transport, error)

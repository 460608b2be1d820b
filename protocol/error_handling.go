package protocol

// ErrorHandling is the recovery policy the server attaches to an error response.
type ErrorHandling string

// Error handling policies of an error response.
const (
	// HandlingRetry asks the client to send the same call again.
	HandlingRetry ErrorHandling = "retry"
	// HandlingReconnect asks the client to drop the connection and start over with a new one.
	HandlingReconnect ErrorHandling = "reconnect"
	// HandlingFatal asks the client to close the connection without recovery.
	HandlingFatal ErrorHandling = "fatal"
	// HandlingIgnore tells the client to treat the call as successful.
	HandlingIgnore ErrorHandling = "ignore"
	// HandlingAttemptVersion asks for a version negotiation. It is not supported and handled as HandlingFatal.
	HandlingAttemptVersion ErrorHandling = "attemptVersion"
)

// IsKnown returns true if h is one of the defined policies.
func (h ErrorHandling) IsKnown() bool {
	switch h {
	case HandlingRetry, HandlingReconnect, HandlingFatal, HandlingIgnore, HandlingAttemptVersion:
		return true
	default:
		return false
	}
}

// Effective returns the policy actually applied by the client. Version negotiation is degraded to fatal.
func (h ErrorHandling) Effective() ErrorHandling {
	if h == HandlingAttemptVersion {
		return HandlingFatal
	}

	return h
}

func (h ErrorHandling) String() string { return string(h) }

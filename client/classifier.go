package client

import (
	"github.com/arloliu/go-charws/protocol"
)

// Close reasons sent to the server when an error response ends the connection.
const (
	reasonTooManyRetries = "Closed due to too many retry attempts"
	reasonReconnect      = "Server asked for reconnection due to error"
	reasonFatal          = "Server asked for fatal close due to error"
)

// errorAction tells the call layer how to continue after an error response.
type errorAction int

const (
	// actionReject fails the call.
	actionReject errorAction = iota
	// actionRetry sends the call again with the same arguments.
	actionRetry
	// actionIgnore completes the call without a result.
	actionIgnore
)

// checkError surfaces a server error response to the host and applies its error handling policy.
//
// The returned error is a *protocol.ServerError when the call is rejected.
func (c *Client) checkError(callType protocol.CallType, resp *protocol.Response) (errorAction, error) {
	c.metrics.incCallErrCount()
	c.surfaceError(callType, resp)

	serverErr := protocol.NewServerError(callType, resp)

	switch resp.ErrorHandling.Effective() {
	case protocol.HandlingRetry:
		if attempt, ok := c.incRetryCount(callType); ok {
			c.metrics.incCallRetryCount()
			c.logger.Info("retry call", "method", "checkError", "type", callType, "attempt", attempt)

			return actionRetry, nil
		}

		serverErr.Exhausted = true
		c.logger.Error("too many retry attempts", "method", "checkError", "type", callType, "code", resp.ErrorCode)
		c.fatalClose(resp.ErrorCode, reasonTooManyRetries)

	case protocol.HandlingReconnect:
		c.requestReconnect(resp.ErrorCode, reasonReconnect)

	case protocol.HandlingFatal:
		c.fatalClose(resp.ErrorCode, reasonFatal)

	case protocol.HandlingIgnore:
		return actionIgnore, nil

	default:
		c.logger.Warn("unknown error handling", "method", "checkError", "type", callType, "errorHandling", resp.ErrorHandling)
	}

	return actionReject, serverErr
}

// surfaceError reports a server error to the host error callback, else to the alert callback,
// else to the log.
func (c *Client) surfaceError(callType protocol.CallType, resp *protocol.Response) {
	switch {
	case c.app.ErrorCallback != nil:
		c.app.ErrorCallback(resp)
	case c.app.Alert != nil:
		c.app.Alert(resp.Error)
	default:
		c.logger.Error("server error", "method", "surfaceError", "type", callType, "call_id", resp.CallID,
			"error", resp.Error, "errorCode", resp.ErrorCode, "errorHandling", resp.ErrorHandling)
	}
}

// incRetryCount increments the retry counter of callType if it is below the ceiling.
func (c *Client) incRetryCount(callType protocol.CallType) (int, bool) {
	ceiling := c.cfg.RetryCeiling()
	allowed := false

	count, _ := c.retries.Compute(callType, func(old int, _ bool) (int, bool) {
		if old < ceiling {
			allowed = true
			return old + 1, false
		}

		return old, false
	})

	return count, allowed
}

// fatalClose closes the connection without recovery.
func (c *Client) fatalClose(code int, reason string) {
	c.fatal.Store(true)
	c.closeCurrent(code, reason)
}

// requestReconnect closes the connection and asks the supervisor for a new one.
func (c *Client) requestReconnect(code int, reason string) {
	c.reconnectPending.Store(true)
	c.closeCurrent(code, reason)

	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

package client

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-charws/protocol"
)

// callResult is delivered once to the waiter of a pending call.
type callResult struct {
	resp *protocol.Response
	err  error
}

type pendingCall struct {
	callType protocol.CallType
	// buffered, a delivery never blocks the transport read goroutine
	result chan callResult
}

// callRegistry holds the calls waiting for their correlated response, keyed by call ID.
//
// An entry is registered before its request is sent and owned by exactly one waiter. It leaves the
// registry exactly once: on delivery, on timeout or cancellation of the waiter, or when the
// connection is torn down.
type callRegistry struct {
	calls *xsync.MapOf[string, *pendingCall]
}

func newCallRegistry() *callRegistry {
	return &callRegistry{calls: xsync.NewMapOf[string, *pendingCall]()}
}

// register adds a pending call. It returns ErrDuplicateCallID if the ID is still outstanding.
func (r *callRegistry) register(id string, callType protocol.CallType) (*pendingCall, error) {
	call := &pendingCall{callType: callType, result: make(chan callResult, 1)}
	if _, loaded := r.calls.LoadOrStore(id, call); loaded {
		return nil, protocol.ErrDuplicateCallID
	}

	return call, nil
}

// resolve delivers resp to the call registered under its call ID and removes the entry.
// It returns false if no call is waiting for it.
func (r *callRegistry) resolve(resp *protocol.Response) bool {
	call, ok := r.calls.LoadAndDelete(resp.CallID)
	if !ok {
		return false
	}
	call.result <- callResult{resp: resp}

	return true
}

// remove drops the entry of an abandoned call.
func (r *callRegistry) remove(id string) {
	r.calls.Delete(id)
}

// failAll fails every pending call with err and empties the registry.
func (r *callRegistry) failAll(err error) int {
	count := 0
	r.calls.Range(func(id string, _ *pendingCall) bool {
		if call, ok := r.calls.LoadAndDelete(id); ok {
			call.result <- callResult{err: err}
			count++
		}

		return true
	})

	return count
}

// len returns the number of pending calls.
func (r *callRegistry) len() int {
	return r.calls.Size()
}

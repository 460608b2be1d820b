package protocol

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-charws/logger"
)

// ConnState represents the lifecycle stage of a client connection.
type ConnState uint32

// Client connection states.
const (
	// ClosedState indicates that there is no connection and none is being made.
	ClosedState ConnState = iota
	// ConnectingState indicates that a transport was constructed and is not yet open.
	ConnectingState
	// HandshakeHelloState indicates that the transport is open and client_hello is in flight.
	HandshakeHelloState
	// HandshakeAuthState indicates that the configured credentials are being sent.
	HandshakeAuthState
	// HandshakeIntentsState indicates that the configured intents are being subscribed.
	HandshakeIntentsState
	// ReadyState indicates that the handshake finished and the connection is usable.
	ReadyState
	// ReconnectingState indicates that the connection is being replaced by a new one.
	ReconnectingState
)

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case ClosedState:
		return "closed"
	case ConnectingState:
		return "connecting"
	case HandshakeHelloState:
		return "handshake-hello"
	case HandshakeAuthState:
		return "handshake-auth"
	case HandshakeIntentsState:
		return "handshake-intents"
	case ReadyState:
		return "ready"
	case ReconnectingState:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// IsClosed returns if the state is ClosedState.
func (cs ConnState) IsClosed() bool { return cs == ClosedState }

// IsReady returns if the state is ReadyState.
func (cs ConnState) IsReady() bool { return cs == ReadyState }

// IsHandshake returns if the state is one of the handshake states.
func (cs ConnState) IsHandshake() bool {
	return cs == HandshakeHelloState || cs == HandshakeAuthState || cs == HandshakeIntentsState
}

// allowed transitions, ClosedState is reachable from any state.
var connTransitions = map[ConnState][]ConnState{
	ClosedState:           {ConnectingState},
	ConnectingState:       {HandshakeHelloState, ReconnectingState},
	HandshakeHelloState:   {HandshakeAuthState, HandshakeIntentsState, ReadyState, ReconnectingState},
	HandshakeAuthState:    {HandshakeIntentsState, ReadyState, ReconnectingState},
	HandshakeIntentsState: {ReadyState, ReconnectingState},
	ReadyState:            {ReconnectingState},
	ReconnectingState:     {ConnectingState},
}

// CanTransit reports whether the state machine allows moving from cs to next.
func (cs ConnState) CanTransit(next ConnState) bool {
	if next == ClosedState || next == cs {
		return true
	}

	for _, s := range connTransitions[cs] {
		if s == next {
			return true
		}
	}

	return false
}

// ConnStateChangeHandler is a function type that represents a handler for connection state changes.
//
// Note: the handler will be invoked in a blocking mode. Take care with long-running implementations.
type ConnStateChangeHandler func(prevState ConnState, newState ConnState)

// ConnStateMgr manages the lifecycle state of a client connection.
//
// It validates state transitions, notifies handlers of state changes and lets callers wait for a
// state. It is safe for concurrent use.
type ConnStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []ConnStateChangeHandler
}

// NewConnStateMgr creates a new ConnStateMgr instance, initializing it to the ClosedState.
func NewConnStateMgr(l logger.Logger, handlers ...ConnStateChangeHandler) *ConnStateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &ConnStateMgr{
		logger:   l,
		handlers: make([]ConnStateChangeHandler, 0, len(handlers)),
	}
	mgr.cond = sync.NewCond(&mgr.mu)
	mgr.state.Store(uint32(ClosedState))
	mgr.AddHandler(handlers...)

	return mgr
}

// State returns the current connection state.
func (cs *ConnStateMgr) State() ConnState {
	return ConnState(cs.state.Load())
}

// AddHandler adds one or more ConnStateChangeHandler functions to be invoked on state changes.
func (cs *ConnStateMgr) AddHandler(handlers ...ConnStateChangeHandler) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.handlers = append(cs.handlers, handlers...)
}

// WaitState waits for the connection state to reach the specified state or until the context is done.
// It returns nil if the desired state is reached, or an error if the context is canceled or times out.
func (cs *ConnStateMgr) WaitState(ctx context.Context, state ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		cs.cond.Broadcast()
	})
	defer stopFunc()

	for cs.State() != state {
		if ctx.Err() != nil {
			cs.logger.Debug("wait connection state receive ctx done", "cur_state", cs.State(), "desired_state", state)
			return ctx.Err()
		}
		cs.cond.Wait()
	}

	return nil
}

// To transitions the connection state to newState.
//
// Moving to the current state is a no-op. It returns ErrInvalidTransition if the state machine
// does not allow the transition, the state is left unchanged in that case.
func (cs *ConnStateMgr) To(newState ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	curState := cs.State()
	if curState == newState {
		return nil
	}

	if !curState.CanTransit(newState) {
		cs.logger.Debug("invalid connection state transition", "method", "To", "cur_state", curState, "desired_state", newState)
		return ErrInvalidTransition
	}

	cs.setState(newState)
	cs.invokeHandlers(curState, newState)

	return nil
}

// ToClosed transitions the connection state to ClosedState. It is allowed from any state.
func (cs *ConnStateMgr) ToClosed() {
	_ = cs.To(ClosedState)
}

// IsReady returns if the current state is ready.
func (cs *ConnStateMgr) IsReady() bool {
	return cs.State().IsReady()
}

// IsClosed returns if the current state is closed.
func (cs *ConnStateMgr) IsClosed() bool {
	return cs.State().IsClosed()
}

// setState atomically set current state to the newState. It also broadcasts a signal to any waiting goroutines.
func (cs *ConnStateMgr) setState(newState ConnState) {
	cs.state.Store(uint32(newState))
	cs.cond.Broadcast()
}

// invokeHandlers invokes all registered ConnStateChangeHandler functions with the previous and new states.
func (cs *ConnStateMgr) invokeHandlers(prevState ConnState, newState ConnState) {
	for _, handler := range cs.handlers {
		if handler != nil {
			handler(prevState, newState)
		}
	}
}

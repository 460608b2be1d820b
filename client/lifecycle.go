package client

import (
	"context"
	"errors"

	"github.com/arloliu/go-charws/internal/pool"
	"github.com/arloliu/go-charws/protocol"
)

// connOutcome is the result of one connection attempt.
type connOutcome int

const (
	// outcomeStop ends the supervisor, the client stays closed.
	outcomeStop connOutcome = iota
	// outcomeReconnect starts a new connection attempt with a new transport.
	outcomeReconnect
)

func (o connOutcome) String() string {
	if o == outcomeReconnect {
		return "reconnect"
	}

	return "stop"
}

// supervisorTask returns the task running connection attempts until one ends without reconnection.
func (c *Client) supervisorTask(ctx context.Context, done chan struct{}) protocol.TaskFunc {
	return func() bool {
		defer close(done)

		c.supervise(ctx)

		c.stopHeartbeat()
		c.dropTransport(c.currentTransport(), protocol.CloseNormal, "client closed")
		c.stateMgr.ToClosed()
		c.logger.Info("connection supervisor stopped", "method", "supervisorTask", "url", c.cfg.URL())

		return false
	}
}

// supervise runs connection attempts in a loop. Each reconnection passes through ReconnectingState
// and waits for the backoff delay.
func (c *Client) supervise(ctx context.Context) {
	c.backoff.Reset()

	for {
		outcome := c.connectOnce(ctx)
		c.logger.Debug("connection attempt finished", "method", "supervise", "outcome", outcome)

		if outcome != outcomeReconnect || c.shutdown.Load() || ctx.Err() != nil {
			return
		}

		if err := c.stateMgr.To(protocol.ReconnectingState); err != nil {
			return
		}
		c.metrics.incConnRetryGauge()

		delay := c.backoff.NextDelay()
		c.logger.Info("reconnecting", "method", "supervise", "url", c.cfg.URL(), "delay", delay,
			"attempt", c.metrics.ConnRetryGauge.Load())

		if !pool.Sleep(ctx, delay) {
			return
		}
	}
}

// connectOnce constructs a transport, waits until it is open, runs the handshake and then waits
// until the connection ends.
func (c *Client) connectOnce(ctx context.Context) connOutcome {
	if ctx.Err() != nil || c.shutdown.Load() {
		return outcomeStop
	}

	c.reconnectPending.Store(false)
	select {
	case <-c.reconnectCh:
	default:
	}

	if err := c.stateMgr.To(protocol.ConnectingState); err != nil {
		return outcomeStop
	}

	url := c.cfg.URL()
	c.logger.Info("connecting", "method", "connectOnce", "url", url)
	c.metrics.incConnCount()

	tr, err := c.factory(ctx, url)
	if err != nil {
		c.logger.Warn("failed to construct transport", "method", "connectOnce", "url", url, "error", err)
		return outcomeReconnect
	}

	if tr == nil {
		c.logger.Error("failed to construct transport", "method", "connectOnce", "url", url, "error", protocol.ErrTransportNil)
		return outcomeStop
	}

	at := c.installTransport(tr)

	if outcome, open := c.waitTransportOpen(ctx, at); !open {
		return outcome
	}

	if err := c.stateMgr.To(protocol.HandshakeHelloState); err != nil {
		c.dropTransport(at, protocol.CloseNormal, "client closed")
		return outcomeStop
	}

	c.attachHandlers(at)

	if err := c.handshake(ctx); err != nil {
		return c.handshakeFailed(at, err)
	}

	return c.waitConnectionEnd(ctx, at)
}

// waitTransportOpen polls the transport ready state while it is connecting or closing.
func (c *Client) waitTransportOpen(ctx context.Context, at *activeTransport) (connOutcome, bool) {
	for {
		switch state := at.tr.State(); state {
		case protocol.TransportOpen:
			return outcomeStop, true

		case protocol.TransportClosed:
			c.logger.Warn("transport closed before open", "method", "waitTransportOpen", "gen", at.gen)
			c.dropTransport(at, protocol.CloseNormal, "")
			return outcomeReconnect, false

		default:
			if !pool.Sleep(ctx, c.cfg.ReadyPollInterval()) {
				c.dropTransport(at, protocol.CloseNormal, "client closed")
				return outcomeStop, false
			}
		}
	}
}

// handshake runs client_hello, the optional client_auth and client_intents, then reports ready.
func (c *Client) handshake(ctx context.Context) error {
	if err := c.hello(ctx); err != nil {
		return err
	}

	cfg := c.app.Config

	if cfg.AuthRequired && cfg.RunConfigAuth {
		if err := c.stateMgr.To(protocol.HandshakeAuthState); err != nil {
			return err
		}

		if _, err := c.Auth(ctx, cfg.Credentials()); err != nil {
			return err
		}
	}

	if len(cfg.Intents) > 0 {
		if err := c.stateMgr.To(protocol.HandshakeIntentsState); err != nil {
			return err
		}

		if _, err := c.Intents(ctx, nil); err != nil {
			return err
		}
	}

	if err := c.stateMgr.To(protocol.ReadyState); err != nil {
		return err
	}

	c.backoff.Reset()
	c.metrics.resetConnRetryGauge()
	c.logger.Info("connection ready", "method", "handshake", "url", c.cfg.URL())

	if c.app.WSReady != nil {
		c.app.WSReady()
	}

	return nil
}

// handshakeFailed decides how to continue after a failed handshake.
func (c *Client) handshakeFailed(at *activeTransport, err error) connOutcome {
	c.logger.Warn("handshake failed", "method", "handshakeFailed", "state", c.stateMgr.State(), "error", err)

	if c.reconnectPending.Swap(false) {
		c.dropTransport(at, protocol.CloseNormal, "")
		return outcomeReconnect
	}

	if c.fatal.Load() || c.shutdown.Load() || errors.Is(err, protocol.ErrInvalidTransition) {
		c.dropTransport(at, protocol.CloseNormal, "client closed")
		return outcomeStop
	}

	c.dropTransport(at, protocol.CloseNormal, "Handshake failed")

	if c.cfg.AutoReconnect() {
		return outcomeReconnect
	}

	return outcomeStop
}

// waitConnectionEnd blocks while the connection is ready.
func (c *Client) waitConnectionEnd(ctx context.Context, at *activeTransport) connOutcome {
	select {
	case <-ctx.Done():
		c.dropTransport(at, protocol.CloseNormal, "client closed")
		return outcomeStop

	case <-c.reconnectCh:
	case <-at.done:
	}

	if c.reconnectPending.Swap(false) {
		c.dropTransport(at, protocol.CloseNormal, "")
		return outcomeReconnect
	}

	c.dropTransport(at, protocol.CloseNormal, "client closed")

	if c.fatal.Load() || c.shutdown.Load() {
		return outcomeStop
	}

	if c.cfg.AutoReconnect() {
		c.logger.Warn("connection lost", "method", "waitConnectionEnd", "gen", at.gen)
		return outcomeReconnect
	}

	c.logger.Info("connection closed", "method", "waitConnectionEnd", "gen", at.gen)

	return outcomeStop
}

// attachHandlers installs the transport event handlers of at.
func (c *Client) attachHandlers(at *activeTransport) {
	at.tr.SetHandlers(protocol.TransportHandlers{
		OnMessage: c.onMessage,
		OnError: func(err error) {
			c.onTransportError(at, err)
		},
		OnClose: func(code int, reason string) {
			c.onTransportClose(at, code, reason)
		},
	})
}

func (c *Client) onTransportError(at *activeTransport, err error) {
	c.logger.Warn("transport error", "method", "onTransportError", "error", err, "gen", at.gen)

	if c.isCurrent(at) {
		c.stopHeartbeat()
	}

	if c.app.WSError != nil {
		c.app.WSError(err)
	}
}

func (c *Client) onTransportClose(at *activeTransport, code int, reason string) {
	c.logger.Info("transport closed", "method", "onTransportClose", "code", code, "reason", reason, "gen", at.gen)

	if c.isCurrent(at) {
		c.stopHeartbeat()
		at.markDone()
		c.registry.failAll(protocol.ErrConnClosed)
	}

	if c.app.WSClose != nil {
		c.app.WSClose(code, reason)
	}
}

// onMessage routes a received frame: intent pushes go to the dispatch task, anything else to the waiting call.
func (c *Client) onMessage(data []byte) {
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		c.logger.Warn("failed to decode frame", "method", "onMessage", "error", err)
		return
	}

	if resp.IsIntentPush() {
		c.metrics.incIntentRecvCount()
		c.enqueuePush(resp)

		return
	}

	if !c.registry.resolve(resp) {
		c.metrics.incUnmatchedRespCount()
		c.logger.Debug("response without waiting call", "method", "onMessage", "type", resp.Type, "call_id", resp.CallID)
	}
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-charws/internal/pool"
	"github.com/arloliu/go-charws/logger"
	"github.com/arloliu/go-charws/protocol"
)

// buildFunc builds the request envelope of one call attempt.
type buildFunc func(callID string) any

// call sends a request and waits for its correlated response, applying the error handling policy of
// error responses. A retry sends a new envelope with the same arguments and a new call ID.
//
// It returns a nil response and nil error for an ignored error.
func (c *Client) call(ctx context.Context, callType protocol.CallType, build buildFunc) (*protocol.Response, error) {
	for {
		resp, err := c.roundTrip(ctx, callType, build)
		if err != nil {
			return nil, err
		}

		if !resp.IsError() {
			return resp, nil
		}

		action, err := c.checkError(callType, resp)
		switch action {
		case actionRetry:
			continue
		case actionIgnore:
			return nil, nil
		default:
			return nil, err
		}
	}
}

// roundTrip registers a call, sends its envelope and waits for the response.
func (c *Client) roundTrip(ctx context.Context, callType protocol.CallType, build buildFunc) (*protocol.Response, error) {
	at := c.currentTransport()
	if at == nil {
		return nil, protocol.ErrNotConnected
	}

	var (
		id      string
		pending *pendingCall
		err     error
	)
	for {
		id = protocol.GenerateCallID()
		pending, err = c.registry.register(id, callType)
		if err == nil {
			break
		}
		if !errors.Is(err, protocol.ErrDuplicateCallID) {
			return nil, err
		}
	}

	// the transport may have closed before the registration
	if at.isDone() {
		c.registry.remove(id)
		return nil, protocol.ErrConnClosed
	}

	data, err := json.Marshal(build(id))
	if err != nil {
		c.registry.remove(id)
		return nil, fmt.Errorf("encode %s: %w", callType, err)
	}

	c.metrics.incCallInflightCount()
	defer c.metrics.decCallInflightCount()

	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("send call", "method", "roundTrip", "type", callType, "call_id", id, "gen", at.gen)
	}

	if err := at.tr.Send(data); err != nil {
		c.registry.remove(id)
		return nil, fmt.Errorf("send %s: %w", callType, err)
	}
	c.metrics.incCallSendCount()

	var timeoutCh <-chan time.Time
	if timeout := c.cfg.CallTimeout(); timeout > 0 {
		timer := pool.GetTimer(timeout)
		defer pool.PutTimer(timer)
		timeoutCh = timer.C
	}

	select {
	case res := <-pending.result:
		return c.callResult(callType, id, res)

	case <-at.done:
		// a response may have been delivered right before the close
		select {
		case res := <-pending.result:
			return c.callResult(callType, id, res)
		default:
		}
		c.registry.remove(id)

		return nil, protocol.ErrConnClosed

	case <-ctx.Done():
		c.registry.remove(id)
		return nil, ctx.Err()

	case <-timeoutCh:
		c.registry.remove(id)
		c.metrics.incCallTimeoutCount()
		c.logger.Warn("call timeout", "method", "roundTrip", "type", callType, "call_id", id)

		return nil, fmt.Errorf("%s %s: %w", callType, id, protocol.ErrNoResponse)
	}
}

func (c *Client) callResult(callType protocol.CallType, id string, res callResult) (*protocol.Response, error) {
	if res.err != nil {
		return nil, res.err
	}

	c.metrics.incCallRespCount()
	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("response received", "method", "roundTrip", "type", callType, "call_id", id, "resp_type", res.resp.Type)
	}

	return res.resp, nil
}

// hello sends client_hello and (re)arms the keepalive with the announced period.
func (c *Client) hello(ctx context.Context) error {
	cfg := c.app.Config
	resp, err := c.call(ctx, protocol.CallHello, func(id string) any {
		return protocol.NewHelloRequest(id, cfg.AuthRequired, cfg.AppAgent)
	})
	if err != nil || resp == nil {
		return err
	}

	var hello protocol.HelloResponse
	if err := resp.Decode(&hello); err != nil {
		return fmt.Errorf("decode %s response: %w", protocol.CallHello, err)
	}

	c.startHeartbeat(hello.Keepalive)

	return nil
}

// Auth authenticates with creds. On success the returned context is attached to all later requests.
//
// The handshake calls it with the configured credentials when AppConfig.AuthRequired and
// AppConfig.RunConfigAuth are set, otherwise it can be called by the host.
func (c *Client) Auth(ctx context.Context, creds protocol.Credentials) (*protocol.AuthContext, error) {
	resp, err := c.call(ctx, protocol.CallAuth, func(id string) any {
		return protocol.NewAuthRequest(id, creds)
	})
	if err != nil || resp == nil {
		return nil, err
	}

	var authResp protocol.AuthResponse
	if err := resp.Decode(&authResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", protocol.CallAuth, err)
	}

	auth := authResp.AuthContext()
	c.setAuthContext(auth)

	return auth, nil
}

// Intents subscribes to intents, or to the configured intents if intents is nil.
//
// It returns the denied intents. The IntentFail callback of each denied intent is invoked.
func (c *Client) Intents(ctx context.Context, intents []string) ([]string, error) {
	if intents == nil {
		intents = c.app.Config.Intents
	}

	resp, err := c.call(ctx, protocol.CallIntents, func(id string) any {
		return protocol.NewIntentsRequest(id, c.AuthContext(), intents)
	})
	if err != nil || resp == nil {
		return nil, err
	}

	var intentsResp protocol.IntentsResponse
	if err := resp.Decode(&intentsResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", protocol.CallIntents, err)
	}

	for _, intent := range intentsResp.DeniedIntents {
		c.logger.Warn("intent denied", "method", "Intents", "intent", intent)
		if fail := c.app.IntentFail[intent]; fail != nil {
			fail()
		}
	}

	return intentsResp.DeniedIntents, nil
}

// IntentSend publishes data to the subscribers of intent.
func (c *Client) IntentSend(ctx context.Context, intent string, data any) error {
	_, err := c.call(ctx, protocol.CallIntentSend, func(id string) any {
		return protocol.NewIntentSendRequest(id, c.AuthContext(), intent, data)
	})

	return err
}

// IntentSendCreate publishes to an intent and declares its access policy, creating the intent if
// it does not exist. Retries are counted under client_intent_send.
func (c *Client) IntentSendCreate(ctx context.Context, create protocol.IntentCreateData) error {
	_, err := c.call(ctx, protocol.CallIntentSend, func(id string) any {
		return protocol.NewIntentSendCreateRequest(id, c.AuthContext(), create)
	})

	return err
}

// Submessage sends an application defined payload and returns the response unchanged.
// It returns a nil response if the server error was ignored.
func (c *Client) Submessage(ctx context.Context, data any) (*protocol.Response, error) {
	return c.call(ctx, protocol.CallSubmessage, func(id string) any {
		return protocol.NewSubmessageRequest(id, c.AuthContext(), data)
	})
}

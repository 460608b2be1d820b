package client

import (
	"context"

	"github.com/arloliu/go-charws/protocol"
)

const (
	pushTaskName = "intent-dispatch"
	// pushQueueSize bounds the intent pushes received but not yet dispatched.
	// The transport read goroutine waits while the queue is full.
	pushQueueSize = 256
)

// enqueuePush hands an intent push over to the dispatch task, so that IntentReceived handlers
// never run on the transport read goroutine.
func (c *Client) enqueuePush(resp *protocol.Response) {
	ctx := c.runContext()
	if ctx == nil {
		return
	}

	select {
	case c.pushCh <- resp:
	case <-ctx.Done():
		c.logger.Debug("intent push dropped, client stopped", "method", "enqueuePush", "intent", resp.Intent)
	}
}

// pushDispatchTask returns the task invoking IntentReceived handlers in receive order.
//
// A handler may make calls on the client; later pushes wait until it returns.
func (c *Client) pushDispatchTask(ctx context.Context) protocol.TaskFunc {
	return func() bool {
		select {
		case <-ctx.Done():
			return false
		case resp := <-c.pushCh:
			c.dispatchPush(resp)
			return true
		}
	}
}

func (c *Client) dispatchPush(resp *protocol.Response) {
	handler, ok := c.app.IntentReceived[resp.Intent]
	if !ok || handler == nil {
		c.logger.Warn("no handler for intent", "method", "dispatchPush", "intent", resp.Intent)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in intent handler", "method", "dispatchPush", "intent", resp.Intent, "panic", r)
		}
	}()

	handler(resp)
}

// drainPushes drops pushes left over from a previous run.
func (c *Client) drainPushes() {
	for {
		select {
		case <-c.pushCh:
		default:
			return
		}
	}
}

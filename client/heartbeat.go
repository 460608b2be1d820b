package client

import (
	"encoding/json"
	"time"

	"github.com/arloliu/go-charws/protocol"
)

const keepaliveTaskName = "keepalive"

// startHeartbeat replaces the keepalive task by one sending client_keepalive every keepalive units
// on the current transport.
func (c *Client) startHeartbeat(keepalive float64) {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()

	c.taskMgr.StopInterval(keepaliveTaskName)

	if !c.cfg.AutoKeepalive() || keepalive <= 0 {
		return
	}

	at := c.currentTransport()
	if at == nil {
		return
	}

	data, err := json.Marshal(protocol.NewKeepaliveRequest())
	if err != nil {
		c.logger.Error("failed to encode keepalive", "method", "startHeartbeat", "error", err)
		return
	}

	period := time.Duration(keepalive * float64(c.cfg.KeepaliveUnit()))
	err = c.taskMgr.StartInterval(keepaliveTaskName, func() bool {
		if !c.isCurrent(at) {
			return false
		}

		if err := at.tr.Send(data); err != nil {
			c.logger.Warn("failed to send keepalive", "method", "keepaliveTask", "error", err, "gen", at.gen)
			return false
		}
		c.metrics.incKeepaliveSendCount()

		return true
	}, period, false)
	if err != nil {
		c.logger.Error("failed to start keepalive", "method", "startHeartbeat", "error", err)
		return
	}

	c.logger.Debug("keepalive started", "method", "startHeartbeat", "period", period, "gen", at.gen)
}

// stopHeartbeat stops the keepalive task if it is running.
func (c *Client) stopHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()

	if c.taskMgr.StopInterval(keepaliveTaskName) {
		c.logger.Debug("keepalive stopped", "method", "stopHeartbeat")
	}
}

package client

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for a client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// CallSendCount indicates the number of correlated requests sent, retries included.
	CallSendCount atomic.Uint64
	// CallRespCount indicates the number of correlated responses delivered to a waiting call.
	CallRespCount atomic.Uint64
	// CallErrCount indicates the number of server error responses.
	CallErrCount atomic.Uint64
	// CallTimeoutCount indicates the number of calls that got no response in time.
	CallTimeoutCount atomic.Uint64
	// CallRetryCount indicates the number of retried calls.
	CallRetryCount atomic.Uint64
	// CallInflightCount indicates the number of calls waiting for a response.
	CallInflightCount atomic.Int64
	// UnmatchedRespCount indicates the number of responses without a waiting call.
	UnmatchedRespCount atomic.Uint64

	// IntentRecvCount indicates the number of intent pushes received.
	IntentRecvCount atomic.Uint64
	// KeepaliveSendCount indicates the number of keepalive envelopes sent.
	KeepaliveSendCount atomic.Uint64

	// ConnCount indicates the number of transports constructed.
	ConnCount atomic.Uint64
	// ConnRetryGauge indicates the number of connection attempts since the last ready connection.
	ConnRetryGauge atomic.Uint32
}

func (m *ConnectionMetrics) incCallSendCount()      { m.CallSendCount.Add(1) }
func (m *ConnectionMetrics) incCallRespCount()      { m.CallRespCount.Add(1) }
func (m *ConnectionMetrics) incCallErrCount()       { m.CallErrCount.Add(1) }
func (m *ConnectionMetrics) incCallTimeoutCount()   { m.CallTimeoutCount.Add(1) }
func (m *ConnectionMetrics) incCallRetryCount()     { m.CallRetryCount.Add(1) }
func (m *ConnectionMetrics) incCallInflightCount()  { m.CallInflightCount.Add(1) }
func (m *ConnectionMetrics) decCallInflightCount()  { m.CallInflightCount.Add(-1) }
func (m *ConnectionMetrics) incUnmatchedRespCount() { m.UnmatchedRespCount.Add(1) }
func (m *ConnectionMetrics) incIntentRecvCount()    { m.IntentRecvCount.Add(1) }
func (m *ConnectionMetrics) incKeepaliveSendCount() { m.KeepaliveSendCount.Add(1) }
func (m *ConnectionMetrics) incConnCount()          { m.ConnCount.Add(1) }
func (m *ConnectionMetrics) incConnRetryGauge()     { m.ConnRetryGauge.Add(1) }
func (m *ConnectionMetrics) resetConnRetryGauge()   { m.ConnRetryGauge.Store(0) }

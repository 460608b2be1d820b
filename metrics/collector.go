// Package metrics exports the metrics of a charWS client to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-charws/client"
	"github.com/arloliu/go-charws/protocol"
)

// Source provides the metrics and connection state of a client. It is implemented by *client.Client.
type Source interface {
	Metrics() *client.ConnectionMetrics
	State() protocol.ConnState
}

type metricDesc struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(m *client.ConnectionMetrics) float64
}

// ClientCollector is a prometheus.Collector reading the metrics of a client at scrape time.
type ClientCollector struct {
	src     Source
	metrics []metricDesc
	state   *prometheus.Desc
}

var _ prometheus.Collector = (*ClientCollector)(nil)

// NewClientCollector creates a collector for src. Metric names are prefixed with namespace,
// constLabels are added to every metric, e.g. the server URL.
func NewClientCollector(namespace string, src Source, constLabels prometheus.Labels) *ClientCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels)
	}
	counter := func(name, help string, value func(m *client.ConnectionMetrics) float64) metricDesc {
		return metricDesc{desc: desc(name, help), valueType: prometheus.CounterValue, value: value}
	}
	gauge := func(name, help string, value func(m *client.ConnectionMetrics) float64) metricDesc {
		return metricDesc{desc: desc(name, help), valueType: prometheus.GaugeValue, value: value}
	}

	return &ClientCollector{
		src: src,
		metrics: []metricDesc{
			counter("call_sent_total", "Number of correlated requests sent, retries included.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.CallSendCount.Load()) }),
			counter("call_responses_total", "Number of responses delivered to a waiting call.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.CallRespCount.Load()) }),
			counter("call_errors_total", "Number of server error responses.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.CallErrCount.Load()) }),
			counter("call_timeouts_total", "Number of calls without response in time.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.CallTimeoutCount.Load()) }),
			counter("call_retries_total", "Number of retried calls.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.CallRetryCount.Load()) }),
			gauge("calls_inflight", "Number of calls waiting for a response.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.CallInflightCount.Load()) }),
			counter("unmatched_responses_total", "Number of responses without a waiting call.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.UnmatchedRespCount.Load()) }),
			counter("intent_pushes_total", "Number of intent pushes received.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.IntentRecvCount.Load()) }),
			counter("keepalives_sent_total", "Number of keepalive envelopes sent.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.KeepaliveSendCount.Load()) }),
			counter("connections_total", "Number of transports constructed.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.ConnCount.Load()) }),
			gauge("connection_retries", "Number of connection attempts since the last ready connection.",
				func(m *client.ConnectionMetrics) float64 { return float64(m.ConnRetryGauge.Load()) }),
		},
		state: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "connection_ready"),
			"1 if the connection is ready, otherwise 0.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
	ch <- c.state
}

// Collect implements prometheus.Collector.
func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	cm := c.src.Metrics()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(cm))
	}

	ready := 0.0
	if c.src.State().IsReady() {
		ready = 1
	}
	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, ready)
}

// Register registers a collector for src with reg, under the "charws" namespace and a "url" label.
func Register(reg prometheus.Registerer, src Source, url string) (*ClientCollector, error) {
	collector := NewClientCollector("charws", src, prometheus.Labels{"url": url})
	if err := reg.Register(collector); err != nil {
		return nil, err
	}

	return collector, nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector 将 Reporter 导出为 Prometheus 指标
type Collector struct {
	reporter Reporter

	bytes    *prometheus.Desc
	messages *prometheus.Desc
	dropped  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector 创建导出器
func NewCollector(namespace string, r Reporter) *Collector {
	return &Collector{
		reporter: r,
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_total"),
			"SLP message bytes by direction and function.",
			[]string{"direction", "function"}, nil,
		),
		messages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_total"),
			"SLP messages by direction and function.",
			[]string{"direction", "function"}, nil,
		),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "dropped_total"),
			"Received datagrams discarded before delivery.",
			[]string{"reason"}, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytes
	ch <- c.messages
	ch <- c.dropped
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for fn, s := range c.reporter.ByFunction() {
		name := fn.String()
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(s.BytesIn), "in", name)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(s.BytesOut), "out", name)
		ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesIn), "in", name)
		ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesOut), "out", name)
	}
	for reason, n := range c.reporter.Dropped() {
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(n), string(reason))
	}
}

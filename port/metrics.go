package port

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector exports per-port per-queue packet counters to
// prometheus. Ports register once; Collect reads the live atomics so the
// data path never touches a prometheus type.
type StatsCollector struct {
	mu    sync.Mutex
	ports []Port

	rxDesc *prometheus.Desc
	txDesc *prometheus.Desc
}

// NewStatsCollector creates an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		rxDesc: prometheus.NewDesc(
			"netbricks_port_rx_packets_total",
			"Frames received on a port queue.",
			[]string{"port", "queue"}, nil,
		),
		txDesc: prometheus.NewDesc(
			"netbricks_port_tx_packets_total",
			"Frames transmitted on a port queue.",
			[]string{"port", "queue"}, nil,
		),
	}
}

// Add registers a port for collection.
func (c *StatsCollector) Add(p Port) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports = append(c.ports, p)
}

func (c *StatsCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.rxDesc
	descs <- c.txDesc
}

func (c *StatsCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.ports {
		for q := 0; q < p.Rxqs(); q++ {
			rx, tx := p.Stats(q)
			queueLabel := strconv.Itoa(q)
			metrics <- prometheus.MustNewConstMetric(c.rxDesc, prometheus.CounterValue, float64(rx), p.Name(), queueLabel)
			metrics <- prometheus.MustNewConstMetric(c.txDesc, prometheus.CounterValue, float64(tx), p.Name(), queueLabel)
		}
	}
}


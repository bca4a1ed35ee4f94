// Package metrics exposes pool and broker statistics as Prometheus
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/framenode/internal/broker"
	"github.com/smazurov/framenode/internal/pool"
)

// Collector snapshots the pool and broker stats on every scrape.
type Collector struct {
	pool   *pool.Pool
	broker *broker.Broker

	poolTotal       *prometheus.Desc
	poolAvailable   *prometheus.Desc
	poolInUse       *prometheus.Desc
	poolInFlight    *prometheus.Desc
	poolMaxInUse    *prometheus.Desc
	poolMaxInFlight *prometheus.Desc
	poolAcquires    *prometheus.Desc
	poolReleases    *prometheus.Desc
	poolFailures    *prometheus.Desc

	brokerPublished   *prometheus.Desc
	brokerDispatched  *prometheus.Desc
	brokerDropped     *prometheus.Desc
	brokerQueueSize   *prometheus.Desc
	brokerSubscribers *prometheus.Desc
}

// NewCollector creates a collector over the given pool and broker.
func NewCollector(p *pool.Pool, b *broker.Broker) *Collector {
	return &Collector{
		pool:   p,
		broker: b,

		poolTotal:       prometheus.NewDesc("framenode_pool_buffers_total", "Number of buffers the pool owns", nil, nil),
		poolAvailable:   prometheus.NewDesc("framenode_pool_buffers_available", "Buffers currently free", nil, nil),
		poolInUse:       prometheus.NewDesc("framenode_pool_buffers_in_use", "Buffers held by the capture path", nil, nil),
		poolInFlight:    prometheus.NewDesc("framenode_pool_buffers_in_flight", "Buffers inside the dispatch fabric", nil, nil),
		poolMaxInUse:    prometheus.NewDesc("framenode_pool_buffers_in_use_max", "High-water mark of in-use buffers", nil, nil),
		poolMaxInFlight: prometheus.NewDesc("framenode_pool_buffers_in_flight_max", "High-water mark of in-flight buffers", nil, nil),
		poolAcquires:    prometheus.NewDesc("framenode_pool_acquires_total", "Buffer acquisition attempts", nil, nil),
		poolReleases:    prometheus.NewDesc("framenode_pool_releases_total", "Buffer releases", nil, nil),
		poolFailures:    prometheus.NewDesc("framenode_pool_acquire_failures_total", "Acquisitions that found the pool exhausted", nil, nil),

		brokerPublished:   prometheus.NewDesc("framenode_broker_published_frames_total", "Frames published with at least one live subscriber", nil, nil),
		brokerDispatched:  prometheus.NewDesc("framenode_broker_dispatched_tasks_total", "Subscriber callbacks completed", nil, nil),
		brokerDropped:     prometheus.NewDesc("framenode_broker_dropped_tasks_total", "Tasks refused at enqueue because the queue was full", nil, nil),
		brokerQueueSize:   prometheus.NewDesc("framenode_broker_queue_size", "Tasks currently queued", nil, nil),
		brokerSubscribers: prometheus.NewDesc("framenode_broker_subscribers", "Live subscribers", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolTotal
	ch <- c.poolAvailable
	ch <- c.poolInUse
	ch <- c.poolInFlight
	ch <- c.poolMaxInUse
	ch <- c.poolMaxInFlight
	ch <- c.poolAcquires
	ch <- c.poolReleases
	ch <- c.poolFailures
	ch <- c.brokerPublished
	ch <- c.brokerDispatched
	ch <- c.brokerDropped
	ch <- c.brokerQueueSize
	ch <- c.brokerSubscribers
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ps := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.poolTotal, prometheus.GaugeValue, float64(ps.Total))
	ch <- prometheus.MustNewConstMetric(c.poolAvailable, prometheus.GaugeValue, float64(ps.Available))
	ch <- prometheus.MustNewConstMetric(c.poolInUse, prometheus.GaugeValue, float64(ps.InUse))
	ch <- prometheus.MustNewConstMetric(c.poolInFlight, prometheus.GaugeValue, float64(ps.InFlight))
	ch <- prometheus.MustNewConstMetric(c.poolMaxInUse, prometheus.GaugeValue, float64(ps.MaxInUse))
	ch <- prometheus.MustNewConstMetric(c.poolMaxInFlight, prometheus.GaugeValue, float64(ps.MaxInFlight))
	ch <- prometheus.MustNewConstMetric(c.poolAcquires, prometheus.CounterValue, float64(ps.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.poolReleases, prometheus.CounterValue, float64(ps.ReleaseCount))
	ch <- prometheus.MustNewConstMetric(c.poolFailures, prometheus.CounterValue, float64(ps.AcquireFail))

	bs := c.broker.Stats()
	ch <- prometheus.MustNewConstMetric(c.brokerPublished, prometheus.CounterValue, float64(bs.PublishedFrames))
	ch <- prometheus.MustNewConstMetric(c.brokerDispatched, prometheus.CounterValue, float64(bs.DispatchedTasks))
	ch <- prometheus.MustNewConstMetric(c.brokerDropped, prometheus.CounterValue, float64(bs.DroppedTasks))
	ch <- prometheus.MustNewConstMetric(c.brokerQueueSize, prometheus.GaugeValue, float64(bs.QueueSize))
	ch <- prometheus.MustNewConstMetric(c.brokerSubscribers, prometheus.GaugeValue, float64(bs.SubscriberCount))
}

// Handler registers the collector on a fresh registry and returns the
// Prometheus scrape handler for it.
func Handler(p *pool.Pool, b *broker.Broker) (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(p, b))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

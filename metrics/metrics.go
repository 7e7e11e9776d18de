// Package metrics exports graph run metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallnest/tenantflow/graph"
)

const namespace = "tenantflow"

// Collector records graph spans. It implements graph.TraceHook.
type Collector struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	nodes        *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	edges        *prometheus.CounterVec
	activeRuns   *prometheus.GaugeVec
}

var _ graph.TraceHook = (*Collector)(nil)

// NewCollector creates a collector on its own registry, which also carries
// the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_runs_total",
			Help:      "Completed graph runs by outcome.",
		}, []string{"graph", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_run_duration_seconds",
			Help:      "Wall time of graph runs.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"graph"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Node executions by outcome.",
		}, []string{"graph", "node", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Wall time of node executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"graph", "node"}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edge_traversals_total",
			Help:      "Edges taken between nodes.",
		}, []string{"graph", "from", "to"}),
		activeRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_runs_active",
			Help:      "Graph runs in flight.",
		}, []string{"graph"}),
	}
	c.registry.MustRegister(
		c.runs, c.runDuration, c.nodes, c.nodeDuration, c.edges, c.activeRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Tracer returns a graph tracer reporting to c.
func (c *Collector) Tracer() *graph.Tracer {
	return graph.NewTracer(c)
}

// OnEvent implements graph.TraceHook.
func (c *Collector) OnEvent(_ context.Context, span *graph.TraceSpan) {
	switch span.Event {
	case graph.TraceEventGraphStart:
		c.activeRuns.WithLabelValues(span.Graph).Inc()
	case graph.TraceEventGraphEnd:
		c.activeRuns.WithLabelValues(span.Graph).Dec()
		c.runs.WithLabelValues(span.Graph, status(span.Error)).Inc()
		c.runDuration.WithLabelValues(span.Graph).Observe(span.Duration.Seconds())
	case graph.TraceEventNodeEnd, graph.TraceEventNodeError:
		c.nodes.WithLabelValues(span.Graph, span.NodeName, status(span.Error)).Inc()
		c.nodeDuration.WithLabelValues(span.Graph, span.NodeName).Observe(span.Duration.Seconds())
	case graph.TraceEventEdgeTraversal:
		c.edges.WithLabelValues(span.Graph, span.FromNode, span.ToNode).Inc()
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

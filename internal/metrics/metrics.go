/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the daemon's internal gauges (queue depths,
// save-list sizes, discoverer state) to prometheus/client_golang. Ambient
// observability, carried even though spec.md's core is silent on it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the registered gauge set. One instance per Factory; Register
// panics only on duplicate registration of the same *prometheus.Registry,
// which cannot happen with the private registry New creates.
type Metrics struct {
	Registry *prometheus.Registry

	ParallelQueueDepth prometheus.Gauge
	TimerQueueDepth    prometheus.Gauge

	UpstreamSaveSize   *prometheus.GaugeVec
	DownstreamSaveSize *prometheus.GaugeVec

	DiscovererState *prometheus.GaugeVec
	HierarchyWeight prometheus.Gauge

	ConnectionsActive prometheus.Gauge

	KernelsRouted  *prometheus.CounterVec
	KernelsDropped prometheus.Counter
}

// New creates a fresh, private registry and registers every gauge on it, so
// multiple Factory instances in the same process (tests) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ParallelQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sbn",
			Subsystem: "parallel",
			Name:      "queue_depth",
			Help:      "Number of kernels waiting in the parallel pipeline's ready queue.",
		}),
		TimerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sbn",
			Subsystem: "timer",
			Name:      "queue_depth",
			Help:      "Number of kernels waiting in the timer pipeline's priority queue.",
		}),
		UpstreamSaveSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sbn",
			Subsystem: "transport",
			Name:      "upstream_save_size",
			Help:      "Kernels sent upstream on a connection awaiting their downstream reply.",
		}, []string{"peer"}),
		DownstreamSaveSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sbn",
			Subsystem: "transport",
			Name:      "downstream_save_size",
			Help:      "Kernels accepted for local execution on behalf of a peer.",
		}, []string{"peer"}),
		DiscovererState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sbn",
			Subsystem: "discoverer",
			Name:      "state",
			Help:      "Current discoverer state (1 for the active state, 0 otherwise) per interface.",
		}, []string{"interface", "state"}),
		HierarchyWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sbn",
			Subsystem: "hierarchy",
			Name:      "own_weight",
			Help:      "This node's own_weight as last propagated to its superior.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sbn",
			Subsystem: "socket",
			Name:      "connections_active",
			Help:      "Number of connections currently in state started.",
		}),
		KernelsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sbn",
			Subsystem: "factory",
			Name:      "kernels_routed_total",
			Help:      "Kernels routed, partitioned by destination pipeline.",
		}, []string{"pipeline"}),
		KernelsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sbn",
			Subsystem: "factory",
			Name:      "kernels_dropped_total",
			Help:      "Kernels that fell back with no_upstream_servers_available, plus foreign-application kernels discarded.",
		}),
	}

	reg.MustRegister(
		m.ParallelQueueDepth,
		m.TimerQueueDepth,
		m.UpstreamSaveSize,
		m.DownstreamSaveSize,
		m.DiscovererState,
		m.HierarchyWeight,
		m.ConnectionsActive,
		m.KernelsRouted,
		m.KernelsDropped,
	)

	return m
}

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

package factory

import (
	"net/netip"

	"github.com/nabbar/sbn/internal/hierarchy"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/metrics"
	"github.com/nabbar/sbn/internal/transport"
)

// ParallelSender is satisfied by pipeline/parallel.Pipeline.
type ParallelSender interface {
	Send(k *kernel.Kernel)
}

// TimerSender is satisfied by pipeline/timer.Pipeline.
type TimerSender interface {
	Send(k *kernel.Kernel)
}

// PeerSender is satisfied by both pipeline/socket.Pipeline (peer address) and
// pipeline/process.Pipeline (application id); Router picks the right one by
// the kernel's shape.
type PeerSender interface {
	Connection(addr netip.AddrPort) (*transport.Connection, bool)
}

// AppSender is satisfied by pipeline/process.Pipeline.
type AppSender interface {
	Connection(applicationID uint64) (*transport.Connection, bool)
}

// Router implements the routing table: every kernel handed to Route or Run
// lands on exactly one pipeline, never both and never neither (Property 1,
// routing totality). It is built by the daemon's composition step once every
// pipeline has been constructed, then wired into each pipeline's Router or
// Principal dependency before Factory.Start runs them in order.
type Router struct {
	Parallel ParallelSender
	Timer    TimerSender
	Socket   PeerSender
	Process  AppSender

	Hierarchy *hierarchy.Hierarchy
	Metrics   *metrics.Metrics
}

// NewRouter returns a Router with no pipeline wired yet; callers set the
// exported fields once every pipeline component exists.
func NewRouter(h *hierarchy.Hierarchy, m *metrics.Metrics) *Router {
	return &Router{Hierarchy: h, Metrics: m}
}

// Run implements pipeline/parallel.Principal: a worker popped k off a ready
// or downstream queue, so it's time to run act (upstream) or react/on_error
// (downstream) and route whatever comes out.
func (r *Router) Run(k *kernel.Kernel) {
	if k.MovesUpstream() {
		k.ReturnCode = k.Payload.Act(k)
		r.Route(k)
		return
	}

	reply := kernel.New(k.Type, k.Payload)
	reply.ID = k.ID
	reply.ApplicationID = k.ApplicationID
	reply.Principal = k.Principal
	reply.Source = k.Destination
	reply.Destination = k.Source

	if k.ReturnCode == kernel.Success {
		reply.ReturnCode = k.Payload.React(k, reply)
	} else {
		reply.ReturnCode = k.Payload.OnError(k, reply)
	}

	r.Route(reply)
}

// Route places k on exactly one of: the timer (it's scheduled for later), a
// peer connection (superior, subordinate, or an explicit destination), the
// process pipeline (another application on this node), or the parallel pool
// (local, immediate execution) — the table of spec §4.7.
func (r *Router) Route(k *kernel.Kernel) {
	switch {
	case !k.At.IsZero():
		r.count("timer")
		r.Timer.Send(k)

	case k.Destination.IsValid():
		r.deliver(k, k.Destination, "socket")

	case k.MovesUpstream() && k.HasFlag(kernel.FlagSendToSuperiorNode):
		sup, ok := r.Hierarchy.Superior()
		if !ok {
			r.dropUpstream(k)
			return
		}
		r.deliver(k, sup.Address, "socket")

	case k.MovesUpstream() && len(r.Hierarchy.Subordinates()) > 0:
		sub, ok := r.Hierarchy.PickSubordinate(k.ID)
		if !ok {
			r.dropUpstream(k)
			return
		}
		r.deliver(k, sub.Address, "socket")

	case !k.MovesUpstream() && r.Process != nil && k.ApplicationID != 0:
		if conn, ok := r.Process.Connection(k.ApplicationID); ok {
			r.count("process")
			if err := conn.Send(k); err == nil {
				return
			}
		}
		r.count("parallel")
		r.Parallel.Send(k)

	default:
		r.count("parallel")
		r.Parallel.Send(k)
	}
}

func (r *Router) deliver(k *kernel.Kernel, addr netip.AddrPort, pipeline string) {
	if r.Socket != nil {
		if conn, ok := r.Socket.Connection(addr); ok {
			r.count(pipeline)
			if err := conn.Send(k); err == nil {
				return
			}
		}
	}
	r.dropUpstream(k)
}

// dropUpstream implements the no_upstream_servers_available edge case: the
// kernel can't reach the peer its flags name, so it's run locally with the
// terminal return code that tells its principal the route didn't exist.
func (r *Router) dropUpstream(k *kernel.Kernel) {
	k.ReturnCode = kernel.NoUpstreamServersAvailable
	if r.Metrics != nil {
		r.Metrics.KernelsDropped.Inc()
	}
	r.count("parallel")
	r.Parallel.Send(k)
}

func (r *Router) count(pipeline string) {
	if r.Metrics != nil {
		r.Metrics.KernelsRouted.WithLabelValues(pipeline).Inc()
	}
}

// Deliverer adapts a Router to transport.Deliverer, so every Connection a
// pipeline owns (socket, process) can reach back into the routing
// table on its receive path without importing any pipeline package.
type Deliverer struct {
	Router *Router
}

// NewDeliverer returns a Deliverer bound to r.
func NewDeliverer(r *Router) *Deliverer {
	return &Deliverer{Router: r}
}

// Deliver hands a kernel the wire decoded off a Connection straight to the
// parallel pool: its act or react/on_error still needs to run, exactly the
// job a worker does when it pops a kernel off a queue.
func (d *Deliverer) Deliver(k *kernel.Kernel) {
	d.Router.Parallel.Send(k)
}

// DeliverForeign is reached when a peer forwards a kernel whose application
// id is neither 0 nor this node's own: the kernel belongs to an application
// hosted elsewhere. There is no location service yet mapping a foreign
// application id back to the node that hosts it, so the raw body cannot be
// re-encoded toward its owner; it is counted as dropped rather than executed
// against the wrong application.
func (d *Deliverer) DeliverForeign(_ *kernel.ForeignKernel) {
	if d.Router.Metrics != nil {
		d.Router.Metrics.KernelsDropped.Inc()
	}
}

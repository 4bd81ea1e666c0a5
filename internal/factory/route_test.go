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
	"testing"
	"time"

	"github.com/nabbar/sbn/internal/hierarchy"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/transport"
)

type nopPayload struct{}

func (nopPayload) Act(*kernel.Kernel) kernel.ExitCode          { return kernel.Success }
func (nopPayload) React(_, _ *kernel.Kernel) kernel.ExitCode   { return kernel.Success }
func (nopPayload) OnError(_, _ *kernel.Kernel) kernel.ExitCode { return kernel.Error }
func (nopPayload) Write() ([]byte, error)                      { return nil, nil }
func (nopPayload) Read(b []byte) error                         { return nil }

type noopDeliverer struct{}

func (noopDeliverer) Deliver(*kernel.Kernel)              {}
func (noopDeliverer) DeliverForeign(*kernel.ForeignKernel) {}

func newStubConnection() *transport.Connection {
	return transport.NewConnection(1, registry.NewTypes(), registry.NewInstance(), noopDeliverer{})
}

type recordingSender struct {
	name string
	got  []*kernel.Kernel
}

func (s *recordingSender) Send(k *kernel.Kernel) { s.got = append(s.got, k) }

func TestRouterRouteScheduledGoesToTimer(t *testing.T) {
	timer := &recordingSender{}
	r := &Router{Timer: timer, Parallel: &recordingSender{}, Hierarchy: hierarchy.New(netip.MustParsePrefix("10.0.0.0/24"), localAddr())}

	k := kernel.New(1, nopPayload{})
	k.At = time.Now().Add(time.Second)
	r.Route(k)

	if len(timer.got) != 1 {
		t.Fatalf("expected scheduled kernel routed to timer, got %d", len(timer.got))
	}
}

func TestRouterRouteUpstreamWithSubordinatesGoesToSocket(t *testing.T) {
	h := hierarchy.New(netip.MustParsePrefix("10.0.0.0/24"), localAddr())
	h.AddSubordinate(hierarchy.Node{Address: netip.MustParseAddrPort("10.0.0.9:9000"), Weight: 1})

	parallel := &recordingSender{}
	r := &Router{
		Parallel:  parallel,
		Timer:     &recordingSender{},
		Socket:    stubPeerSender{ok: true},
		Hierarchy: h,
	}

	k := kernel.New(1, nopPayload{})
	k.ReturnCode = kernel.Undefined
	r.Route(k)

	if len(parallel.got) != 0 {
		t.Fatalf("expected upstream kernel to skip the parallel pool when a subordinate exists")
	}
}

func TestRouterRouteUpstreamStandaloneGoesToParallel(t *testing.T) {
	h := hierarchy.New(netip.MustParsePrefix("10.0.0.0/24"), localAddr())
	parallel := &recordingSender{}
	r := &Router{Parallel: parallel, Timer: &recordingSender{}, Hierarchy: h}

	k := kernel.New(1, nopPayload{})
	k.ReturnCode = kernel.Undefined
	r.Route(k)

	if len(parallel.got) != 1 {
		t.Fatalf("expected standalone upstream kernel routed to the parallel pool, got %d", len(parallel.got))
	}
}

func TestRouterRouteNoUpstreamServerFallsBackWithErrorCode(t *testing.T) {
	h := hierarchy.New(netip.MustParsePrefix("10.0.0.0/24"), localAddr())
	h.AddSubordinate(hierarchy.Node{Address: netip.MustParseAddrPort("10.0.0.9:9000"), Weight: 1})

	parallel := &recordingSender{}
	r := &Router{
		Parallel:  parallel,
		Timer:     &recordingSender{},
		Socket:    stubPeerSender{ok: false},
		Hierarchy: h,
	}

	k := kernel.New(1, nopPayload{})
	k.ReturnCode = kernel.Undefined
	r.Route(k)

	if len(parallel.got) != 1 {
		t.Fatalf("expected the kernel to fall back to the parallel pool, got %d", len(parallel.got))
	}
	if parallel.got[0].ReturnCode != kernel.NoUpstreamServersAvailable {
		t.Fatalf("ReturnCode = %v, want NoUpstreamServersAvailable", parallel.got[0].ReturnCode)
	}
}

// every Route call below lands on exactly one sink: Property 1, routing
// totality.
func TestRouterRouteIsTotal(t *testing.T) {
	h := hierarchy.New(netip.MustParsePrefix("10.0.0.0/24"), localAddr())
	h.AddSubordinate(hierarchy.Node{Address: netip.MustParseAddrPort("10.0.0.9:9000"), Weight: 1})

	cases := []struct {
		name string
		k    *kernel.Kernel
	}{
		{"scheduled", func() *kernel.Kernel { k := kernel.New(1, nopPayload{}); k.At = time.Now().Add(time.Minute); return k }()},
		{"explicit destination", func() *kernel.Kernel {
			k := kernel.New(1, nopPayload{})
			k.Destination = netip.MustParseAddrPort("10.0.0.9:9000")
			return k
		}()},
		{"send to superior", func() *kernel.Kernel {
			k := kernel.New(1, nopPayload{})
			k.SetFlag(kernel.FlagSendToSuperiorNode)
			return k
		}()},
		{"upstream with subordinates", kernel.New(1, nopPayload{})},
		{"downstream to another application", func() *kernel.Kernel {
			k := kernel.New(1, nopPayload{})
			k.ReturnCode = kernel.Success
			k.ApplicationID = 42
			return k
		}()},
		{"downstream local", func() *kernel.Kernel {
			k := kernel.New(1, nopPayload{})
			k.ReturnCode = kernel.Success
			return k
		}()},
	}

	for _, tc := range cases {
		hits := &sinkCounter{}
		r := &Router{
			Timer:     hits.sender("timer"),
			Parallel:  hits.sender("parallel"),
			Socket:    hits.peer("socket"),
			Process:   hits.app("process"),
			Hierarchy: h,
		}
		r.Route(tc.k)

		if hits.total() != 1 {
			t.Fatalf("%s: kernel landed on %d sinks (%v), want exactly 1", tc.name, hits.total(), hits.hits)
		}
	}
}

// sinkCounter counts, across every pipeline kind Router can target, how many
// times a kernel was actually delivered, so routing totality can be checked
// without caring which concrete sink it was.
type sinkCounter struct{ hits []string }

func (s *sinkCounter) total() int { return len(s.hits) }

func (s *sinkCounter) sender(name string) ParallelSender {
	return senderFunc(func(*kernel.Kernel) { s.hits = append(s.hits, name) })
}

func (s *sinkCounter) peer(name string) PeerSender {
	return peerFunc(func(netip.AddrPort) (*transport.Connection, bool) {
		s.hits = append(s.hits, name)
		return newStubConnection(), true
	})
}

func (s *sinkCounter) app(name string) AppSender {
	return appFunc(func(uint64) (*transport.Connection, bool) {
		s.hits = append(s.hits, name)
		return newStubConnection(), true
	})
}

type senderFunc func(*kernel.Kernel)

func (f senderFunc) Send(k *kernel.Kernel) { f(k) }

type peerFunc func(netip.AddrPort) (*transport.Connection, bool)

func (f peerFunc) Connection(addr netip.AddrPort) (*transport.Connection, bool) { return f(addr) }

type appFunc func(uint64) (*transport.Connection, bool)

func (f appFunc) Connection(applicationID uint64) (*transport.Connection, bool) { return f(applicationID) }

func localAddr() netip.AddrPort {
	return netip.MustParseAddrPort("10.0.0.5:9000")
}

type stubPeerSender struct{ ok bool }

func (s stubPeerSender) Connection(addr netip.AddrPort) (*transport.Connection, bool) {
	if !s.ok {
		return nil, false
	}
	return newStubConnection(), true
}

type stubAppSender struct{ ok bool }

func (s stubAppSender) Connection(applicationID uint64) (*transport.Connection, bool) {
	if !s.ok {
		return nil, false
	}
	return newStubConnection(), true
}

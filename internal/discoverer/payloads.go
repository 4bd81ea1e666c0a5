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

package discoverer

import (
	"net/netip"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"github.com/nabbar/sbn/internal/hierarchy"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
)

// TypeProbe and TypeHierarchy are the discoverer's two control-kernel types.
const (
	TypeProbe kernel.TypeID = 1 + iota
	TypeHierarchy
)

// RegisterTypes binds the discoverer's control-kernel types into the shared
// type registry so internal/wire can decode them off the socket pipeline
// like any other kernel.
func RegisterTypes(t registry.Types) {
	t.Register(TypeProbe, func() kernel.Payload { return &ProbeKernel{} })
	t.Register(TypeHierarchy, func() kernel.Payload { return &HierarchyKernel{} })
}

// current is the one Discoverer instance running in this process, set by
// Start and cleared by Stop. A registry.FuncNewPayload constructor carries no
// state of its own, so Act/React reach the live instance through here,
// exactly like any other singleton daemon component.
var current atomic.Pointer[Discoverer]

// ProbeKernel is spec §4.8's probe message: the sender asks NewPrincipal to
// become its superior, naming the OldPrincipal it is leaving (if any) so the
// accepting node can notify it.
type ProbeKernel struct {
	OldPrincipal  netip.AddrPort
	NewPrincipal  netip.AddrPort
	InterfaceAddr netip.AddrPort
	Accepted      bool
}

// Act runs on the probed candidate: decide whether to accept. The decision
// travels back to the sender in the Accepted field once this kernel's reply
// round-trips through the wire codec.
func (p *ProbeKernel) Act(k *kernel.Kernel) kernel.ExitCode {
	d := current.Load()
	if d == nil {
		return kernel.Error
	}
	p.Accepted = d.acceptProbe(p)
	return kernel.Success
}

// React runs on the original sender once the probed candidate's reply comes
// back: promote the candidate to superior on acceptance, otherwise leave the
// state machine in probing so the next tick tries the following candidate.
func (p *ProbeKernel) React(k, reply *kernel.Kernel) kernel.ExitCode {
	if d := current.Load(); d != nil {
		d.handleProbeReply(p)
	}
	return kernel.Success
}

func (p *ProbeKernel) OnError(k, reply *kernel.Kernel) kernel.ExitCode { return kernel.Error }

func (p *ProbeKernel) Read(b []byte) error    { return cbor.Unmarshal(b, p) }
func (p *ProbeKernel) Write() ([]byte, error) { return cbor.Marshal(p) }

// HierarchyKernel announces a node's advertised weight to its superior, or
// its departure when Weight is 0, per spec §4.8 "emit a hierarchy kernel...
// so they update subordinate lists" and "push an updated hierarchy kernel
// toward the superior".
type HierarchyKernel struct {
	Address netip.AddrPort
	Weight  uint64
}

func (h *HierarchyKernel) Act(k *kernel.Kernel) kernel.ExitCode {
	d := current.Load()
	if d == nil {
		return kernel.Error
	}
	d.recordSubordinate(h.Address, h.Weight)
	return kernel.Success
}

func (h *HierarchyKernel) React(k, reply *kernel.Kernel) kernel.ExitCode   { return kernel.Success }
func (h *HierarchyKernel) OnError(k, reply *kernel.Kernel) kernel.ExitCode { return kernel.Error }

func (h *HierarchyKernel) Read(b []byte) error    { return cbor.Unmarshal(b, h) }
func (h *HierarchyKernel) Write() ([]byte, error) { return cbor.Marshal(h) }

func (d *Discoverer) acceptProbe(p *ProbeKernel) bool {
	for _, is := range d.ifaces {
		if is.local == p.NewPrincipal {
			return true
		}
	}
	return false
}

func (d *Discoverer) handleProbeReply(p *ProbeKernel) {
	is, ok := d.ifaces[p.InterfaceAddr]
	if !ok {
		return
	}

	if !p.Accepted {
		return
	}

	is.mu.Lock()
	is.state = StateJoined
	is.mu.Unlock()

	is.tree.SetSuperior(hierarchy.Node{Address: p.NewPrincipal})

	if !p.OldPrincipal.IsValid() || p.OldPrincipal == p.NewPrincipal {
		return
	}

	if conn, ok := d.transport.Connection(p.OldPrincipal); ok {
		h := &HierarchyKernel{Address: is.local, Weight: 0}
		k := kernel.New(TypeHierarchy, h)
		k.ApplicationID = d.localApp
		k.Destination = p.OldPrincipal
		_ = conn.Send(k)
	}
}

// recordSubordinate applies a subordinate's weight update (or, if weight is
// 0, its departure) to every configured interface's hierarchy. A node binds
// few interfaces in practice, so this is not the imprecision it would be on
// a host with many unrelated subnets.
func (d *Discoverer) recordSubordinate(addr netip.AddrPort, weight uint64) {
	for _, is := range d.ifaces {
		if weight == 0 {
			is.tree.RemoveSubordinate(addr)
			continue
		}
		is.tree.AddSubordinate(hierarchy.Node{Address: addr, Weight: weight})
	}
}

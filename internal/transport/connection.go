/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

// Package transport implements the connection and kernel protocol shared by
// every byte-stream peer: the two buffers, the upstream/downstream save
// lists, and the send/receive/peer-loss state machine of spec §4.4.
package transport

import (
	"sync"

	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/wire"
)

// State is the connection's finite state, encoded explicitly per the Design
// Notes so every event is a pure function from (state, event) to (state', actions).
type State uint8

const (
	StateStarting State = iota
	StateStarted
	StateStopping
	StateStopped
	StateInactive
)

// Deliverer hands a locally-owned kernel to whichever pipeline should run its
// act/react next; it is how a Connection reaches back into the factory's
// routing decision without importing it.
type Deliverer interface {
	Deliver(k *kernel.Kernel)
	DeliverForeign(f *kernel.ForeignKernel)
}

// Connection holds a peer's protocol state: the two buffers, the type and
// instance registries, and the two save lists that drive recovery.
type Connection struct {
	mu sync.Mutex

	state State

	in  *wire.Buffer
	out *wire.Buffer

	types    registry.Types
	instance registry.Instance

	// upstreamSave: kernels sent upstream but not yet acknowledged by a
	// downstream reply of the same id.
	upstreamSave map[uint64]*kernel.Kernel
	// downstreamSave: kernels accepted for local execution on behalf of the
	// peer, cleared once their downstream send actually goes out.
	downstreamSave map[uint64]*kernel.Kernel

	localApp uint64
	deliver  Deliverer
}

func NewConnection(localApp uint64, types registry.Types, instance registry.Instance, deliver Deliverer) *Connection {
	return &Connection{
		state:          StateStarting,
		in:             wire.NewBuffer(),
		out:            wire.NewBuffer(),
		types:          types,
		instance:       instance,
		upstreamSave:   make(map[uint64]*kernel.Kernel),
		downstreamSave: make(map[uint64]*kernel.Kernel),
		localApp:       localApp,
		deliver:        deliver,
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// OutBuffer/InBuffer expose the single-owner buffers to the poller thread
// that drives this connection's fd.
func (c *Connection) OutBuffer() *wire.Buffer { return c.out }
func (c *Connection) InBuffer() *wire.Buffer  { return c.in }

// Send implements the send path of §4.4: record upstream kernels in
// upstreamSave by pointer (assigning an id if missing; no serialized copy is
// kept), and frame-write into the output buffer.
func (c *Connection) Send(k *kernel.Kernel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if k.MovesUpstream() {
		if k.ID == 0 {
			c.instance.Register(k)
		}
		c.upstreamSave[k.ID] = k
	} else {
		// a downstream reply going out clears the matching downstream save.
		delete(c.downstreamSave, k.ID)
	}

	raw, err := wire.EncodeKernel(k)
	if err != nil {
		return err
	}
	c.out.WriteFrame(raw)
	return nil
}

// PumpReceive drains every complete frame currently buffered in InBuffer,
// running the receive path of §4.4 on each.
func (c *Connection) PumpReceive() error {
	for {
		c.mu.Lock()
		raw, ok := c.in.ReadFrame()
		c.mu.Unlock()
		if !ok {
			return nil
		}

		if err := c.handleFrame(raw); err != nil {
			return err
		}
	}
}

func (c *Connection) handleFrame(raw []byte) error {
	k, err := wire.DecodeKernel(raw, c.types)
	if err != nil {
		// serialization errors drop the frame and are logged by the caller;
		// they must not kill the pipeline.
		return nil
	}

	if k.ApplicationID != 0 && k.ApplicationID != c.localApp {
		foreign, ferr := wire.DecodeForeign(k.Type, raw[2:])
		if ferr != nil {
			return nil
		}
		c.deliver.DeliverForeign(foreign)
		return nil
	}

	if !k.MovesUpstream() {
		// downstream: the reply acknowledges the matching upstream save; then
		// resolve principal by id and rebind the pointer.
		c.mu.Lock()
		delete(c.upstreamSave, k.ID)
		c.mu.Unlock()
		if k.Principal.IsID {
			if p, found := c.instance.Lookup(k.Principal.ID); found {
				k.Principal = kernel.RefToHandle(kernel.Handle(p.ID))
			} else {
				// principal gone: the kernel is not dropped; it is delivered
				// below with return code no_principal_found.
				k.ReturnCode = kernel.NoPrincipalFound
			}
		}
	} else {
		c.mu.Lock()
		c.downstreamSave[k.ID] = k
		c.mu.Unlock()
	}

	c.deliver.Deliver(k)
	return nil
}

// ClearDownstreamSave removes a kernel once its downstream send has actually
// gone out, per the downstreamSave clearing rule.
func (c *Connection) ClearDownstreamSave(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.downstreamSave, id)
}

// UpstreamSaveLen and DownstreamSaveLen exist for the save-list invariant tests.
func (c *Connection) UpstreamSaveLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.upstreamSave)
}

func (c *Connection) DownstreamSaveLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.downstreamSave)
}

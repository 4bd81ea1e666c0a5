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

package transport

import "github.com/nabbar/sbn/internal/kernel"

// Sack accepts orphaned kernels for graceful destruction when no local
// principal can be found, mirroring the runtime's shutdown kernel sack.
type Sack interface {
	Add(k *kernel.Kernel)
}

// PeerLoss runs the first two peer-loss steps of §4.4 when a connection
// detects EOF, a write error, or a start-timeout expiry without progress;
// erasing the connection from its table (step 3) is left to the caller.
func (c *Connection) PeerLoss(sack Sack) {
	c.mu.Lock()
	upstream := make([]*kernel.Kernel, 0, len(c.upstreamSave))
	for _, k := range c.upstreamSave {
		upstream = append(upstream, k)
	}
	downstream := make([]*kernel.Kernel, 0, len(c.downstreamSave))
	for _, k := range c.downstreamSave {
		downstream = append(downstream, k)
	}
	c.upstreamSave = make(map[uint64]*kernel.Kernel)
	c.downstreamSave = make(map[uint64]*kernel.Kernel)
	c.state = StateInactive
	c.mu.Unlock()

	// step 1: every upstream-saved kernel is recovered with
	// endpoint_not_connected and routed back toward its principal locally.
	for _, k := range upstream {
		k.ReturnCode = kernel.EndpointNotConnected
		c.deliver.Deliver(k)
	}

	// step 2: every downstream-saved kernel is orphaned.
	for _, k := range downstream {
		if k.Principal.IsUnset() {
			sack.Add(k)
			continue
		}
		k.ReturnCode = kernel.Error
		if p, found := c.instance.Lookup(k.Principal.ID); found {
			k.Principal = kernel.RefToHandle(kernel.Handle(p.ID))
			c.deliver.Deliver(k)
		} else {
			sack.Add(k)
		}
	}

	// step 3: the connection itself is erased from its table by the caller
	// (the owning pipeline), which observes PeerLoss returning.
}

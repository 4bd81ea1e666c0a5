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

package unixsock

import (
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/transport"
)

// localDeliverer is the transport.Deliverer bound to one accepted CLI
// connection. A CLI kernel always moves upstream on arrival (it is a fresh
// submit/status/terminate request), so Deliver runs act immediately, builds
// the reply the same way the factory's Router would, and sends it back down
// the one Connection it came in on — there is no peer address or application
// id to route by, so the general routing table never sees these kernels.
type localDeliverer struct {
	conn   *transport.Connection
	getLog log.FuncLog
}

func (d *localDeliverer) Deliver(k *kernel.Kernel) {
	if !k.MovesUpstream() {
		return
	}

	k.ReturnCode = k.Payload.Act(k)

	reply := kernel.New(k.Type, k.Payload)
	reply.ID = k.ID
	reply.ApplicationID = k.ApplicationID
	reply.Principal = k.Principal

	if k.ReturnCode == kernel.Success {
		reply.ReturnCode = k.Payload.React(k, reply)
	} else {
		reply.ReturnCode = k.Payload.OnError(k, reply)
	}

	if err := d.conn.Send(reply); err != nil && d.getLog != nil {
		d.getLog().Error("unixsock: cannot send reply to CLI client", err)
	}
}

// DeliverForeign never fires: a unixsock Connection only ever carries this
// node's own CLI traffic, never a peer's application id.
func (d *localDeliverer) DeliverForeign(*kernel.ForeignKernel) {}

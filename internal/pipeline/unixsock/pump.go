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
	"context"
	"net"

	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/transport"
)

// pump drives one Connection's byte-stream side until ctx is cancelled or
// the peer goes away: read raw bytes into the in-buffer, run the receive
// path on every complete frame, flush whatever Send queued in the out
// buffer. Teardown runs PeerLoss so any saved kernel is recovered per §4.4.
func pump(ctx context.Context, conn net.Conn, c *transport.Connection, getLog log.FuncLog) {
	c.SetState(transport.StateStarted)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.InBuffer().Advance(copy(c.InBuffer().Unread(), buf[:n]))

			if perr := c.PumpReceive(); perr != nil && getLog != nil {
				getLog().Error("unixsock: pump receive error", perr)
			}

			if werr := flushOut(conn, c); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}

	close(stop)
	c.PeerLoss(discardSack{})
	c.SetState(transport.StateStopped)
}

// flushOut writes every frame Send queued in the connection's out buffer to
// the wire, restoring the length-prefixed framing ReadFrame already stripped.
func flushOut(conn net.Conn, c *transport.Connection) error {
	b := c.OutBuffer()
	for b.Pending() > 0 {
		payload, ok := b.ReadFrame()
		if !ok {
			return nil
		}
		if err := writeFrame(conn, payload); err != nil {
			return err
		}
	}
	return nil
}

func writeFrame(conn net.Conn, payload []byte) error {
	n := len(payload)
	hdr := [4]byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}

	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

// discardSack drops orphaned kernels with no local principal; a CLI
// connection is a single request/response round-trip, so there is nothing
// further to route them to.
type discardSack struct{}

func (discardSack) Add(_ *kernel.Kernel) {}

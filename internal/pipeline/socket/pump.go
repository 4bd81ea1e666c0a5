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

package socket

import (
	"context"
	"net"
	"time"

	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/transport"
)

// pump drives one peer's byte-stream side until ctx is cancelled or the peer
// goes away, mirroring the unixsock/process pumps: read raw bytes, run the
// receive path on every complete frame, flush whatever Send queued. Teardown
// runs PeerLoss so upstream/downstream saves recover per §4.4.
func pump(ctx context.Context, pr *peer, getLog log.FuncLog) {
	pr.conn.SetState(transport.StateStarted)
	pr.lastActivity.Store(time.Now().UnixNano())

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = pr.netConn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := pr.netConn.Read(buf)
		if n > 0 {
			pr.lastActivity.Store(time.Now().UnixNano())
			pr.conn.InBuffer().Advance(copy(pr.conn.InBuffer().Unread(), buf[:n]))

			if perr := pr.conn.PumpReceive(); perr != nil && getLog != nil {
				getLog().Error("socket: pump receive error", perr)
			}

			if werr := flushOut(pr.netConn, pr.conn); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}

	close(stop)
	pr.conn.PeerLoss(discardSack{})
	pr.conn.SetState(transport.StateStopped)
}

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

// discardSack drops orphaned kernels with no local principal once a peer
// connection is torn down and the owning pipeline has already erased it.
type discardSack struct{}

func (discardSack) Add(_ *kernel.Kernel) {}

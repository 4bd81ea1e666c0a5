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

package process

import (
	"context"
	"io"

	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/transport"
)

// pumpPipe drives one child's duplex-pipe connection: read frames from r,
// run the receive path, flush whatever Send queued into w. Returns once ctx
// is cancelled or the child closes its end (EOF), having first run PeerLoss.
func pumpPipe(ctx context.Context, r io.Reader, w io.Writer, c *transport.Connection, getLog log.FuncLog) {
	c.SetState(transport.StateStarted)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cl, ok := r.(interface{ Close() error }); ok {
				_ = cl.Close()
			}
		case <-stop:
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.InBuffer().Advance(copy(c.InBuffer().Unread(), buf[:n]))

			if perr := c.PumpReceive(); perr != nil && getLog != nil {
				getLog().Error("process: pump receive error", perr)
			}

			if werr := flushOut(w, c); werr != nil {
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

func flushOut(w io.Writer, c *transport.Connection) error {
	b := c.OutBuffer()
	for b.Pending() > 0 {
		payload, ok := b.ReadFrame()
		if !ok {
			return nil
		}
		if err := writeFrame(w, payload); err != nil {
			return err
		}
	}
	return nil
}

func writeFrame(w io.Writer, payload []byte) error {
	n := len(payload)
	hdr := [4]byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// discardSack drops orphaned kernels with no local principal once a child's
// connection is torn down and nothing local claims them.
type discardSack struct{}

func (discardSack) Add(_ *kernel.Kernel) {}

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

// Package wire implements the kernel buffer and packet framing shared by
// every transport (TCP socket, child-process pipe, unix-socket CLI channel):
// a contiguous byte vector with read/write positions, a length-prefixed frame
// helper, and the CBOR header/body codec.
package wire

import (
	"encoding/binary"
)

// frameLenSize is the 4-byte little-endian length prefix of every frame.
const frameLenSize = 4

// compactThreshold: when the unread window is smaller than this fraction of
// capacity, the buffer compacts (moves the unread tail to offset 0) instead
// of growing forever.
const compactThreshold = 4

// Buffer is a single-owner byte vector: only the pipeline thread polling the
// fd it backs may touch it, per the concurrency model's buffer-ownership note.
type Buffer struct {
	buf  []byte
	rpos int
	wpos int
}

func NewBuffer() *Buffer {
	return &Buffer{buf: make([]byte, 4096)}
}

// WriteFrame reserves 4 bytes for the frame size, appends payload, then
// back-patches the length — exactly the sequence described for kernel writes.
func (b *Buffer) WriteFrame(payload []byte) {
	b.grow(frameLenSize + len(payload))

	binary.LittleEndian.PutUint32(b.buf[b.wpos:], uint32(len(payload)))
	b.wpos += frameLenSize
	copy(b.buf[b.wpos:], payload)
	b.wpos += len(payload)
}

// ReadFrame returns the next complete frame's payload. If the buffer does not
// yet hold enough bytes for a full frame, ok is false and the read position
// is left untouched so the caller can retry after more bytes arrive.
func (b *Buffer) ReadFrame() (payload []byte, ok bool) {
	if b.wpos-b.rpos < frameLenSize {
		return nil, false
	}

	n := int(binary.LittleEndian.Uint32(b.buf[b.rpos:]))
	if b.wpos-b.rpos < frameLenSize+n {
		return nil, false
	}

	start := b.rpos + frameLenSize
	payload = make([]byte, n)
	copy(payload, b.buf[start:start+n])
	b.rpos = start + n

	b.maybeCompact()
	return payload, true
}

// Unread returns the free space after the write position, the target for an
// fd Read; it does not grow the buffer.
func (b *Buffer) Unread() []byte {
	return b.buf[b.wpos:]
}

// Advance marks n freshly-read bytes (from an fd Read into Unread()) as written.
func (b *Buffer) Advance(n int) {
	b.wpos += n
}

// Pending reports how many unconsumed bytes remain.
func (b *Buffer) Pending() int {
	return b.wpos - b.rpos
}

func (b *Buffer) grow(extra int) {
	if b.wpos+extra <= len(b.buf) {
		return
	}

	need := b.wpos + extra
	ncap := len(b.buf) * 2
	for ncap < need {
		ncap *= 2
	}

	nbuf := make([]byte, ncap)
	copy(nbuf, b.buf[:b.wpos])
	b.buf = nbuf
}

func (b *Buffer) maybeCompact() {
	unread := b.wpos - b.rpos
	if b.rpos == 0 {
		return
	}
	if unread == 0 || len(b.buf)/compactThreshold > unread {
		copy(b.buf, b.buf[b.rpos:b.wpos])
		b.wpos = unread
		b.rpos = 0
	}
}

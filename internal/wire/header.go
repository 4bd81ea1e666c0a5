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

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Header flag bits. ProtocolVersion (the Design Notes open question) occupies
// the high nibble so old and new peers can still read the low flag bits.
const (
	flagFullDescriptor byte = 1 << iota
	flagSource
	flagDestination
)

const versionMask = 0xF0
const versionShift = 4

// Header is the fixed layout described by "Header serialization": a flag
// byte, then either an 8-byte application id or a full descriptor, then
// optional source/destination socket addresses.
type Header struct {
	Version       uint8
	ApplicationID uint64
	Descriptor    []byte // present when FullDescriptor is carried, opaque to wire
	Source        netip.AddrPort
	Destination   netip.AddrPort
}

func (h Header) hasSource() bool      { return h.Source.IsValid() }
func (h Header) hasDestination() bool { return h.Destination.IsValid() }
func (h Header) hasDescriptor() bool  { return len(h.Descriptor) > 0 }

// EncodeHeader writes the flag byte, application id or descriptor, and any
// present addresses, in that fixed order.
func EncodeHeader(h Header) []byte {
	var flags byte
	if h.hasDescriptor() {
		flags |= flagFullDescriptor
	}
	if h.hasSource() {
		flags |= flagSource
	}
	if h.hasDestination() {
		flags |= flagDestination
	}
	flags |= (h.Version << versionShift) & versionMask

	buf := &bytes.Buffer{}
	buf.WriteByte(flags)

	if h.hasDescriptor() {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(h.Descriptor)))
		buf.Write(n[:])
		buf.Write(h.Descriptor)
	} else {
		var id [8]byte
		binary.LittleEndian.PutUint64(id[:], h.ApplicationID)
		buf.Write(id[:])
	}

	if h.hasSource() {
		writeAddrPort(buf, h.Source)
	}
	if h.hasDestination() {
		writeAddrPort(buf, h.Destination)
	}

	return buf.Bytes()
}

// DecodeHeader is the inverse of EncodeHeader; it returns the number of bytes consumed.
func DecodeHeader(b []byte) (Header, int, error) {
	if len(b) < 1 {
		return Header{}, 0, fmt.Errorf("wire: short header")
	}

	flags := b[0]
	pos := 1
	h := Header{Version: (flags & versionMask) >> versionShift}

	if flags&flagFullDescriptor != 0 {
		if len(b) < pos+4 {
			return Header{}, 0, fmt.Errorf("wire: short descriptor length")
		}
		n := int(binary.LittleEndian.Uint32(b[pos:]))
		pos += 4
		if len(b) < pos+n {
			return Header{}, 0, fmt.Errorf("wire: short descriptor body")
		}
		h.Descriptor = append([]byte(nil), b[pos:pos+n]...)
		pos += n
	} else {
		if len(b) < pos+8 {
			return Header{}, 0, fmt.Errorf("wire: short application id")
		}
		h.ApplicationID = binary.LittleEndian.Uint64(b[pos:])
		pos += 8
	}

	if flags&flagSource != 0 {
		ap, n, err := readAddrPort(b[pos:])
		if err != nil {
			return Header{}, 0, err
		}
		h.Source = ap
		pos += n
	}

	if flags&flagDestination != 0 {
		ap, n, err := readAddrPort(b[pos:])
		if err != nil {
			return Header{}, 0, err
		}
		h.Destination = ap
		pos += n
	}

	return h, pos, nil
}

// writeAddrPort serializes family tag + address bytes + port, per the wire
// protocol's socket-address encoding.
func writeAddrPort(buf *bytes.Buffer, ap netip.AddrPort) {
	addr := ap.Addr()
	if addr.Is4() {
		buf.WriteByte(4)
		b := addr.As4()
		buf.Write(b[:])
	} else {
		buf.WriteByte(6)
		b := addr.As16()
		buf.Write(b[:])
	}

	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], ap.Port())
	buf.Write(p[:])
}

func readAddrPort(b []byte) (netip.AddrPort, int, error) {
	if len(b) < 1 {
		return netip.AddrPort{}, 0, fmt.Errorf("wire: short address family tag")
	}

	switch b[0] {
	case 4:
		if len(b) < 1+4+2 {
			return netip.AddrPort{}, 0, fmt.Errorf("wire: short ipv4 address")
		}
		addr := netip.AddrFrom4([4]byte(b[1:5]))
		port := binary.LittleEndian.Uint16(b[5:7])
		return netip.AddrPortFrom(addr, port), 7, nil
	case 6:
		if len(b) < 1+16+2 {
			return netip.AddrPort{}, 0, fmt.Errorf("wire: short ipv6 address")
		}
		addr := netip.AddrFrom16([16]byte(b[1:17]))
		port := binary.LittleEndian.Uint16(b[17:19])
		return netip.AddrPortFrom(addr, port), 19, nil
	default:
		return netip.AddrPort{}, 0, fmt.Errorf("wire: unknown address family tag %d", b[0])
	}
}

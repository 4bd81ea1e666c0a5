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
	"strconv"

	goversion "github.com/hashicorp/go-version"
)

// ProtocolVersion answers the Design Notes open question: the original wire
// protocol carried no version tag. It occupies the Header's high nibble
// (0-15). Kernel frames written by EncodeKernel carry no Header, and no
// receive path calls Compatible, so peers do not exchange or check it.
const ProtocolVersion uint8 = 1

var current = mustVersion("1.0.0")

func mustVersion(s string) *goversion.Version {
	v, err := goversion.NewVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compatible reports whether a header carrying peerVersion can be accepted by
// this build. Only the major component is compared: the nibble has no room
// for anything finer-grained than a handful of breaking revisions.
func Compatible(peerVersion uint8) bool {
	peer := mustVersion(fmtVersion(peerVersion))
	return peer.Segments()[0] == current.Segments()[0]
}

func fmtVersion(v uint8) string {
	return strconv.Itoa(int(v)) + ".0.0"
}

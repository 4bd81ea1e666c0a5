/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package erx

// Each package that wants distinct error codes reserves a range here and
// declares its own `ErrorXXX erx.CodeError = iota + MinPkgXXX` block.
const (
	MinPkgKernel     = 100
	MinPkgWire       = 200
	MinPkgTransport  = 300
	MinPkgParallel   = 400
	MinPkgTimer      = 500
	MinPkgProcess    = 600
	MinPkgSocket     = 700
	MinPkgUnixSock   = 800
	MinPkgDiscoverer = 900
	MinPkgFactory    = 1000
	MinPkgHierarchy  = 1100
	MinPkgRegistry   = 1200
	MinPkgTxLog      = 1300
	MinPkgConfig     = 1400
	MinPkgApp        = 1500
	MinPkgMetrics    = 1600

	MinAvailable = 2000
)

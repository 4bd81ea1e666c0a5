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

package discoverer

import (
	"net/netip"
	"testing"
)

func TestCandidateWalkClimbsToRoot(t *testing.T) {
	prefix := netip.MustParsePrefix("10.0.0.0/24")
	local := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.5"), 9000)

	got := candidateWalk(prefix, local, 2)

	want := []netip.AddrPort{
		netip.AddrPortFrom(netip.MustParseAddr("10.0.0.2"), 9000),
		netip.AddrPortFrom(netip.MustParseAddr("10.0.0.0"), 9000),
	}

	if len(got) != len(want) {
		t.Fatalf("candidateWalk() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidateWalk()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCandidateWalkRootHasNoCandidates(t *testing.T) {
	prefix := netip.MustParsePrefix("10.0.0.0/24")
	local := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.0"), 9000)

	got := candidateWalk(prefix, local, 2)
	if len(got) != 0 {
		t.Fatalf("candidateWalk() at root = %v, want empty", got)
	}
}

func TestCandidateWalkNeverRevisitsAnAddress(t *testing.T) {
	prefix := netip.MustParsePrefix("10.0.0.0/24")
	local := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.200"), 9000)

	got := candidateWalk(prefix, local, 3)

	seen := make(map[netip.AddrPort]bool, len(got))
	for _, c := range got {
		if seen[c] {
			t.Fatalf("candidateWalk() revisited %s: %v", c, got)
		}
		seen[c] = true
	}
}

func TestProbeAcceptOnlyForOwnInterface(t *testing.T) {
	local := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.5"), 9000)
	other := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.9"), 9000)

	d := &Discoverer{
		ifaces: map[netip.AddrPort]*ifaceState{
			local: {local: local},
		},
	}

	if !d.acceptProbe(&ProbeKernel{NewPrincipal: local}) {
		t.Fatalf("acceptProbe() = false for this node's own interface, want true")
	}
	if d.acceptProbe(&ProbeKernel{NewPrincipal: other}) {
		t.Fatalf("acceptProbe() = true for an address this node doesn't bind, want false")
	}
}

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

import "testing"

func TestPartitionRange(t *testing.T) {
	cases := []struct {
		name                string
		minID, maxID        uint64
		count, position     int
		wantLo, wantHi      uint64
	}{
		{"first of four", 0, 1000, 4, 0, 0, 250},
		{"middle of four", 0, 1000, 4, 2, 500, 750},
		{"last of four absorbs remainder", 0, 1003, 4, 3, 750, 1003},
		{"single node gets the whole range", 0, 1000, 1, 0, 0, 1000},
		{"zero count returns the whole range unsplit", 100, 200, 0, 0, 100, 200},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lo, hi := PartitionRange(c.minID, c.maxID, c.count, c.position)
			if lo != c.wantLo || hi != c.wantHi {
				t.Fatalf("PartitionRange(%d,%d,%d,%d) = (%d,%d), want (%d,%d)",
					c.minID, c.maxID, c.count, c.position, lo, hi, c.wantLo, c.wantHi)
			}
		})
	}
}

func TestPartitionRangeCoversWholeSpaceWithoutOverlap(t *testing.T) {
	const minID, maxID uint64 = 0, 997
	const count = 5

	var prev uint64
	for pos := 0; pos < count; pos++ {
		lo, hi := PartitionRange(minID, maxID, count, pos)
		if lo != prev {
			t.Fatalf("position %d: range starts at %d, want contiguous with previous end %d", pos, lo, prev)
		}
		if hi < lo {
			t.Fatalf("position %d: range (%d,%d) is inverted", pos, lo, hi)
		}
		prev = hi
	}
	if prev != maxID {
		t.Fatalf("partition ends at %d, want it to reach maxID %d", prev, maxID)
	}
}

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

// Package hierarchy holds the per-interface view of a node's superior and
// subordinates, guarded per interface per the concurrency model, and ordered
// by address via google/btree so weighted round-robin ties break on the
// lowest socket address deterministically.
package hierarchy

import (
	"net/netip"
	"sync"

	"github.com/google/btree"
)

// Node is {socket_address, weight}: that subtree's advertised capacity.
type Node struct {
	Address netip.AddrPort
	Weight  uint64
}

func (n Node) Less(than btree.Item) bool {
	o := than.(Node)
	ap, bp := n.Address, o.Address
	if ap.Addr() != bp.Addr() {
		return lessAddr(ap.Addr(), bp.Addr())
	}
	return ap.Port() < bp.Port()
}

func lessAddr(a, b netip.Addr) bool {
	ab, bb := a.As16(), b.As16()
	for i := range ab {
		if ab[i] != bb[i] {
			return ab[i] < bb[i]
		}
	}
	return false
}

// Hierarchy is the per-interface state: subnet address, local bound address,
// optional superior, and subordinates ordered by address.
type Hierarchy struct {
	mu sync.RWMutex

	InterfaceAddress netip.Prefix
	LocalAddress     netip.AddrPort

	superior     *Node
	subordinates *btree.BTree
}

func New(iface netip.Prefix, local netip.AddrPort) *Hierarchy {
	return &Hierarchy{
		InterfaceAddress: iface,
		LocalAddress:     local,
		subordinates:     btree.New(8),
	}
}

func (h *Hierarchy) Superior() (Node, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.superior == nil {
		return Node{}, false
	}
	return *h.superior, true
}

func (h *Hierarchy) SetSuperior(n Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.superior = &n
}

func (h *Hierarchy) ClearSuperior() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.superior = nil
}

// AddSubordinate inserts or updates a subordinate's advertised weight.
func (h *Hierarchy) AddSubordinate(n Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subordinates.ReplaceOrInsert(n)
}

func (h *Hierarchy) RemoveSubordinate(addr netip.AddrPort) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subordinates.Delete(Node{Address: addr})
}

func (h *Hierarchy) Subordinates() []Node {
	h.mu.RLock()
	defer h.mu.RUnlock()

	res := make([]Node, 0, h.subordinates.Len())
	h.subordinates.Ascend(func(i btree.Item) bool {
		res = append(res, i.(Node))
		return true
	})
	return res
}

// OwnWeight recomputes hardware_concurrency + Σ subordinate_weight.
func (h *Hierarchy) OwnWeight(hardwareConcurrency uint64) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := hardwareConcurrency
	h.subordinates.Ascend(func(i btree.Item) bool {
		total += i.(Node).Weight
		return true
	})
	return total
}

// PickSubordinate performs weighted round-robin over subordinates, ties
// broken by lowest address, per §4.7's routing table.
func (h *Hierarchy) PickSubordinate(counter uint64) (Node, bool) {
	nodes := h.Subordinates()
	if len(nodes) == 0 {
		return Node{}, false
	}

	var total uint64
	for _, n := range nodes {
		total += n.Weight
	}
	if total == 0 {
		return nodes[counter%uint64(len(nodes))], true
	}

	target := counter % total
	var acc uint64
	for _, n := range nodes {
		acc += n.Weight
		if target < acc {
			return n, true
		}
	}
	return nodes[len(nodes)-1], true
}

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

// Package discoverer runs the per-interface state machine of spec §4.8: it
// walks the implicit k-ary tree over a subnet to find a superior, tracks
// subordinates that claim this node as theirs, and propagates this node's
// own_weight upward. One Discoverer drives every configured interface; its
// Probe and Hierarchy kernel types (payloads.go) carry the Act/React logic
// themselves and reach back into the live instance through the package-level
// current pointer, the way any other kernel type reaches its own state.
package discoverer

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"golang.org/x/time/rate"

	"github.com/nabbar/sbn/internal/erx"
	"github.com/nabbar/sbn/internal/factory"
	"github.com/nabbar/sbn/internal/hierarchy"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/transport"
)

const (
	ErrorNoInterfaces erx.CodeError = iota + erx.MinPkgDiscoverer
	ErrorHardwareConcurrency
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgDiscoverer, func(code erx.CodeError) string {
		switch code {
		case ErrorNoInterfaces:
			return "discoverer: no interfaces configured"
		case ErrorHardwareConcurrency:
			return "discoverer: failed to read hardware concurrency"
		default:
			return ""
		}
	})
}

// State is the per-interface discoverer state of spec §4.8.
type State uint8

const (
	StateInitial State = iota
	StateProbing
	StateJoined
	StateHead
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateProbing:
		return "probing"
	case StateJoined:
		return "joined"
	case StateHead:
		return "head"
	default:
		return "unknown"
	}
}

// Transport is the subset of the socket pipeline the discoverer needs:
// dial a candidate and look up an already-open connection to send on.
type Transport interface {
	Connect(addr netip.AddrPort) error
	Connection(addr netip.AddrPort) (*transport.Connection, bool)
}

// ifaceState is one bound interface's view of the tree: its subnet, its
// current candidate walk position, its hierarchy (superior + subordinates),
// and the probe cooldown guarding against storms against a dead candidate.
type ifaceState struct {
	mu sync.Mutex

	prefix netip.Prefix
	local  netip.AddrPort

	state State
	tree  *hierarchy.Hierarchy

	candidates   []netip.AddrPort
	candidateIdx int
	cooldown     map[netip.AddrPort]time.Time
}

// Discoverer drives every configured interface's state machine. Exactly one
// instance runs per process; Act/React on Probe and Hierarchy payloads look
// it up through current, since a kernel.Payload constructor carries no
// outside state of its own (registry.Types.Register takes a bare
// func() kernel.Payload).
type Discoverer struct {
	ifaces map[netip.AddrPort]*ifaceState

	fanout        int
	scanInterval  time.Duration
	failTimeout   time.Duration
	cooldownAfter time.Duration

	transport Transport
	localApp  uint64

	limiter *rate.Limiter

	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	getLog  log.FuncLog
	deps    []string
	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup

	onStartB, onStartA   factory.FuncEvent
	onReloadB, onReloadA factory.FuncEvent
}

// New builds a Discoverer for the given bound interface addresses, each
// paired with its subnet prefix. fanout is the k-ary tree's branching
// factor; scanInterval drives both the candidate walk and periodic reprobe;
// failTimeout is stored but not read: no subordinate is removed on a timer,
// only by a weight-0 hierarchy kernel; weightRate/weightBurst bound how often a weight update may be
// pushed toward the superior.
func New(
	interfaces map[netip.Prefix]netip.AddrPort,
	fanout int,
	scanInterval, failTimeout, cooldownAfter time.Duration,
	weightRate rate.Limit, weightBurst int,
	t Transport, localApp uint64,
) *Discoverer {
	ifaces := make(map[netip.AddrPort]*ifaceState, len(interfaces))
	for prefix, local := range interfaces {
		ifaces[local] = &ifaceState{
			prefix:   prefix,
			local:    local,
			state:    StateInitial,
			tree:     hierarchy.New(prefix, local),
			cooldown: make(map[netip.AddrPort]time.Time),
		}
	}

	return &Discoverer{
		ifaces:        ifaces,
		fanout:        fanout,
		scanInterval:  scanInterval,
		failTimeout:   failTimeout,
		cooldownAfter: cooldownAfter,
		transport:     t,
		localApp:      localApp,
		limiter:       rate.NewLimiter(weightRate, weightBurst),
	}
}

// PrimaryHierarchy returns one configured interface's Hierarchy, for callers
// (the factory's Router) that need a single tree to route against. Since
// recordSubordinate applies every update to all configured interfaces, any
// one of them reflects the same subordinate set on the common case of a node
// bound to a single interface.
func (d *Discoverer) PrimaryHierarchy() (*hierarchy.Hierarchy, bool) {
	for _, is := range d.ifaces {
		return is.tree, true
	}
	return nil, false
}

func (d *Discoverer) Type() string { return "discoverer" }

func (d *Discoverer) Init(key string, ctx context.Context, _ factory.FuncComponentGet, getLog log.FuncLog) {
	d.key = key
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.getLog = getLog
}

func (d *Discoverer) Dependencies() []string { return d.deps }

func (d *Discoverer) RegisterFuncStart(before, after factory.FuncEvent) {
	d.onStartB, d.onStartA = before, after
}

func (d *Discoverer) RegisterFuncReload(before, after factory.FuncEvent) {
	d.onReloadB, d.onReloadA = before, after
}

func (d *Discoverer) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *Discoverer) IsRunning() bool { return d.IsStarted() }

func (d *Discoverer) Start() error {
	if d.onStartB != nil {
		if err := d.onStartB(); err != nil {
			return err
		}
	}

	if len(d.ifaces) == 0 {
		return ErrorNoInterfaces.Error(nil)
	}

	current.Store(d)

	for _, is := range d.ifaces {
		is.candidates = candidateWalk(is.prefix, is.local, d.fanout)

		d.wg.Add(1)
		go d.run(is)
	}

	d.mu.Lock()
	d.started = true
	d.mu.Unlock()

	if d.onStartA != nil {
		return d.onStartA()
	}
	return nil
}

func (d *Discoverer) Reload() error {
	if d.onReloadB != nil {
		if err := d.onReloadB(); err != nil {
			return err
		}
	}
	if d.onReloadA != nil {
		return d.onReloadA()
	}
	return nil
}

func (d *Discoverer) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	current.CompareAndSwap(d, nil)

	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

// run drives one interface's scan loop: while not joined, walk candidates;
// once joined, periodically verify the superior is still reachable.
func (d *Discoverer) run(is *ifaceState) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.scanInterval)
	defer ticker.Stop()

	d.tick(is)

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.tick(is)
		}
	}
}

func (d *Discoverer) tick(is *ifaceState) {
	is.mu.Lock()
	state := is.state
	is.mu.Unlock()

	switch state {
	case StateJoined:
		d.verifySuperior(is)
	default:
		d.probeNextCandidate(is)
	}

	d.pushWeight(is)
}

// probeNextCandidate sends a probe kernel to the next untried, non-cooling
// candidate in the walk; exhausting every candidate without acceptance
// yields the head state.
func (d *Discoverer) probeNextCandidate(is *ifaceState) {
	is.mu.Lock()
	n := len(is.candidates)
	if n == 0 {
		is.state = StateHead
		is.mu.Unlock()
		return
	}
	// a full pass over the walk has ended without an acceptance.
	if is.candidateIdx > 0 && is.candidateIdx%n == 0 {
		is.state = StateHead
	}

	var candidate netip.AddrPort
	found := false
	for tries := 0; tries < n; tries++ {
		c := is.candidates[is.candidateIdx%n]
		is.candidateIdx++

		if until, cooling := is.cooldown[c]; cooling && time.Now().Before(until) {
			continue
		}
		candidate = c
		found = true
		break
	}

	if !found {
		is.mu.Unlock()
		return
	}

	if is.state != StateHead {
		is.state = StateProbing
	}
	is.cooldown[candidate] = time.Now().Add(d.cooldownAfter)
	is.mu.Unlock()

	d.sendProbe(is, candidate)
}

// verifySuperior re-enters probing if the connection to the current
// superior has been lost, per spec §4.8's "periodic reprobe".
func (d *Discoverer) verifySuperior(is *ifaceState) {
	sup, ok := is.tree.Superior()
	if !ok {
		is.mu.Lock()
		is.state = StateInitial
		is.mu.Unlock()
		return
	}

	if _, connected := d.transport.Connection(sup.Address); !connected {
		is.mu.Lock()
		is.state = StateProbing
		is.mu.Unlock()
		is.tree.ClearSuperior()
	}
}

func (d *Discoverer) sendProbe(is *ifaceState, candidate netip.AddrPort) {
	if _, ok := d.transport.Connection(candidate); !ok {
		if err := d.transport.Connect(candidate); err != nil {
			if d.getLog != nil {
				d.getLog().Warning("discoverer: probe dial failed", err)
			}
			return
		}
	}

	conn, ok := d.transport.Connection(candidate)
	if !ok {
		return
	}

	sup, _ := is.tree.Superior()
	probe := &ProbeKernel{
		OldPrincipal:  sup.Address,
		NewPrincipal:  candidate,
		InterfaceAddr: is.local,
	}
	k := kernel.New(TypeProbe, probe)
	k.ApplicationID = d.localApp
	k.Destination = candidate

	if err := conn.Send(k); err != nil && d.getLog != nil {
		d.getLog().Error("discoverer: failed to send probe", err)
	}
}

// pushWeight recomputes own_weight and, rate-limited, pushes an updated
// hierarchy kernel toward the superior.
func (d *Discoverer) pushWeight(is *ifaceState) {
	sup, ok := is.tree.Superior()
	if !ok {
		return
	}
	if !d.limiter.Allow() {
		return
	}

	hc, err := hardwareConcurrency()
	if err != nil {
		hc = 1
	}
	weight := is.tree.OwnWeight(hc)

	conn, ok := d.transport.Connection(sup.Address)
	if !ok {
		return
	}

	h := &HierarchyKernel{Address: is.local, Weight: weight}
	k := kernel.New(TypeHierarchy, h)
	k.ApplicationID = d.localApp
	k.Destination = sup.Address

	if err := conn.Send(k); err != nil && d.getLog != nil {
		d.getLog().Error("discoverer: failed to push weight", err)
	}
}

func hardwareConcurrency() (uint64, error) {
	n, err := cpu.Counts(true)
	if err != nil {
		return 0, ErrorHardwareConcurrency.Error(err)
	}
	return uint64(n), nil
}

// candidateWalk computes, in priority order, the addresses visited by
// repeatedly moving to the would-be parent of position p in the implicit
// k-ary tree of size n spanning the subnet, up to index 0. Sibling branches
// are not visited: the walk holds only p's ancestors.
func candidateWalk(prefix netip.Prefix, local netip.AddrPort, fanout int) []netip.AddrPort {
	if fanout < 2 {
		fanout = 2
	}

	base := prefix.Masked().Addr()
	size := subnetSize(prefix)
	if size == 0 {
		return nil
	}

	p := addrIndex(base, local.Addr()) % size

	seen := make(map[uint64]bool, size)
	seen[p] = true

	var out []netip.AddrPort
	cur := p
	for cur != 0 {
		parent := (cur - 1) / uint64(fanout)
		if seen[parent] {
			break
		}
		seen[parent] = true
		out = append(out, netip.AddrPortFrom(addrAt(base, parent), local.Port()))
		cur = parent
	}

	return out
}

// subnetSize returns the number of host addresses a prefix can address,
// capped to avoid overflow on very large IPv6 ranges (fanout walks are
// bounded by depth anyway, never by total size).
func subnetSize(prefix netip.Prefix) uint64 {
	bits := prefix.Addr().BitLen() - prefix.Bits()
	if bits <= 0 {
		return 1
	}
	if bits >= 32 {
		return 1 << 32
	}
	return uint64(1) << uint(bits)
}

// addrIndex/addrAt assume IPv4 interface addresses, matching the daemon's
// deployment target; IPv6 subnets would need a 128-bit offset instead of the
// uint32 arithmetic below.
func addrIndex(base, addr netip.Addr) uint64 {
	b, a := base.As16(), addr.As16()
	var idx uint64
	for i := 12; i < 16; i++ {
		idx = idx<<8 | uint64(a[i]-b[i])
	}
	return idx
}

func addrAt(base netip.Addr, offset uint64) netip.Addr {
	b := base.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	v += uint32(offset)
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

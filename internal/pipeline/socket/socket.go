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

// Package socket is the inter-node transport pipeline (spec §4.6): one
// listening TCP socket per configured interface plus the outbound
// connections this node dials toward peers, each driven by its own pump
// goroutine rather than the teacher's single epoll thread — Go's netpoller
// already multiplexes blocking reads across goroutines onto the runtime's
// epoll/kqueue, so per-connection goroutines play that role here.
package socket

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nabbar/sbn/internal/erx"
	"github.com/nabbar/sbn/internal/factory"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/transport"
)

const (
	ErrorListen erx.CodeError = iota + erx.MinPkgSocket
	ErrorDial
	ErrorRetriesExhausted
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgSocket, func(code erx.CodeError) string {
		switch code {
		case ErrorListen:
			return "socket: cannot listen on interface address"
		case ErrorDial:
			return "socket: cannot dial peer"
		case ErrorRetriesExhausted:
			return "socket: reconnect attempts exhausted, peer considered lost"
		default:
			return ""
		}
	})
}

// PartitionRange splits the id space [minID, maxID) into count contiguous
// shares and returns the share reserved for the address at position among
// them: (max_id-min_id)/count * position, per spec §4.6. Kernel id
// assignment does not call it: the instance registry counts up from a
// random seed, not within this share.
func PartitionRange(minID, maxID uint64, count, position int) (lo, hi uint64) {
	if count <= 0 {
		return minID, maxID
	}

	span := (maxID - minID) / uint64(count)
	lo = minID + span*uint64(position)
	if position == count-1 {
		hi = maxID
	} else {
		hi = lo + span
	}
	return lo, hi
}

// peer is one connection to another node, inbound or outbound.
type peer struct {
	addr     netip.AddrPort
	outbound bool

	conn    *transport.Connection
	netConn net.Conn

	lastActivity atomic.Int64 // UnixNano, updated on every successful read
}

// Pipeline owns one listener per configured interface address plus the set
// of live peer connections, keyed by remote address.
type Pipeline struct {
	mu sync.Mutex

	addrs     []netip.AddrPort
	listeners map[netip.AddrPort]net.Listener
	peers     map[netip.AddrPort]*peer
	wg        sync.WaitGroup
	stopping  bool

	startTimeout time.Duration // T1: max time a connection may linger in starting
	idleTimeout  time.Duration // T2: max time without activity before teardown
	maxRetries   int
	backoffBase  time.Duration

	localApp uint64
	types    registry.Types
	instance registry.Instance
	deliver  transport.Deliverer

	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	getLog  log.FuncLog
	deps    []string
	started bool

	onStartB, onStartA   factory.FuncEvent
	onReloadB, onReloadA factory.FuncEvent
}

func New(
	addrs []netip.AddrPort,
	startTimeout, idleTimeout time.Duration,
	maxRetries int,
	backoffBase time.Duration,
	localApp uint64,
	types registry.Types,
	instance registry.Instance,
	deliver transport.Deliverer,
) *Pipeline {
	return &Pipeline{
		addrs:        addrs,
		listeners:    make(map[netip.AddrPort]net.Listener),
		peers:        make(map[netip.AddrPort]*peer),
		startTimeout: startTimeout,
		idleTimeout:  idleTimeout,
		maxRetries:   maxRetries,
		backoffBase:  backoffBase,
		localApp:     localApp,
		types:        types,
		instance:     instance,
		deliver:      deliver,
	}
}

func (p *Pipeline) Type() string { return "pipeline.socket" }

func (p *Pipeline) Init(key string, ctx context.Context, _ factory.FuncComponentGet, getLog log.FuncLog) {
	p.key = key
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.getLog = getLog
}

func (p *Pipeline) Dependencies() []string { return p.deps }

func (p *Pipeline) RegisterFuncStart(before, after factory.FuncEvent) {
	p.onStartB, p.onStartA = before, after
}

func (p *Pipeline) RegisterFuncReload(before, after factory.FuncEvent) {
	p.onReloadB, p.onReloadA = before, after
}

func (p *Pipeline) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Pipeline) IsRunning() bool { return p.IsStarted() }

func (p *Pipeline) Start() error {
	if p.onStartB != nil {
		if err := p.onStartB(); err != nil {
			return err
		}
	}

	for _, a := range p.addrs {
		ln, err := net.Listen("tcp", a.String())
		if err != nil {
			return ErrorListen.Error(err)
		}

		p.mu.Lock()
		p.listeners[a] = ln
		p.mu.Unlock()

		p.wg.Add(1)
		go p.acceptLoop(ln)
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	if p.onStartA != nil {
		return p.onStartA()
	}
	return nil
}

func (p *Pipeline) Reload() error {
	if p.onReloadB != nil {
		if err := p.onReloadB(); err != nil {
			return err
		}
	}
	if p.onReloadA != nil {
		return p.onReloadA()
	}
	return nil
}

func (p *Pipeline) acceptLoop(ln net.Listener) {
	defer p.wg.Done()

	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}

		p.mu.Lock()
		stopping := p.stopping
		p.mu.Unlock()
		if stopping {
			_ = c.Close()
			return
		}

		raddr, ok := addrPortOf(c.RemoteAddr())
		if !ok {
			_ = c.Close()
			continue
		}

		pr := p.trackPeer(raddr, c, false)
		p.wg.Add(1)
		go p.serve(pr)
	}
}

// Connect dials addr, retrying up to maxRetries times with exponential
// back-off before giving up; exhausting the retries is the trigger for
// peer-loss described in spec §4.6.
func (p *Pipeline) Connect(addr netip.AddrPort) error {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			wait := p.backoffBase * time.Duration(uint64(1)<<uint(attempt-1))
			select {
			case <-time.After(wait):
			case <-p.ctx.Done():
				return p.ctx.Err()
			}
		}

		dialer := net.Dialer{Timeout: p.startTimeout}
		c, err := dialer.DialContext(p.ctx, "tcp", addr.String())
		if err != nil {
			lastErr = err
			continue
		}

		pr := p.trackPeer(addr, c, true)
		p.wg.Add(1)
		go p.serve(pr)
		return nil
	}

	return ErrorRetriesExhausted.Error(ErrorDial.Error(lastErr))
}

// Connection returns the live connection toward addr, if any.
func (p *Pipeline) Connection(addr netip.AddrPort) (*transport.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.peers[addr]
	if !ok {
		return nil, false
	}
	return pr.conn, true
}

func (p *Pipeline) trackPeer(addr netip.AddrPort, conn net.Conn, outbound bool) *peer {
	pr := &peer{
		addr:     addr,
		outbound: outbound,
		conn:     transport.NewConnection(p.localApp, p.types, p.instance, p.deliver),
		netConn:  conn,
	}
	pr.lastActivity.Store(time.Now().UnixNano())

	p.mu.Lock()
	p.peers[addr] = pr
	p.mu.Unlock()
	return pr
}

func (p *Pipeline) serve(pr *peer) {
	defer p.wg.Done()
	defer func() {
		_ = pr.netConn.Close()
		p.mu.Lock()
		delete(p.peers, pr.addr)
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	p.wg.Add(1)
	go p.watchdog(ctx, pr)

	pump(ctx, pr, p.getLog)
}

// watchdog enforces T1 (start timeout) while a connection sits in
// StateStarting and T2 (idle timeout) once it reaches StateStarted, closing
// the socket so pump observes EOF and runs PeerLoss.
func (p *Pipeline) watchdog(ctx context.Context, pr *peer) {
	defer p.wg.Done()

	interval := p.idleTimeout
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch pr.conn.State() {
			case transport.StateStarting:
				if p.startTimeout > 0 && time.Since(start) > p.startTimeout {
					_ = pr.netConn.Close()
					return
				}
			case transport.StateStarted:
				last := time.Unix(0, pr.lastActivity.Load())
				if p.idleTimeout > 0 && time.Since(last) > p.idleTimeout {
					_ = pr.netConn.Close()
					return
				}
			default:
				return
			}
		}
	}
}

func addrPortOf(a net.Addr) (netip.AddrPort, bool) {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	ip, ok := netip.AddrFromSlice(tcp.IP)
	if !ok {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(tcp.Port)), true
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopping = true

	listeners := make([]net.Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	peers := make([]*peer, 0, len(p.peers))
	for _, pr := range p.peers {
		peers = append(peers, pr)
	}
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	for _, l := range listeners {
		_ = l.Close()
	}
	for _, pr := range peers {
		_ = pr.netConn.Close()
	}

	p.wg.Wait()

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
}

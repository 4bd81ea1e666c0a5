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

// Package unixsock is the local IPC channel for the CLI tools (spec §4
// "Unix-socket pipeline", §6 "CLI"): a single listener on a fixed filesystem
// path, one short-lived Connection per command invocation.
package unixsock

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/nabbar/sbn/internal/erx"
	"github.com/nabbar/sbn/internal/factory"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/transport"
)

const (
	ErrorListen erx.CodeError = iota + erx.MinPkgUnixSock
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgUnixSock, func(code erx.CodeError) string {
		switch code {
		case ErrorListen:
			return "unixsock: cannot listen on socket path"
		default:
			return ""
		}
	})
}

// Pipeline owns the CLI unix-domain listener. Every accepted connection gets
// its own transport.Connection and a pair of goroutines pumping bytes to and
// from it — Go's net package already multiplexes these onto the runtime's
// netpoller, so per-connection goroutines play the role the teacher's other
// pipelines give an explicit epoll loop.
//
// Unlike the socket and process pipelines, a unixsock Connection never hands
// its received kernels to the factory's Router: a CLI client carries no
// netip.AddrPort or application id for the routing table to address a reply
// by, since it is neither a peer node nor a hosted application. Each
// Connection gets its own localDeliverer instead, which runs act/react
// synchronously and sends the reply back down the same Connection it arrived
// on — one request, one reply, no detour through the shared pipelines.
type Pipeline struct {
	mu sync.Mutex

	path string

	ln       net.Listener
	stopping bool
	wg       sync.WaitGroup

	localApp uint64
	types    registry.Types
	instance registry.Instance

	key       string
	ctx       context.Context
	cancel    context.CancelFunc
	getLog    log.FuncLog
	deps      []string
	started   bool
	onStartB  factory.FuncEvent
	onStartA  factory.FuncEvent
	onReloadB factory.FuncEvent
	onReloadA factory.FuncEvent
}

func New(path string, localApp uint64, types registry.Types, instance registry.Instance) *Pipeline {
	return &Pipeline{
		path:     path,
		localApp: localApp,
		types:    types,
		instance: instance,
	}
}

func (p *Pipeline) Type() string { return "pipeline.unixsock" }

func (p *Pipeline) Init(key string, ctx context.Context, _ factory.FuncComponentGet, getLog log.FuncLog) {
	p.key = key
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.getLog = getLog
}

// Dependencies: the unix-socket CLI pipeline receives its registries through
// New and declares no component dependency.
func (p *Pipeline) Dependencies() []string { return p.deps }

func (p *Pipeline) RegisterFuncStart(before, after factory.FuncEvent)  { p.onStartB, p.onStartA = before, after }
func (p *Pipeline) RegisterFuncReload(before, after factory.FuncEvent) { p.onReloadB, p.onReloadA = before, after }

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

	_ = os.Remove(p.path)

	ln, err := net.Listen("unix", p.path)
	if err != nil {
		return ErrorListen.Error(err)
	}
	p.ln = ln

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.acceptLoop()

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

func (p *Pipeline) acceptLoop() {
	defer p.wg.Done()

	for {
		c, err := p.ln.Accept()
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

		p.wg.Add(1)
		go p.serve(c)
	}
}

func (p *Pipeline) serve(conn net.Conn) {
	defer p.wg.Done()
	defer func() { _ = conn.Close() }()

	ld := &localDeliverer{getLog: p.getLog}
	c := transport.NewConnection(p.localApp, p.types, p.instance, ld)
	ld.conn = c

	pump(p.ctx, conn, c, p.getLog)
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if p.ln != nil {
		_ = p.ln.Close()
	}
	_ = os.Remove(p.path)

	p.wg.Wait()

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
}

// Send writes k out on a specific already-open Connection. localDeliverer
// uses Connection.Send directly instead; this remains for callers outside the
// package (tests, future admin commands sharing the listener) that only hold
// a Connection and a Pipeline reference.
func (p *Pipeline) Send(c *transport.Connection, k *kernel.Kernel) error {
	return c.Send(k)
}

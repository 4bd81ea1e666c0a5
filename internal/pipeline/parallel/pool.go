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

// Package parallel implements the fixed worker-pool pipeline: a FIFO of ready
// kernels plus downstream-dedicated FIFOs, each serviced by one worker and
// chosen by a hash of the principal id, to keep per-principal reply ordering
// stable, per spec §4.1 and §5.
package parallel

import (
	"context"
	"hash/fnv"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nabbar/sbn/internal/factory"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
)

// Principal is implemented by the factory to run act/react/error once a
// worker has popped a kernel; it keeps this package free of a factory import.
type Principal interface {
	Run(k *kernel.Kernel)
}

// Pipeline is the fixed-size worker pool plus an optional dedicated goroutine
// per kernel flagged new_thread.
type Pipeline struct {
	mu sync.Mutex

	size    int
	sem     *semaphore.Weighted
	ready   chan *kernel.Kernel
	newGoro chan *kernel.Kernel

	// downstream workers are pinned by principal-id hash so react invocations
	// for the same principal are serialized, per the ordering guarantee.
	downstream []chan *kernel.Kernel

	stopping bool
	started  bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	run Principal
	log log.FuncLog

	key  string
	deps []string

	onStartB, onStartA   factory.FuncEvent
	onReloadB, onReloadA factory.FuncEvent
}

// New returns an unstarted Pipeline with the given worker count.
func New(workers int, run Principal, getLog log.FuncLog) *Pipeline {
	if workers < 1 {
		workers = 1
	}

	p := &Pipeline{
		size:       workers,
		sem:        semaphore.NewWeighted(int64(workers)),
		ready:      make(chan *kernel.Kernel, workers*4),
		newGoro:    make(chan *kernel.Kernel, workers),
		downstream: make([]chan *kernel.Kernel, workers),
		run:        run,
		log:        getLog,
		ctx:        context.Background(),
	}

	for i := range p.downstream {
		p.downstream[i] = make(chan *kernel.Kernel, 16)
	}

	return p
}

func (p *Pipeline) Type() string { return "pipeline.parallel" }

// Init wires the component into the factory's lifecycle; get is unused since
// the parallel pipeline has no dependency to resolve.
func (p *Pipeline) Init(key string, ctx context.Context, _ factory.FuncComponentGet, getLog log.FuncLog) {
	p.key = key
	p.ctx = ctx
	if getLog != nil {
		p.log = getLog
	}
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

// Start launches the fixed workers and the principal-pinned downstream workers.
func (p *Pipeline) Start() error {
	if p.onStartB != nil {
		if err := p.onStartB(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	for i := range p.downstream {
		p.wg.Add(1)
		go p.downstreamWorker(ctx, i)
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	if p.onStartA != nil {
		return p.onStartA()
	}
	return nil
}

// Reload is a no-op: the worker count is fixed at construction, matching the
// teacher's pattern of components whose pool size isn't hot-reloadable.
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

// Send pushes a ready kernel. Kernels moving downstream are routed to the
// worker pinned by a hash of their principal id, so react calls for the same
// principal never run concurrently.
func (p *Pipeline) Send(k *kernel.Kernel) {
	p.mu.Lock()
	stopping := p.stopping
	p.mu.Unlock()
	if stopping {
		return
	}

	if k.HasFlag(kernel.FlagNewThread) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runSafely(k)
		}()
		return
	}

	if !k.MovesUpstream() {
		idx := principalHash(k.Principal.ID) % uint64(len(p.downstream))
		p.downstream[idx] <- k
		return
	}

	p.ready <- k
}

// QueueDepth reports the ready queue's current length, for the status CLI
// command; nothing copies it into the parallel_queue_depth gauge.
func (p *Pipeline) QueueDepth() int {
	return len(p.ready)
}

func principalHash(id uint64) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return h.Sum64()
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drain(p.ready)
			return
		case k := <-p.ready:
			p.runSafely(k)
		}
	}
}

func (p *Pipeline) downstreamWorker(ctx context.Context, idx int) {
	defer p.wg.Done()
	ch := p.downstream[idx]
	for {
		select {
		case <-ctx.Done():
			p.drain(ch)
			return
		case k := <-ch:
			p.runSafely(k)
		}
	}
}

func (p *Pipeline) drain(ch chan *kernel.Kernel) {
	for {
		select {
		case k := <-ch:
			p.runSafely(k)
		default:
			return
		}
	}
}

// runSafely is the worker loop boundary: an uncaught panic in act/react is
// caught, logged, and terminates only that kernel — the worker continues.
func (p *Pipeline) runSafely(k *kernel.Kernel) {
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log().Error("parallel pipeline: recovered panic running kernel", r)
		}
	}()

	p.run.Run(k)
}

// Stop drains the ready queue, waits for in-flight kernels, then returns.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
}

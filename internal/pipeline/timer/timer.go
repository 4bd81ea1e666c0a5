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

// Package timer implements the single-thread, priority-queue pipeline that
// releases scheduled kernels at their due time (spec §4.2).
package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/nabbar/sbn/internal/factory"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
)

// Sack accepts pending kernels forgotten when the pipeline stops.
type Sack interface {
	Add(k *kernel.Kernel)
}

// Router hands a due kernel back to the factory for normal routing.
type Router interface {
	Route(k *kernel.Kernel)
}

type item struct {
	k   *kernel.Kernel
	seq uint64 // insertion order, used to break ties
}

type queue []item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].k.At.Equal(q[j].k.At) {
		return q[i].seq < q[j].seq
	}
	return q[i].k.At.Before(q[j].k.At)
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Pipeline is the single-thread timer pipeline: the thread sleeps with a
// timed wait until either a sooner kernel arrives or the soonest kernel's
// time is reached.
type Pipeline struct {
	mu  sync.Mutex
	q   queue
	seq uint64

	wake     chan struct{}
	stopping bool
	started  bool
	stopped  chan struct{}

	router Router
	sack   Sack
	getLog log.FuncLog

	key  string
	ctx  context.Context
	deps []string

	onStartB, onStartA   factory.FuncEvent
	onReloadB, onReloadA factory.FuncEvent
}

// New returns an unstarted timer pipeline; sack receives every pending
// scheduled kernel still queued when Stop runs.
func New(router Router, sack Sack) *Pipeline {
	return &Pipeline{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		router:  router,
		sack:    sack,
		ctx:     context.Background(),
	}
}

// QueueDepth reports the priority queue's current length, for the status
// CLI command; nothing copies it into the timer_queue_depth gauge.
func (p *Pipeline) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.q)
}

func (p *Pipeline) Type() string { return "pipeline.timer" }

func (p *Pipeline) Init(key string, ctx context.Context, _ factory.FuncComponentGet, getLog log.FuncLog) {
	p.key = key
	p.ctx = ctx
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

	go p.run()

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	if p.onStartA != nil {
		return p.onStartA()
	}
	return nil
}

// Reload is a no-op: the timer pipeline has no reloadable configuration of
// its own beyond the scheduled kernels already in flight.
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

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Send pushes a scheduled kernel and wakes the timer thread so it can
// re-evaluate whether this kernel is now the soonest due.
func (p *Pipeline) Send(k *kernel.Kernel) {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return
	}
	heap.Push(&p.q, item{k: k, seq: p.seq})
	p.seq++
	p.mu.Unlock()

	p.signal()
}

func (p *Pipeline) run() {
	for {
		p.mu.Lock()
		if p.stopping {
			p.mu.Unlock()
			close(p.stopped)
			return
		}

		if p.q.Len() == 0 {
			p.mu.Unlock()
			<-p.wake
			continue
		}

		next := p.q[0]
		wait := time.Until(next.k.At)
		if wait <= 0 {
			heap.Pop(&p.q)
			p.mu.Unlock()
			p.router.Route(next.k)
			continue
		}
		p.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-p.wake:
			timer.Stop()
		}
	}
}

// Stop causes the pipeline to forget all pending scheduled kernels, moving
// them to the sack, then releases the waiting thread.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopping = true
	for p.q.Len() > 0 {
		it := heap.Pop(&p.q).(item)
		p.sack.Add(it.k)
	}
	p.mu.Unlock()

	p.signal()
	<-p.stopped

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
}

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

package parallel

import (
	"sync"
	"testing"
	"time"

	"github.com/nabbar/sbn/internal/kernel"
)

type recordingPrincipal struct {
	mu  sync.Mutex
	ids []uint64
	wg  *sync.WaitGroup
}

func (r *recordingPrincipal) Run(k *kernel.Kernel) {
	r.mu.Lock()
	r.ids = append(r.ids, k.ID)
	r.mu.Unlock()
	r.wg.Done()
}

func TestPipelineRunsUpstreamKernels(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(3)
	run := &recordingPrincipal{wg: &wg}

	p := New(2, run, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	for i := uint64(1); i <= 3; i++ {
		p.Send(&kernel.Kernel{ID: i})
	}

	waitOrTimeout(t, &wg, time.Second)

	run.mu.Lock()
	defer run.mu.Unlock()
	if len(run.ids) != 3 {
		t.Fatalf("ran %d kernels, want 3", len(run.ids))
	}
}

func TestPipelineSerializesDownstreamByPrincipal(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(4)
	run := &recordingPrincipal{wg: &wg}

	p := New(4, run, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	for i := 0; i < 4; i++ {
		k := &kernel.Kernel{ID: uint64(i), ReturnCode: kernel.Success, Principal: kernel.RefToID(1)}
		p.Send(k)
	}

	waitOrTimeout(t, &wg, time.Second)

	// one principal means one pinned worker, so the kernels run in send order.
	run.mu.Lock()
	defer run.mu.Unlock()
	for i, id := range run.ids {
		if id != uint64(i) {
			t.Fatalf("downstream kernels ran in order %v, want [0 1 2 3]", run.ids)
		}
	}
}

func TestPipelineRejectsSendAfterStop(t *testing.T) {
	var wg sync.WaitGroup
	run := &recordingPrincipal{wg: &wg}

	p := New(1, run, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Stop()

	if p.IsStarted() {
		t.Fatalf("IsStarted() = true after Stop()")
	}

	// Send after Stop must not panic or block, even though nothing consumes
	// the channel anymore.
	p.Send(&kernel.Kernel{ID: 99})
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for kernels to run")
	}
}

package timer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/pipeline/timer"
)

type nop struct{}

func (nop) Act(k *kernel.Kernel) kernel.ExitCode            { return kernel.Success }
func (nop) React(k, reply *kernel.Kernel) kernel.ExitCode   { return kernel.Success }
func (nop) OnError(k, reply *kernel.Kernel) kernel.ExitCode { return kernel.Error }
func (nop) Write() ([]byte, error)                          { return nil, nil }
func (nop) Read(b []byte) error                              { return nil }

type recordingRouter struct {
	mu   sync.Mutex
	seen []int
}

func (r *recordingRouter) Route(k *kernel.Kernel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, int(k.ID))
}

type sack struct{}

func (sack) Add(*kernel.Kernel) {}

func TestSchedulerMonotonicity(t *testing.T) {
	router := &recordingRouter{}
	p := timer.New(router, sack{})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	base := time.Now().Add(50 * time.Millisecond)

	// submit in reverse chronological order, per scenario S5.
	for i := 10; i >= 1; i-- {
		k := kernel.New(1, nop{})
		k.ID = uint64(i)
		k.At = base.Add(time.Duration(i) * 20 * time.Millisecond)
		p.Send(k)
	}

	time.Sleep(350 * time.Millisecond)
	p.Stop()

	router.mu.Lock()
	defer router.mu.Unlock()

	if len(router.seen) != 10 {
		t.Fatalf("expected 10 fired kernels, got %d: %v", len(router.seen), router.seen)
	}
	for i := 0; i < 10; i++ {
		if router.seen[i] != i+1 {
			t.Fatalf("expected forward order 1..10, got %v", router.seen)
		}
	}
}

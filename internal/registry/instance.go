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

package registry

import (
	"sync/atomic"

	"github.com/hashicorp/go-uuid"

	"github.com/nabbar/sbn/internal/kernel"
)

// Instance is the per-process table of live kernels addressable by id,
// guarded by a mutex and consulted only at send/receive boundaries (never
// from inside act/react) per the concurrency model.
type Instance interface {
	Register(k *kernel.Kernel) uint64
	Lookup(id uint64) (*kernel.Kernel, bool)
	Forget(id uint64)
	NextID() uint64
}

type instance struct {
	t       Table[uint64, *kernel.Kernel]
	counter uint64
}

// NewInstance returns an empty Instance registry. The initial counter value
// is randomized via go-uuid so restarted processes don't reuse small ids that
// a stale peer might still recognize from a previous incarnation.
func NewInstance() Instance {
	seed, err := uuid.GenerateRandomBytes(8)
	var c uint64
	if err == nil {
		for _, b := range seed {
			c = c<<8 | uint64(b)
		}
	}
	if c == 0 {
		c = 1
	}

	return &instance{
		t:       New[uint64, *kernel.Kernel](),
		counter: c,
	}
}

// NextID reserves the next non-zero id; 0 is reserved for "unassigned".
func (i *instance) NextID() uint64 {
	for {
		v := atomic.AddUint64(&i.counter, 1)
		if v != 0 {
			return v
		}
	}
}

// Register assigns an id if the kernel doesn't have one and stores it.
func (i *instance) Register(k *kernel.Kernel) uint64 {
	if k.ID == 0 {
		k.ID = i.NextID()
	}
	i.t.Set(k.ID, k)
	return k.ID
}

func (i *instance) Lookup(id uint64) (*kernel.Kernel, bool) {
	return i.t.Get(id)
}

func (i *instance) Forget(id uint64) {
	i.t.Del(id)
}

/*
 * MIT License
 *
 * Copyright (c) 2023 Nicolas JUHEL
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

// Package registry holds the two generic in-memory tables the factory keeps:
// the instance registry (kernel id -> live handle) and the type registry
// (type id -> vtable). Both share the same Get/Del/List/Search/Walk shape.
package registry

import (
	"sync"

	"github.com/nabbar/sbn/internal/erx"
)

const (
	ErrorKeyNotFound erx.CodeError = iota + erx.MinPkgRegistry
	ErrorKeyAlreadyExists
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgRegistry, func(code erx.CodeError) string {
		switch code {
		case ErrorKeyNotFound:
			return "registry: key not found"
		case ErrorKeyAlreadyExists:
			return "registry: key already exists"
		default:
			return ""
		}
	})
}

// FuncWalk is called once per entry during Walk; returning false stops the iteration.
type FuncWalk[K comparable, M any] func(key K, val M) bool

// FuncSearch reports whether an entry matches an arbitrary predicate, used by Search.
type FuncSearch[K comparable, M any] func(key K, val M) bool

// Table is a generic, mutex-guarded key/value table. It is grounded on the
// teacher's KVTable/KVDriver generic shape but intentionally dropped the
// pluggable-driver layer: both the instance registry and the type registry
// are purely in-memory for the lifetime of a daemon process.
type Table[K comparable, M any] interface {
	Get(key K) (M, bool)
	Set(key K, val M)
	Del(key K)
	List() []M
	Search(fct FuncSearch[K, M]) []M
	Walk(fct FuncWalk[K, M])
	Len() int
}

type table[K comparable, M any] struct {
	mu sync.RWMutex
	m  map[K]M
}

// New returns an empty Table. Safe for concurrent use by multiple goroutines.
func New[K comparable, M any]() Table[K, M] {
	return &table[K, M]{
		m: make(map[K]M),
	}
}

func (t *table[K, M]) Get(key K) (M, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.m[key]
	return v, ok
}

func (t *table[K, M]) Set(key K, val M) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m[key] = val
}

func (t *table[K, M]) Del(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.m, key)
}

func (t *table[K, M]) List() []M {
	t.mu.RLock()
	defer t.mu.RUnlock()

	res := make([]M, 0, len(t.m))
	for _, v := range t.m {
		res = append(res, v)
	}
	return res
}

func (t *table[K, M]) Search(fct FuncSearch[K, M]) []M {
	t.mu.RLock()
	defer t.mu.RUnlock()

	res := make([]M, 0)
	for k, v := range t.m {
		if fct(k, v) {
			res = append(res, v)
		}
	}
	return res
}

func (t *table[K, M]) Walk(fct FuncWalk[K, M]) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for k, v := range t.m {
		if !fct(k, v) {
			return
		}
	}
}

func (t *table[K, M]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.m)
}

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
	"github.com/nabbar/sbn/internal/kernel"
)

// FuncNewPayload constructs a zero-value Payload for a TypeID; Read then
// populates it from the wire body.
type FuncNewPayload func() kernel.Payload

// Types is the type registry: the single source of truth binding a portable
// TypeID to the vtable implementing act/react/error/read/write. It is
// effectively immutable after Factory.Start, per the concurrency model.
type Types interface {
	Register(id kernel.TypeID, ctor FuncNewPayload)
	New(id kernel.TypeID) (kernel.Payload, bool)
}

type types struct {
	t Table[kernel.TypeID, FuncNewPayload]
}

func NewTypes() Types {
	return &types{t: New[kernel.TypeID, FuncNewPayload]()}
}

func (r *types) Register(id kernel.TypeID, ctor FuncNewPayload) {
	r.t.Set(id, ctor)
}

func (r *types) New(id kernel.TypeID) (kernel.Payload, bool) {
	ctor, ok := r.t.Get(id)
	if !ok {
		return nil, false
	}
	return ctor(), true
}

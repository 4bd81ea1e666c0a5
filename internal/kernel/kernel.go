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

// Package kernel defines the scheduler's unit of work: the Kernel itself, its
// Ref tagged union (in-process handle or bare id), and the ExitCode taxonomy
// that decides whether a kernel moves upstream or downstream.
package kernel

import (
	"net/netip"
	"time"

	"github.com/bits-and-blooms/bitset"
)

// ExitCode mirrors the exit_code enum of the routing/error-handling design.
type ExitCode uint8

const (
	Undefined ExitCode = iota
	Success
	Error
	EndpointNotConnected
	NoPrincipalFound
	NoUpstreamServersAvailable
	NoResources
)

// OSExitCode maps a response kernel's ExitCode to the CLI's process exit code.
func (e ExitCode) OSExitCode() int {
	switch e {
	case Success:
		return 0
	case Error:
		return 2
	case EndpointNotConnected:
		return 3
	case NoPrincipalFound:
		return 4
	case NoUpstreamServersAvailable:
		return 5
	case NoResources:
		return 6
	default:
		return 2
	}
}

// Flag bits stored in Kernel.Flags.
const (
	FlagCarriesParent uint = iota
	FlagTransactional
	FlagSendToSuperiorNode
	FlagSendToSubordinateNode
	FlagNewThread
	FlagParentIsID
	FlagPrincipalIsID
)

// TypeID is the portable numeric identifier the type registry maps to a vtable.
type TypeID uint16

// Handle is an arena index into a pipeline-local slab of live kernels; valid
// only within the process that allocated it (never serialized).
type Handle uint64

// Ref is the tagged union described by the parent/principal relation: either
// a direct in-process Handle, or a bare id to be resolved through the
// instance registry once a kernel crosses a transport boundary.
type Ref struct {
	Local Handle
	ID    uint64
	IsID  bool
}

// RefToHandle builds a local, in-process reference.
func RefToHandle(h Handle) Ref { return Ref{Local: h} }

// RefToID builds a bare-id reference, the form used after crossing a transport.
func RefToID(id uint64) Ref { return Ref{ID: id, IsID: true} }

// IsUnset reports whether the reference names nothing.
func (r Ref) IsUnset() bool { return !r.IsID && r.Local == 0 }

// Payload is implemented by every concrete kernel class. The registry binds a
// TypeID to a constructor returning a zero Payload that Read then populates.
type Payload interface {
	Act(k *Kernel) ExitCode
	React(k, reply *Kernel) ExitCode
	OnError(k, reply *Kernel) ExitCode
	Read(b []byte) error
	Write() ([]byte, error)
}

// ResourceTagged is optionally implemented by a Payload that reports a
// resource tag. Routing does not consult it.
type ResourceTagged interface {
	ResourceTag() (string, bool)
}

// Kernel is the scheduler's unit of work, serialized across process and node
// boundaries by internal/wire and dispatched by internal/pipeline/*.
type Kernel struct {
	ID            uint64
	ApplicationID uint64

	Parent    Ref
	Principal Ref

	Source      netip.AddrPort
	Destination netip.AddrPort

	ReturnCode ExitCode
	At         time.Time

	Flags *bitset.BitSet

	Type    TypeID
	Payload Payload
}

// New returns a Kernel with an initialized, empty flag set.
func New(typ TypeID, payload Payload) *Kernel {
	return &Kernel{
		Type:    typ,
		Payload: payload,
		Flags:   bitset.New(8),
	}
}

// MovesUpstream is invariant (i): undefined return code means outbound,
// toward a new subordinate; anything else means returning to principal.
func (k *Kernel) MovesUpstream() bool {
	return k.ReturnCode == Undefined
}

// IsFinal is invariant (ii): no principal and a concrete return code means
// this kernel is the application's final exit, consumed by the runtime.
func (k *Kernel) IsFinal() bool {
	return k.Principal.IsUnset() && k.ReturnCode != Undefined
}

func (k *Kernel) SetFlag(f uint) {
	if k.Flags == nil {
		k.Flags = bitset.New(8)
	}
	k.Flags.Set(f)
}

func (k *Kernel) HasFlag(f uint) bool {
	if k.Flags == nil {
		return false
	}
	return k.Flags.Test(f)
}

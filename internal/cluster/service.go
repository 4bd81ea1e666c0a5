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

// Package cluster defines the CLI-facing service kernels carried over the
// unix-socket pipeline: submit, status and terminate. These sit outside the
// scheduler core (spec.md's Non-goals name the CLI front-ends as an external
// collaborator) but still ride the same kernel/wire machinery as any other
// kernel, so they live in the same registry and use the same Act/React shape.
package cluster

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/nabbar/sbn/internal/hierarchy"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
)

// Service kernel type ids, reserved past the discoverer's own TypeProbe/
// TypeHierarchy range so both packages can register into the same registry.
const (
	TypeSubmit kernel.TypeID = 100 + iota
	TypeStatus
	TypeTerminate
)

// RegisterTypes binds the three CLI service kernel types into t.
func RegisterTypes(t registry.Types) {
	t.Register(TypeSubmit, func() kernel.Payload { return &SubmitKernel{} })
	t.Register(TypeStatus, func() kernel.Payload { return &StatusKernel{} })
	t.Register(TypeTerminate, func() kernel.Payload { return &TerminateKernel{} })
}

// Supervisor is implemented by the daemon side: the piece that actually owns
// process spawning, hierarchy introspection and kernel cancellation. Kept
// tiny and local to this package so cluster never imports internal/factory.
type Supervisor interface {
	Submit(argv []string) (applicationID uint64, err error)
	Snapshot() Snapshot
	Terminate(applicationID uint64) error
}

// Snapshot is the status command's view of the running daemon: its place in
// the hierarchy plus one row per pipeline queue depth.
type Snapshot struct {
	Local        hierarchy.Node
	Superior     hierarchy.Node
	HasSuperior  bool
	Subordinates []hierarchy.Node

	ParallelQueueDepth int
	TimerQueueDepth    int
}

// supervisor is the one live Supervisor this process runs; a service kernel's
// Act reaches it the same way discoverer.ProbeKernel reaches the live
// Discoverer, since registry.FuncNewPayload constructors carry no state.
var supervisor Supervisor

// Bind installs the process's Supervisor; called once during daemon startup,
// before the unix-socket pipeline is started.
func Bind(s Supervisor) { supervisor = s }

// CorrelationID is a request-scoped id distinct from the 64-bit kernel id
// space, letting a CLI client match a reply to the command it issued even if
// several commands are in flight on the same connection.
type CorrelationID = uuid.UUID

// NewCorrelationID returns a fresh random request id.
func NewCorrelationID() CorrelationID { return uuid.New() }

// SubmitKernel asks the daemon to spawn a new application.
type SubmitKernel struct {
	Correlation CorrelationID
	Argv        []string

	ApplicationID uint64
	Error         string
}

func (s *SubmitKernel) Act(k *kernel.Kernel) kernel.ExitCode {
	if supervisor == nil {
		s.Error = "no supervisor bound"
		return kernel.Error
	}
	id, err := supervisor.Submit(s.Argv)
	if err != nil {
		s.Error = err.Error()
		return kernel.Error
	}
	s.ApplicationID = id
	return kernel.Success
}

func (s *SubmitKernel) React(_, _ *kernel.Kernel) kernel.ExitCode   { return kernel.Success }
func (s *SubmitKernel) OnError(_, _ *kernel.Kernel) kernel.ExitCode { return kernel.Error }

func (s *SubmitKernel) Read(b []byte) error    { return cbor.Unmarshal(b, s) }
func (s *SubmitKernel) Write() ([]byte, error) { return cbor.Marshal(s) }

// StatusKernel asks the daemon for a Snapshot of its hierarchy position and
// pipeline load.
type StatusKernel struct {
	Correlation CorrelationID
	Result      Snapshot
}

func (s *StatusKernel) Act(k *kernel.Kernel) kernel.ExitCode {
	if supervisor == nil {
		return kernel.Error
	}
	s.Result = supervisor.Snapshot()
	return kernel.Success
}

func (s *StatusKernel) React(_, _ *kernel.Kernel) kernel.ExitCode   { return kernel.Success }
func (s *StatusKernel) OnError(_, _ *kernel.Kernel) kernel.ExitCode { return kernel.Error }

func (s *StatusKernel) Read(b []byte) error    { return cbor.Unmarshal(b, s) }
func (s *StatusKernel) Write() ([]byte, error) { return cbor.Marshal(s) }

// TerminateKernel asks the daemon to stop a running application.
type TerminateKernel struct {
	Correlation   CorrelationID
	ApplicationID uint64

	Error string
}

func (t *TerminateKernel) Act(k *kernel.Kernel) kernel.ExitCode {
	if supervisor == nil {
		t.Error = "no supervisor bound"
		return kernel.Error
	}
	if err := supervisor.Terminate(t.ApplicationID); err != nil {
		t.Error = err.Error()
		return kernel.Error
	}
	return kernel.Success
}

func (t *TerminateKernel) React(_, _ *kernel.Kernel) kernel.ExitCode   { return kernel.Success }
func (t *TerminateKernel) OnError(_, _ *kernel.Kernel) kernel.ExitCode { return kernel.Error }

func (t *TerminateKernel) Read(b []byte) error    { return cbor.Unmarshal(b, t) }
func (t *TerminateKernel) Write() ([]byte, error) { return cbor.Marshal(t) }

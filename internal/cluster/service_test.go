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

package cluster

import (
	"errors"
	"testing"

	"github.com/nabbar/sbn/internal/registry"
)

type fakeSupervisor struct {
	submitted []string
	killed    []uint64
	snap      Snapshot
	submitErr error
}

func (f *fakeSupervisor) Submit(argv []string) (uint64, error) {
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.submitted = append(f.submitted, argv[0])
	return 7, nil
}

func (f *fakeSupervisor) Snapshot() Snapshot { return f.snap }

func (f *fakeSupervisor) Terminate(applicationID uint64) error {
	f.killed = append(f.killed, applicationID)
	return nil
}

func TestRegisterTypesBindsAllThree(t *testing.T) {
	types := registry.NewTypes()
	RegisterTypes(types)

	if _, ok := types.New(TypeSubmit); !ok {
		t.Fatalf("TypeSubmit not registered")
	}
	if _, ok := types.New(TypeStatus); !ok {
		t.Fatalf("TypeStatus not registered")
	}
	if _, ok := types.New(TypeTerminate); !ok {
		t.Fatalf("TypeTerminate not registered")
	}
}

func TestSubmitKernelActUsesBoundSupervisor(t *testing.T) {
	fake := &fakeSupervisor{}
	Bind(fake)
	defer Bind(nil)

	sk := &SubmitKernel{Argv: []string{"/bin/true"}}
	if code := sk.Act(nil); code.OSExitCode() != 0 {
		t.Fatalf("Act() exit code = %d, want success", code.OSExitCode())
	}
	if sk.ApplicationID != 7 {
		t.Fatalf("ApplicationID = %d, want 7", sk.ApplicationID)
	}
	if len(fake.submitted) != 1 || fake.submitted[0] != "/bin/true" {
		t.Fatalf("Submit() not called with the kernel's argv: %v", fake.submitted)
	}
}

func TestSubmitKernelActReportsSupervisorError(t *testing.T) {
	fake := &fakeSupervisor{submitErr: errors.New("spawn failed")}
	Bind(fake)
	defer Bind(nil)

	sk := &SubmitKernel{Argv: []string{"/bin/false"}}
	code := sk.Act(nil)
	if code.OSExitCode() == 0 {
		t.Fatalf("Act() reported success despite a Submit() error")
	}
	if sk.Error != "spawn failed" {
		t.Fatalf("Error = %q, want %q", sk.Error, "spawn failed")
	}
}

func TestTerminateKernelActWithoutSupervisorFails(t *testing.T) {
	Bind(nil)

	tk := &TerminateKernel{ApplicationID: 1}
	if code := tk.Act(nil); code.OSExitCode() == 0 {
		t.Fatalf("Act() with no bound supervisor should fail")
	}
}

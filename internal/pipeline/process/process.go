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

// Package process is the process pipeline (spec §4.5): it forks application
// child processes, owns one duplex-pipe connection per child, and tears the
// connection down with peer-loss semantics when the child exits.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nabbar/sbn/internal/app"
	"github.com/nabbar/sbn/internal/erx"
	"github.com/nabbar/sbn/internal/factory"
	"github.com/nabbar/sbn/internal/log"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/transport"
)

const (
	ErrorSpawn erx.CodeError = iota + erx.MinPkgProcess
	ErrorRootRejected
	ErrorPipe
	ErrorNotRunning
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgProcess, func(code erx.CodeError) string {
		switch code {
		case ErrorSpawn:
			return "process: failed to spawn child application"
		case ErrorRootRejected:
			return "process: refusing to run as root without process.allow-root"
		case ErrorPipe:
			return "process: failed to set up duplex pipe"
		case ErrorNotRunning:
			return "process: no running application with that id"
		default:
			return ""
		}
	})
}

// EnvInputFD, EnvOutputFD, EnvApplicationID name the three environment
// variables the child runtime reads (spec §6 "Environment variables seen by
// child applications").
const (
	EnvInputFD      = "SBN_PIPE_IN_FD"
	EnvOutputFD     = "SBN_PIPE_OUT_FD"
	EnvApplicationID = "SBN_APPLICATION_ID"
)

// child is a single running application: its *exec.Cmd plus the Connection
// driving the parent side of its duplex pipe.
type child struct {
	app  *app.Application
	cmd  *exec.Cmd
	conn *transport.Connection
	w    *os.File // parent's write end (child reads it)
	r    *os.File // parent's read end (child writes it)
}

// Pipeline manages every spawned application on this node.
type Pipeline struct {
	mu       sync.Mutex
	children map[uint64]*child
	stopping bool
	wg       sync.WaitGroup

	allowRoot bool

	types    registry.Types
	instance registry.Instance
	deliver  transport.Deliverer

	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	getLog  log.FuncLog
	deps    []string
	started bool

	onStartB, onStartA   factory.FuncEvent
	onReloadB, onReloadA factory.FuncEvent
}

func New(allowRoot bool, types registry.Types, instance registry.Instance, deliver transport.Deliverer) *Pipeline {
	return &Pipeline{
		children:  make(map[uint64]*child),
		allowRoot: allowRoot,
		types:     types,
		instance:  instance,
		deliver:   deliver,
	}
}

func (p *Pipeline) Type() string { return "pipeline.process" }

func (p *Pipeline) Init(key string, ctx context.Context, _ factory.FuncComponentGet, getLog log.FuncLog) {
	p.key = key
	p.ctx, p.cancel = context.WithCancel(ctx)
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
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	if p.onStartA != nil {
		return p.onStartA()
	}
	return nil
}

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

// Add spawns a at the application descriptor a: a two-way pipe (two
// unidirectional os.Pipe pairs wrapped as one duplex channel), credentials
// applied before execve, and environment extended per spec §6.
func (p *Pipeline) Add(a *app.Application) error {
	if a.UID == 0 && !p.allowRoot {
		return ErrorRootRejected.Error(nil)
	}

	// childRead/parentWrite: parent -> child. parentRead/childWrite: child -> parent.
	childRead, parentWrite, err := os.Pipe()
	if err != nil {
		return ErrorPipe.Error(err)
	}
	parentRead, childWrite, err := os.Pipe()
	if err != nil {
		_ = childRead.Close()
		_ = parentWrite.Close()
		return ErrorPipe.Error(err)
	}

	if err = unix.SetNonblock(int(parentWrite.Fd()), false); err != nil {
		// best-effort: the pipe stays usable in blocking mode either way.
		_ = err
	}

	cmd := exec.Command(a.Argv[0], a.Argv[1:]...)
	cmd.ExtraFiles = []*os.File{childRead, childWrite}
	cmd.Env = a.EnvSlice(os.Environ())
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("%s=%d", EnvInputFD, 3+0),
		fmt.Sprintf("%s=%d", EnvOutputFD, 3+1),
		fmt.Sprintf("%s=%d", EnvApplicationID, a.ID),
	)
	cmd.Dir = a.WorkingDirectory
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: a.UID, Gid: a.GID},
	}

	if err = cmd.Start(); err != nil {
		_ = childRead.Close()
		_ = childWrite.Close()
		_ = parentRead.Close()
		_ = parentWrite.Close()
		return ErrorSpawn.Error(err)
	}

	_ = childRead.Close()
	_ = childWrite.Close()

	c := &child{
		app:  a,
		cmd:  cmd,
		conn: transport.NewConnection(a.ID, p.types, p.instance, p.deliver),
		w:    parentWrite,
		r:    parentRead,
	}

	p.mu.Lock()
	p.children[a.ID] = c
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(c)

	return nil
}

// Connection returns the live connection for a running application id, used
// by routing to deliver a downstream kernel to a sibling application on this
// node (spec §4.7 "process pipeline, destination = that application").
func (p *Pipeline) Connection(applicationID uint64) (*transport.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.children[applicationID]
	if !ok {
		return nil, false
	}
	return c.conn, true
}

// Kill sends SIGTERM to applicationID's process, used by the cluster
// service kernel's terminate command (spec §6 CLI). The child's own pump
// teardown runs PeerLoss once the exit closes the pipe; exec.Cmd.Wait reaps
// the process after that.
func (p *Pipeline) Kill(applicationID uint64) error {
	p.mu.Lock()
	c, ok := p.children[applicationID]
	p.mu.Unlock()
	if !ok {
		return ErrorNotRunning.Error(nil)
	}
	return c.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *Pipeline) run(c *child) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.children, c.app.ID)
		p.mu.Unlock()
	}()

	pumpPipe(p.ctx, c.r, c.w, c.conn, p.getLog)

	_ = c.w.Close()
	_ = c.r.Close()
	_ = c.cmd.Wait()
}

// Stop signals every child's pump to stop (tearing down with peer-loss) and
// waits for the goroutines to finish; it does not itself kill children —
// graceful shutdown lets them exit on their own EOF detection.
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

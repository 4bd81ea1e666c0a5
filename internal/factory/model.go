/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

package factory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/nabbar/sbn/internal/ctxstore"
	"github.com/nabbar/sbn/internal/log"
)

// Factory is the application's composition root. It owns the component
// registry, drives the start/reload/stop lifecycle in dependency order, and
// exposes a bounded grace window on Stop so in-flight kernels can finish
// upstream delivery before the process exits.
type Factory interface {
	Context() ctxstore.Config[string]
	CancelAdd(fct ...func())

	Start() error
	Reload() error

	// Stop drives every component's Stop() in reverse dependency order. If
	// ctx carries a deadline, components still running past it are abandoned
	// and their shutdown error is folded into the aggregate.
	Stop(ctx context.Context) error

	// Shutdown calls Stop with a background grace window then runs every
	// function registered through CancelAdd, the first of which cancels the
	// factory context.
	Shutdown(grace time.Duration)

	RegisterFuncStartBefore(fct FuncEvent)
	RegisterFuncStartAfter(fct FuncEvent)
	RegisterFuncStopBefore(fct FuncEvent)
	RegisterFuncStopAfter(fct FuncEvent)
	RegisterDefaultLogger(fct log.FuncLog)

	ComponentList
}

type factoryModel struct {
	m sync.RWMutex

	ctx ctxstore.Config[string]
	cpt ComponentList

	cancelFct []func()

	startBefore []FuncEvent
	startAfter  []FuncEvent
	stopBefore  []FuncEvent
	stopAfter   []FuncEvent

	getLog log.FuncLog
}

// New returns an empty Factory bound to a cancellable background context.
func New() Factory {
	ctx, cancel := context.WithCancel(context.Background())
	fct := func() context.Context {
		return ctx
	}

	return &factoryModel{
		ctx:       ctxstore.NewConfig[string](fct),
		cpt:       newComponentList(),
		cancelFct: []func(){cancel},
	}
}

func (f *factoryModel) Context() ctxstore.Config[string] {
	return f.ctx
}

func (f *factoryModel) CancelAdd(fct ...func()) {
	f.m.Lock()
	defer f.m.Unlock()

	f.cancelFct = append(f.cancelFct, fct...)
}

func (f *factoryModel) RegisterFuncStartBefore(fct FuncEvent) {
	f.m.Lock()
	defer f.m.Unlock()
	f.startBefore = append(f.startBefore, fct)
}

func (f *factoryModel) RegisterFuncStartAfter(fct FuncEvent) {
	f.m.Lock()
	defer f.m.Unlock()
	f.startAfter = append(f.startAfter, fct)
}

func (f *factoryModel) RegisterFuncStopBefore(fct FuncEvent) {
	f.m.Lock()
	defer f.m.Unlock()
	f.stopBefore = append(f.stopBefore, fct)
}

func (f *factoryModel) RegisterFuncStopAfter(fct FuncEvent) {
	f.m.Lock()
	defer f.m.Unlock()
	f.stopAfter = append(f.stopAfter, fct)
}

func (f *factoryModel) RegisterDefaultLogger(fct log.FuncLog) {
	f.m.Lock()
	defer f.m.Unlock()
	f.getLog = fct
}

func (f *factoryModel) ComponentSet(key string, cpt Component) { f.cpt.ComponentSet(key, cpt) }
func (f *factoryModel) ComponentGet(key string) Component      { return f.cpt.ComponentGet(key) }
func (f *factoryModel) ComponentDel(key string)                { f.cpt.ComponentDel(key) }
func (f *factoryModel) ComponentKeys() []string                { return f.cpt.ComponentKeys() }
func (f *factoryModel) ComponentStartOrder() ([]string, error) { return f.cpt.ComponentStartOrder() }

func (f *factoryModel) runHooks(hooks []FuncEvent) error {
	var res error
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if err := h(); err != nil {
			res = multierror.Append(res, err)
		}
	}
	return res
}

func (f *factoryModel) Start() error {
	if err := f.runHooks(f.startBefore); err != nil {
		return err
	}

	order, err := f.ComponentStartOrder()
	if err != nil {
		return err
	}

	for _, key := range order {
		cpt := f.ComponentGet(key)
		if cpt == nil {
			continue
		}
		if err = cpt.Start(); err != nil {
			return ErrorComponentStart.Error(err)
		}
	}

	return f.runHooks(f.startAfter)
}

func (f *factoryModel) Reload() error {
	order, err := f.ComponentStartOrder()
	if err != nil {
		return err
	}

	for _, key := range order {
		cpt := f.ComponentGet(key)
		if cpt == nil {
			continue
		}
		if err = cpt.Reload(); err != nil {
			return ErrorComponentReload.Error(err)
		}
	}

	return nil
}

// Stop runs components in the reverse of ComponentStartOrder, respecting ctx's
// deadline as the grace window described by the Factory interface.
func (f *factoryModel) Stop(ctx context.Context) error {
	_ = f.runHooks(f.stopBefore)

	order, err := f.ComponentStartOrder()
	if err != nil {
		return err
	}

	var merr error

	for i := len(order) - 1; i >= 0; i-- {
		cpt := f.ComponentGet(order[i])
		if cpt == nil {
			continue
		}

		done := make(chan struct{})
		go func(c Component) {
			c.Stop()
			close(done)
		}(cpt)

		select {
		case <-done:
		case <-ctx.Done():
			merr = multierror.Append(merr, ctx.Err())
		}
	}

	if e := f.runHooks(f.stopAfter); e != nil {
		merr = multierror.Append(merr, e)
	}

	return merr
}

func (f *factoryModel) Shutdown(grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	_ = f.Stop(ctx)

	f.m.RLock()
	fns := append([]func(){}, f.cancelFct...)
	f.m.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

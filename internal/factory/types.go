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

// Package factory is the composition root: it owns the routing table, the
// instance/type registries, and the lifecycle (Init/Start/Reload/Stop) of
// every pipeline (parallel, timer, process, socket, unix-socket) plus the
// discoverer and the transaction log. It is grounded on the teacher's
// config.Config/config.Component pair, trimmed of the generic-infra
// component types (database, http, mail...) that have no home in this domain.
package factory

import (
	"context"

	"github.com/nabbar/sbn/internal/log"
)

// FuncEvent is a lifecycle hook; a non-nil error aborts the sequence it was
// registered against.
type FuncEvent func() error

// FuncComponentGet resolves another registered component by its routing key,
// used for dependency injection between pipelines (e.g. socket needs registry).
type FuncComponentGet func(key string) Component

// Component is implemented by every pipeline, the discoverer, the registries
// and the transaction log. Factory drives them in dependency order.
type Component interface {
	// Type returns the component kind, used for logging ("pipeline.timer", "discoverer").
	Type() string

	// Init wires shared resources: context, peer lookup, logger.
	Init(key string, ctx context.Context, get FuncComponentGet, log log.FuncLog)

	// Dependencies lists component keys that must start before this one.
	Dependencies() []string

	RegisterFuncStart(before, after FuncEvent)
	RegisterFuncReload(before, after FuncEvent)

	IsStarted() bool
	IsRunning() bool

	Start() error
	Reload() error
	Stop()
}

// ComponentList is the dependency-ordered registry of Components a Factory drives.
type ComponentList interface {
	ComponentSet(key string, cpt Component)
	ComponentGet(key string) Component
	ComponentDel(key string)
	ComponentKeys() []string

	// ComponentStartOrder returns keys topologically sorted so that every
	// component appears after all of its Dependencies().
	ComponentStartOrder() ([]string, error)
}

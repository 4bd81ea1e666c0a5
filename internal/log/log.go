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

package log

import (
	"context"

	golog "github.com/nabbar/golib/logger"
)

type (
	// Logger is the teacher's logrus-backed logger, unchanged: every
	// pipeline in this module only ever calls Error/Warning on it, but the
	// full interface (SetLevel, SetOptions, Entry, Access, Clone, ...)
	// travels with the alias for callers that want it.
	Logger = golog.Logger

	// FuncLog is the lazy-injection seam every factory.Component.Init takes
	// instead of a concrete Logger, so components can be constructed before
	// the composition root has built the logger they will log through.
	FuncLog = golog.FuncLog
)

// New builds the logger the composition root threads through every
// component's FuncLog.
func New(ctx context.Context) Logger {
	return golog.New(ctx)
}

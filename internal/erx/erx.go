/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package erx reserves the scheduler's MinPkgXXX error-code ranges (see
// modules.go) and its CLI-facing Return shape (see return.go) on top of the
// teacher's own liberr package, rather than forking it.
package erx

import (
	liberr "github.com/nabbar/golib/errors"
)

type (
	// CodeError is a package-scoped numeric error code; every package in
	// this module declares a `const ErrorXXX CodeError = iota + MinPkgYYY`
	// block and registers its messages with RegisterIdFctMessage.
	CodeError = liberr.CodeError
	// Error is the code+trace+parent-chain error value CodeError.Error,
	// New and NewErrorTrace build.
	Error = liberr.Error
	// Message resolves a CodeError to its human-readable text.
	Message = liberr.Message
)

const (
	UnknownError   = liberr.UnknownError
	UnknownMessage = liberr.UnknownMessage
	NullMessage    = liberr.NullMessage
)

var (
	// RegisterIdFctMessage binds a package's reserved MinPkgYYY range to the
	// switch that resolves its CodeError values to messages.
	RegisterIdFctMessage = liberr.RegisterIdFctMessage

	// New, Newf, NewErrorTrace and IfError build an Error directly, for the
	// rare caller that does not go through a package-local CodeError const.
	New           = liberr.New
	Newf          = liberr.Newf
	NewErrorTrace = liberr.NewErrorTrace
	IfError       = liberr.IfError

	ParseCodeError = liberr.ParseCodeError
	NewCodeError   = liberr.NewCodeError
)

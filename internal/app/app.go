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

// Package app describes a child application the process pipeline can spawn:
// its argv, credentials, working directory and the random 64-bit id the
// kernel model uses to tag every kernel it owns.
package app

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-uuid"

	"github.com/nabbar/sbn/internal/erx"
)

const (
	ErrorValidation erx.CodeError = iota + erx.MinPkgApp
	ErrorGenerateID
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgApp, func(code erx.CodeError) string {
		switch code {
		case ErrorValidation:
			return "app: invalid application descriptor"
		case ErrorGenerateID:
			return "app: failed to generate application id"
		default:
			return ""
		}
	})
}

// Application is the descriptor the process pipeline spawns as a child.
// Every field here ends up either in SysProcAttr.Credential or in the
// environment the child inherits (spec §4.5, §6 "Environment variables seen
// by child applications").
type Application struct {
	ID uint64 `validate:"-"`

	Argv            []string `validate:"required,min=1"`
	WorkingDirectory string  `validate:"omitempty,dir"`

	UID uint32 `validate:"-"`
	GID uint32 `validate:"-"`

	// AllowRoot mirrors the `process.allow-root` config key; Validate rejects
	// UID 0 unless it is set, and the process pipeline applies its own
	// allow-root check at spawn time.
	AllowRoot bool `validate:"-"`

	Env map[string]string `validate:"-"`
}

// New returns an Application with a freshly generated random id. 0 is
// reserved for "unassigned" so the generator retries on that unlikely draw.
func New(argv []string) (*Application, error) {
	id, err := randomID()
	if err != nil {
		return nil, ErrorGenerateID.Error(err)
	}

	return &Application{
		ID:   id,
		Argv: argv,
		Env:  make(map[string]string),
	}, nil
}

func randomID() (uint64, error) {
	for {
		b, err := uuid.GenerateRandomBytes(8)
		if err != nil {
			return 0, err
		}

		var v uint64
		for _, x := range b {
			v = v<<8 | uint64(x)
		}

		if v != 0 {
			return v, nil
		}
	}
}

// Validate checks the descriptor is spawnable, per spec §4.5's rejection of
// malformed launches before execve.
func (a *Application) Validate() erx.Error {
	err := ErrorValidation.Error(nil)

	if er := libval.New().Struct(a); er != nil {
		if e, ok := er.(*libval.InvalidValidationError); ok {
			err.Add(e)
		} else if ve, ok := er.(libval.ValidationErrors); ok {
			for _, e := range ve {
				err.Add(fmt.Errorf("application field '%s' fails constraint '%s'", e.StructNamespace(), e.ActualTag()))
			}
		} else {
			err.Add(er)
		}
	}

	if a.UID == 0 && !a.AllowRoot {
		err.Add(fmt.Errorf("refusing to spawn as root without process.allow-root"))
	}

	if err.HasParent() {
		return err
	}

	return nil
}

// EnvSlice renders base followed by Env into the os/exec.Cmd.Env form; the
// process pipeline appends the pipe fd and application id variables after it.
func (a *Application) EnvSlice(base []string) []string {
	out := append([]string{}, base...)
	for k, v := range a.Env {
		out = append(out, k+"="+v)
	}
	return out
}

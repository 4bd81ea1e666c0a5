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

// Package txlog is the append-only transaction log: one start/end record pair
// per transactional kernel, replayed on startup to re-execute anything that
// never reached its end record (spec §6 "Persisted state", §9 "Transactional
// log replay must be idempotent").
package txlog

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/nabbar/sbn/internal/erx"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/log"
)

const (
	ErrorOpen erx.CodeError = iota + erx.MinPkgTxLog
	ErrorWrite
	ErrorReplay
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgTxLog, func(code erx.CodeError) string {
		switch code {
		case ErrorOpen:
			return "txlog: cannot open log file"
		case ErrorWrite:
			return "txlog: cannot append record"
		case ErrorReplay:
			return "txlog: cannot replay log file"
		default:
			return ""
		}
	})
}

// Kind is the record's u8 tag: start=1, end=2, per spec §6.
type Kind uint8

const (
	KindStart Kind = 1
	KindEnd   Kind = 2
)

// record is the CBOR body following the fixed u8/u64/u16/u64 header.
type record struct {
	KernelID      uint64
	TypeID        uint16
	ApplicationID uint64
	Body          []byte
}

// Replayer re-executes a recovered kernel; the factory implements this by
// handing the kernel straight to routing, exactly as a freshly act()-ed
// transactional kernel would be.
type Replayer interface {
	Replay(typ kernel.TypeID, applicationID uint64, kernelID uint64, body []byte)
}

// Log owns the on-disk file and appends start/end records when its Start and
// End methods are called. It is not a factory component, and no
// Connection or pipeline code calls it for transactional kernels.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer

	getLog log.FuncLog
}

func New(path string, getLog log.FuncLog) *Log {
	return &Log{path: path, getLog: getLog}
}

func (l *Log) Type() string { return "txlog" }

// Open creates or appends to the log file; it must be called before Start or
// End, which fail while the file is not open. Replay opens the file on its own.
func (l *Log) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ErrorOpen.Error(err)
	}

	l.f = f
	l.w = bufio.NewWriter(f)
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.f != nil {
		return l.f.Close()
	}
	return nil
}

func (l *Log) append(kind Kind, k *kernel.Kernel) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return ErrorWrite.Error(nil)
	}

	pb, err := k.Payload.Write()
	if err != nil {
		return ErrorWrite.Error(err)
	}

	rec := record{
		KernelID:      k.ID,
		TypeID:        uint16(k.Type),
		ApplicationID: k.ApplicationID,
		Body:          pb,
	}

	cb, err := cbor.Marshal(rec)
	if err != nil {
		return ErrorWrite.Error(err)
	}

	var hdr [1 + 8 + 2 + 8]byte
	hdr[0] = byte(kind)
	binary.LittleEndian.PutUint64(hdr[1:9], rec.KernelID)
	binary.LittleEndian.PutUint16(hdr[9:11], rec.TypeID)
	binary.LittleEndian.PutUint64(hdr[11:19], rec.ApplicationID)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(cb)))

	if _, err = l.w.Write(hdr[:]); err != nil {
		return ErrorWrite.Error(err)
	}
	if _, err = l.w.Write(lenBuf[:]); err != nil {
		return ErrorWrite.Error(err)
	}
	if _, err = l.w.Write(cb); err != nil {
		return ErrorWrite.Error(err)
	}

	return l.w.Flush()
}

// Start appends the start record before a transactional kernel's act() runs.
func (l *Log) Start(k *kernel.Kernel) error { return l.append(KindStart, k) }

// End appends the end record once act()/react() has completed, making the
// start/end pair idempotent on replay: a start with no matching end means
// the daemon crashed mid-kernel and that kernel must run again.
func (l *Log) End(k *kernel.Kernel) error { return l.append(KindEnd, k) }

// Replay reads the log file from the beginning, tracks (application_id,
// kernel_id) pairs whose start record has no matching end, and hands each
// survivor to r exactly once (spec §9 "dedupe by (application_id, kernel_id)").
func Replay(ctx context.Context, path string, r Replayer) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return ErrorReplay.Error(err)
	}
	defer func() { _ = f.Close() }()

	type key struct {
		app uint64
		id  uint64
	}

	pending := make(map[key]record)
	br := bufio.NewReader(f)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var hdr [1 + 8 + 2 + 8]byte
		if _, err = io.ReadFull(br, hdr[:]); err == io.EOF {
			break
		} else if err != nil {
			return ErrorReplay.Error(err)
		}

		kind := Kind(hdr[0])
		kernelID := binary.LittleEndian.Uint64(hdr[1:9])
		typeID := binary.LittleEndian.Uint16(hdr[9:11])
		appID := binary.LittleEndian.Uint64(hdr[11:19])

		var lenBuf [4]byte
		if _, err = io.ReadFull(br, lenBuf[:]); err != nil {
			return ErrorReplay.Error(err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])

		body := make([]byte, n)
		if _, err = io.ReadFull(br, body); err != nil {
			return ErrorReplay.Error(err)
		}

		var rec record
		if err = cbor.Unmarshal(body, &rec); err != nil {
			return ErrorReplay.Error(err)
		}
		rec.TypeID = typeID

		k := key{app: appID, id: kernelID}
		switch kind {
		case KindStart:
			pending[k] = rec
		case KindEnd:
			delete(pending, k)
		}
	}

	for k, rec := range pending {
		r.Replay(kernel.TypeID(rec.TypeID), k.app, k.id, rec.Body)
	}

	return nil
}

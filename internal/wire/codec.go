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

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nabbar/sbn/internal/erx"
	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
)

const (
	ErrorUnknownType erx.CodeError = iota + erx.MinPkgWire
	ErrorShortBody
	ErrorEncode
	ErrorDecode
)

func init() {
	erx.RegisterIdFctMessage(erx.MinPkgWire, func(code erx.CodeError) string {
		switch code {
		case ErrorUnknownType:
			return "wire: unknown kernel type id"
		case ErrorShortBody:
			return "wire: truncated kernel body"
		case ErrorEncode:
			return "wire: kernel encode failure"
		case ErrorDecode:
			return "wire: kernel decode failure"
		default:
			return ""
		}
	})
}

// body is the CBOR envelope for everything after the type id: the fixed
// kernel fields plus the payload's own Write() bytes, so DecodeForeign can
// read the routing fields without resolving the type.
type body struct {
	ID            uint64
	ApplicationID uint64
	ParentID      uint64
	ParentIsID    bool
	PrincipalID   uint64
	PrincipalIsID bool
	ReturnCode    kernel.ExitCode
	CarriesParent bool
	PayloadBytes  []byte
}

// EncodeKernel serializes type-id (2 bytes) followed by the CBOR body, per
// the §4.3 body layout.
func EncodeKernel(k *kernel.Kernel) ([]byte, error) {
	pb, err := k.Payload.Write()
	if err != nil {
		return nil, ErrorEncode.Error(err)
	}

	b := body{
		ID:            k.ID,
		ApplicationID: k.ApplicationID,
		ParentID:      k.Parent.ID,
		ParentIsID:    k.Parent.IsID,
		PrincipalID:   k.Principal.ID,
		PrincipalIsID: k.Principal.IsID,
		ReturnCode:    k.ReturnCode,
		CarriesParent: k.HasFlag(kernel.FlagCarriesParent),
		PayloadBytes:  pb,
	}

	cb, err := cbor.Marshal(b)
	if err != nil {
		return nil, ErrorEncode.Error(err)
	}

	out := make([]byte, 2+len(cb))
	binary.LittleEndian.PutUint16(out, uint16(k.Type))
	copy(out[2:], cb)
	return out, nil
}

// DecodeKernel is the receive-path inverse of EncodeKernel: it resolves the
// type id through the registry, constructs a zero payload, and calls Read on
// the embedded payload bytes.
func DecodeKernel(raw []byte, types registry.Types) (*kernel.Kernel, error) {
	if len(raw) < 2 {
		return nil, ErrorShortBody.Error(nil)
	}

	typ := kernel.TypeID(binary.LittleEndian.Uint16(raw))

	var b body
	if err := cbor.Unmarshal(raw[2:], &b); err != nil {
		return nil, ErrorDecode.Error(err)
	}

	payload, ok := types.New(typ)
	if !ok {
		return nil, ErrorUnknownType.Error(fmt.Errorf("type %d", typ))
	}

	if err := payload.Read(b.PayloadBytes); err != nil {
		return nil, ErrorDecode.Error(err)
	}

	k := kernel.New(typ, payload)
	k.ID = b.ID
	k.ApplicationID = b.ApplicationID
	k.ReturnCode = b.ReturnCode
	if b.ParentIsID {
		k.Parent = kernel.RefToID(b.ParentID)
	}
	if b.PrincipalIsID {
		k.Principal = kernel.RefToID(b.PrincipalID)
	}
	if b.CarriesParent {
		k.SetFlag(kernel.FlagCarriesParent)
	}

	return k, nil
}

// DecodeForeign extracts only what routing needs without resolving the type,
// used when the application id is not hosted locally (§4.7 foreign kernel row).
func DecodeForeign(typ kernel.TypeID, raw []byte) (*kernel.ForeignKernel, error) {
	var b body
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return nil, ErrorDecode.Error(err)
	}

	f := &kernel.ForeignKernel{
		Type:          typ,
		ApplicationID: b.ApplicationID,
		ID:            b.ID,
		ReturnCode:    b.ReturnCode,
		RawBody:       raw,
	}
	if b.ParentIsID {
		f.Parent = kernel.RefToID(b.ParentID)
	}
	if b.PrincipalIsID {
		f.Principal = kernel.RefToID(b.PrincipalID)
	}
	return f, nil
}

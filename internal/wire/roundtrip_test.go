package wire_test

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/wire"
)

type echoPayload struct {
	Value uint32
}

func (e *echoPayload) Act(k *kernel.Kernel) kernel.ExitCode                { return kernel.Success }
func (e *echoPayload) React(k, reply *kernel.Kernel) kernel.ExitCode       { return kernel.Success }
func (e *echoPayload) OnError(k, reply *kernel.Kernel) kernel.ExitCode     { return kernel.Error }
func (e *echoPayload) Write() ([]byte, error) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, e.Value)
	return b, nil
}
func (e *echoPayload) Read(b []byte) error {
	if len(b) < 4 {
		return nil
	}
	e.Value = binary.LittleEndian.Uint32(b)
	return nil
}

const typeEcho kernel.TypeID = 1

func TestRoundTrip(t *testing.T) {
	types := registry.NewTypes()
	types.Register(typeEcho, func() kernel.Payload { return &echoPayload{} })

	k := kernel.New(typeEcho, &echoPayload{Value: 42})
	k.ID = 7
	k.ApplicationID = 99
	k.Principal = kernel.RefToID(3)
	k.ReturnCode = kernel.Success

	raw, err := wire.EncodeKernel(k)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := wire.DecodeKernel(raw, types)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ID != k.ID || got.ApplicationID != k.ApplicationID || got.ReturnCode != k.ReturnCode {
		t.Fatalf("fields mismatch: %+v vs %+v", got, k)
	}
	if got.Principal != k.Principal {
		t.Fatalf("principal mismatch: %+v vs %+v", got.Principal, k.Principal)
	}
	if got.Payload.(*echoPayload).Value != 42 {
		t.Fatalf("payload mismatch")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := wire.Header{
		Version:       wire.ProtocolVersion,
		ApplicationID: 123,
		Source:        netip.MustParseAddrPort("10.0.0.1:9000"),
		Destination:   netip.MustParseAddrPort("10.0.0.2:9000"),
	}

	enc := wire.EncodeHeader(h)
	got, n, err := wire.DecodeHeader(enc)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d, want %d", n, len(enc))
	}
	if got.ApplicationID != h.ApplicationID || got.Source != h.Source || got.Destination != h.Destination {
		t.Fatalf("header mismatch: %+v vs %+v", got, h)
	}
}

func TestBufferFraming(t *testing.T) {
	b := wire.NewBuffer()
	b.WriteFrame([]byte("hello"))
	b.WriteFrame([]byte("world"))

	p1, ok := b.ReadFrame()
	if !ok || string(p1) != "hello" {
		t.Fatalf("frame 1: %v %v", p1, ok)
	}

	p2, ok := b.ReadFrame()
	if !ok || string(p2) != "world" {
		t.Fatalf("frame 2: %v %v", p2, ok)
	}

	if _, ok := b.ReadFrame(); ok {
		t.Fatalf("expected no more frames")
	}
}

func TestBufferTruncatedFrameRetries(t *testing.T) {
	frame := rebuildFrame("payload")

	dst := wire.NewBuffer()
	// feed only the 4-byte length prefix first: not enough for a full frame yet.
	n := copy(dst.Unread(), frame[:4])
	dst.Advance(n)
	if _, ok := dst.ReadFrame(); ok {
		t.Fatalf("expected incomplete frame to not be ready")
	}

	// now feed the rest; the read position must have been left untouched.
	n = copy(dst.Unread(), frame[4:])
	dst.Advance(n)

	p, ok := dst.ReadFrame()
	if !ok || string(p) != "payload" {
		t.Fatalf("expected full frame after completing it, got %v %v", p, ok)
	}
}

// rebuildFrame encodes the same 4-byte little-endian length prefix WriteFrame
// produces, for payloads short enough that the length fits in one byte.
func rebuildFrame(s string) []byte {
	n := len(s)
	out := make([]byte, 4+n)
	out[0] = byte(n)
	copy(out[4:], s)
	return out
}

package transport_test

import (
	"testing"

	"github.com/nabbar/sbn/internal/kernel"
	"github.com/nabbar/sbn/internal/registry"
	"github.com/nabbar/sbn/internal/transport"
)

type nopPayload struct{}

func (nopPayload) Act(k *kernel.Kernel) kernel.ExitCode            { return kernel.Success }
func (nopPayload) React(k, reply *kernel.Kernel) kernel.ExitCode   { return kernel.Success }
func (nopPayload) OnError(k, reply *kernel.Kernel) kernel.ExitCode { return kernel.Error }
func (nopPayload) Write() ([]byte, error)                         { return nil, nil }
func (nopPayload) Read(b []byte) error                             { return nil }

type recordingDeliverer struct {
	delivered []*kernel.Kernel
}

func (r *recordingDeliverer) Deliver(k *kernel.Kernel)               { r.delivered = append(r.delivered, k) }
func (r *recordingDeliverer) DeliverForeign(*kernel.ForeignKernel)   {}

type recordingSack struct {
	added []*kernel.Kernel
}

func (s *recordingSack) Add(k *kernel.Kernel) { s.added = append(s.added, k) }

func TestSaveListInvariant(t *testing.T) {
	types := registry.NewTypes()
	instance := registry.NewInstance()
	deliverer := &recordingDeliverer{}
	conn := transport.NewConnection(1, types, instance, deliverer)

	k := kernel.New(1, nopPayload{})
	k.ApplicationID = 1
	k.ReturnCode = kernel.Undefined // moves upstream

	if err := conn.Send(k); err != nil {
		t.Fatalf("send: %v", err)
	}

	if conn.UpstreamSaveLen() != 1 {
		t.Fatalf("expected 1 upstream-saved kernel, got %d", conn.UpstreamSaveLen())
	}
}

func TestRecoveryLawOnPeerLoss(t *testing.T) {
	types := registry.NewTypes()
	instance := registry.NewInstance()
	deliverer := &recordingDeliverer{}
	conn := transport.NewConnection(1, types, instance, deliverer)

	k := kernel.New(1, nopPayload{})
	k.ApplicationID = 1
	k.ReturnCode = kernel.Undefined

	if err := conn.Send(k); err != nil {
		t.Fatalf("send: %v", err)
	}

	sack := &recordingSack{}
	conn.PeerLoss(sack)

	if len(deliverer.delivered) != 1 {
		t.Fatalf("expected recovered kernel delivered locally, got %d", len(deliverer.delivered))
	}
	if deliverer.delivered[0].ReturnCode != kernel.EndpointNotConnected {
		t.Fatalf("expected endpoint_not_connected, got %v", deliverer.delivered[0].ReturnCode)
	}
	if conn.UpstreamSaveLen() != 0 {
		t.Fatalf("upstream save should be cleared after peer loss")
	}
}

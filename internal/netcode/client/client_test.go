package client

import (
	"sync"
	"testing"
	"time"

	"spacelock/internal/config"
	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/session"
	"spacelock/internal/netcode/sim"
	"spacelock/internal/netcode/wire"
	"spacelock/internal/spaceship"
)

// fakeTransport is an in-memory stand-in for *session.Client: it records
// everything sent and lets a test queue up inbound bytes as if they had
// arrived from the server.
type fakeTransport struct {
	mu         sync.Mutex
	reliable   [][]byte
	unreliable [][]byte
	inbox      []session.Inbound
}

func (t *fakeTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reliable = append(t.reliable, payload)
	return nil
}

func (t *fakeTransport) SendUnreliable(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreliable = append(t.unreliable, payload)
	return nil
}

func (t *fakeTransport) Drain() []session.Inbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.inbox
	t.inbox = nil
	return out
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) deliver(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, session.Inbound{Payload: payload})
}

func newTestClient(tr *fakeTransport) *Controller {
	return New(tr, 1, config.SimConfig{TickRate: 30, Delays: []uint32{0, 4, 10}, RNGSeed: 7}, config.ClientConfig{SyncInterval: time.Hour})
}

func TestSubmitCommandInsertsNonAuthoritativeAndSends(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(tr)

	if err := c.SubmitCommand(spaceship.KindThrust, []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.reliable) != 1 {
		t.Fatalf("expected one reliable send, got %d", len(tr.reliable))
	}
	tag, _, err := wire.PeekTag(tr.reliable[0])
	if err != nil || tag != wire.TagCommand {
		t.Fatalf("expected COMMAND, got tag=%v err=%v", tag, err)
	}
}

func TestInstallFullStateTransitionsToConnected(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(tr)

	snap := sim.NewSnapshot(500, 42, spaceship.Factories(), spaceship.Handler{})
	w := packet.NewWriter()
	snap.Serialize(w)

	tr.deliver(wire.EncodeGameStateResponse(w.Bytes()))
	if err := c.Update(0); err != nil {
		t.Fatalf("update: %v", err)
	}

	if c.State() != Connected {
		t.Fatalf("expected Connected after installing full state, got %v", c.State())
	}
	if c.LeadingFrame() != 500 {
		t.Fatalf("expected leading frame 500 after install, got %d", c.LeadingFrame())
	}
}

func TestHandleCommandAppliesWithoutRollbackWhenNotYetStepped(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(tr)

	// Scenario 1: command echo with no rollback, since the local leading
	// frame (0) has not yet stepped past frame 0.
	cmd := sim.Command{PlayerID: 1, Frame: 0, Kind: spaceship.KindThrust, Payload: []byte{1}}
	tr.deliver(wire.EncodeCommand(cmd))
	if err := c.Update(0); err != nil {
		t.Fatalf("update: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.reliable) != 0 {
		t.Fatalf("expected no resync request for an on-time command, got %d sends", len(tr.reliable))
	}
}

func TestStaleCommandEchoTriggersFullResyncRequest(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(tr)

	for i := 0; i < 20; i++ {
		if err := c.sim.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	staleCmd := sim.Command{PlayerID: 1, Frame: 0, Kind: spaceship.KindThrust, Payload: []byte{1}}
	tr.deliver(wire.EncodeCommand(staleCmd))
	if err := c.Update(0); err != nil {
		t.Fatalf("update: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	found := false
	for _, msg := range tr.reliable {
		if tag, _, err := wire.PeekTag(msg); err == nil && tag == wire.TagGameStateRequest {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a GAME_STATE_REQUEST after receiving a stale authoritative command")
	}
}

func TestHashCheckMismatchTriggersResyncRequest(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(tr)

	for i := 0; i < 10; i++ {
		c.sim.Step()
	}
	trailingFrame := c.sim.TrailingFrame()

	tr.deliver(wire.EncodeHashCheck(wire.HashCheck{TrailingFrame: trailingFrame, Hash: c.sim.SnapshotHash() ^ 0xffffffff}))
	if err := c.Update(0); err != nil {
		t.Fatalf("update: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	found := false
	for _, msg := range tr.reliable {
		if tag, _, err := wire.PeekTag(msg); err == nil && tag == wire.TagGameStateRequest {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a GAME_STATE_REQUEST after a hash mismatch")
	}
}

func TestHashCheckMatchDoesNotTriggerResync(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(tr)

	for i := 0; i < 10; i++ {
		c.sim.Step()
	}
	trailingFrame := c.sim.TrailingFrame()

	tr.deliver(wire.EncodeHashCheck(wire.HashCheck{TrailingFrame: trailingFrame, Hash: c.sim.SnapshotHash()}))
	if err := c.Update(0); err != nil {
		t.Fatalf("update: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.reliable) != 0 {
		t.Fatalf("expected no resync request on a matching hash, got %d sends", len(tr.reliable))
	}
}

func TestSyncReplySetsTargetFrameAndBoundsCorrection(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(tr)

	c.handleSync(wire.Sync{EchoedFrame: 0, ServerFrame: 1000})
	if got := c.correctionTerm(); got != maxCorrectionFramesPerTick {
		t.Fatalf("expected correction bounded to %d, got %d", maxCorrectionFramesPerTick, got)
	}
}

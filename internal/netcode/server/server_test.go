package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"spacelock/internal/config"
	"spacelock/internal/netcode/session"
	"spacelock/internal/netcode/sim"
	"spacelock/internal/netcode/wire"
	"spacelock/internal/spaceship"
)

// fakeConn records every reliable/unreliable send it receives, standing
// in for a session.Conn without a live QUIC connection.
type fakeConn struct {
	mu         sync.Mutex
	reliable   [][]byte
	unreliable [][]byte
}

func (c *fakeConn) SendReliable(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reliable = append(c.reliable, payload)
	return nil
}

func (c *fakeConn) SendUnreliable(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unreliable = append(c.unreliable, payload)
	return nil
}

// fakeTransport is a minimal in-memory stand-in for *session.Server,
// letting the controller's tick logic be exercised without a network.
type fakeTransport struct {
	mu      sync.Mutex
	inbox   []session.Inbound
	conns   map[session.PlayerID]*fakeConn
	allSent [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(map[session.PlayerID]*fakeConn)}
}

func (t *fakeTransport) addPeer(id session.PlayerID) *fakeConn {
	c := &fakeConn{}
	t.mu.Lock()
	t.conns[id] = c
	t.mu.Unlock()
	return c
}

func (t *fakeTransport) push(id session.PlayerID, payload []byte) {
	t.mu.Lock()
	t.inbox = append(t.inbox, session.Inbound{Peer: id, Payload: payload, Reliable: true})
	t.mu.Unlock()
}

func (t *fakeTransport) Drain() []session.Inbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.inbox
	t.inbox = nil
	return out
}

// Joins always reports no new connections: every test in this file
// admits peers directly via Controller.Join rather than through the
// accept-loop notification path tick() otherwise drains.
func (t *fakeTransport) Joins() []session.PlayerID { return nil }

func (t *fakeTransport) Conn(id session.PlayerID) (session.PeerConn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[id]
	return c, ok
}

func (t *fakeTransport) Broadcast(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allSent = append(t.allSent, payload)
	for _, c := range t.conns {
		c.SendReliable(payload)
	}
}

func (t *fakeTransport) BroadcastUnreliable(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		c.SendUnreliable(payload)
	}
}

func (t *fakeTransport) AcceptLoop(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func newTestController(tr transport) *Controller {
	return New(tr, session.NewRoster(0), config.SimConfig{TickRate: 30, Delays: []uint32{0, 4, 10}, RNGSeed: 1}, config.DefaultSession(), nil)
}

func TestJoinSpawnsShipAndSendsFullState(t *testing.T) {
	tr := newFakeTransport()
	conn := tr.addPeer(1)
	c := newTestController(tr)

	if err := c.Join(1, 100, 100); err != nil {
		t.Fatalf("join: %v", err)
	}

	if len(tr.allSent) != 1 {
		t.Fatalf("expected one ADD_ENTITY broadcast, got %d", len(tr.allSent))
	}
	tag, _, err := wire.PeekTag(tr.allSent[0])
	if err != nil || tag != wire.TagAddEntity {
		t.Fatalf("expected ADD_ENTITY broadcast, got tag=%v err=%v", tag, err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.reliable) < 2 {
		t.Fatalf("expected the joiner to receive full state then ADD_ENTITY, got %d messages", len(conn.reliable))
	}
	// The state install discards the joiner's command log, so the full
	// state must arrive before the ADD_ENTITY for its own ship.
	firstTag, _, err := wire.PeekTag(conn.reliable[0])
	if err != nil || firstTag != wire.TagGameStateResponse {
		t.Fatalf("expected GAME_STATE_RESPONSE as the joiner's first message, got tag=%v err=%v", firstTag, err)
	}
	lastTag, _, err := wire.PeekTag(conn.reliable[len(conn.reliable)-1])
	if err != nil || lastTag != wire.TagAddEntity {
		t.Fatalf("expected ADD_ENTITY as the joiner's last message, got tag=%v err=%v", lastTag, err)
	}
}

func TestIntakeCommandTooOldIsRejectedAndEchoed(t *testing.T) {
	tr := newFakeTransport()
	conn := tr.addPeer(1)
	c := newTestController(tr)
	if err := c.Join(1, 0, 0); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Step far enough that trailing_frame > 0.
	for i := 0; i < 20; i++ {
		c.sim.Step()
	}

	staleCmd := sim.Command{PlayerID: 1, Frame: 0, Kind: spaceship.KindThrust, Payload: []byte{1}}
	c.intakeCommand(1, staleCmd)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	found := false
	for _, msg := range conn.reliable {
		if tag, _, err := wire.PeekTag(msg); err == nil && tag == wire.TagCommand {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the stale command to be echoed back to its sender")
	}
}

func TestBroadcastHashCheckFiresOnInterval(t *testing.T) {
	tr := newFakeTransport()
	tr.addPeer(1)
	c := newTestController(tr)
	c.sess.HashCheckInterval = time.Nanosecond
	c.lastHashCheck = time.Now().Add(-time.Hour)

	c.tick()

	peer := tr.conns[1]
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if len(peer.unreliable) != 1 {
		t.Fatalf("expected exactly one HASH_CHECK datagram, got %d", len(peer.unreliable))
	}
	tag, _, err := wire.PeekTag(peer.unreliable[0])
	if err != nil || tag != wire.TagHashCheck {
		t.Fatalf("expected HASH_CHECK, got tag=%v err=%v", tag, err)
	}
}

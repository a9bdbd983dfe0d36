// Package server implements the authoritative server controller: the
// frame clock, command intake with too-old rejection, entity add/remove
// driven only by the server, periodic hash-check broadcasts, and
// peer-timeout handling.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"spacelock/internal/config"
	"spacelock/internal/netcode/metrics"
	"spacelock/internal/netcode/session"
	"spacelock/internal/netcode/sim"
	"spacelock/internal/netcode/store"
	"spacelock/internal/netcode/tss"
	"spacelock/internal/netcode/wire"
	"spacelock/internal/spaceship"
)

// transport is the subset of *session.Server the controller depends on,
// kept as an interface so the tick loop's command-intake and broadcast
// logic can be exercised without a live QUIC listener.
type transport interface {
	Drain() []session.Inbound
	Joins() []session.PlayerID
	Conn(id session.PlayerID) (session.PeerConn, bool)
	Broadcast(payload []byte)
	BroadcastUnreliable(payload []byte)
	AcceptLoop(ctx context.Context) error
}

// Controller owns the command log, the simulation container, and the
// session roster. None of that state is ever observed from outside the
// controller's own tick.
type Controller struct {
	mu sync.Mutex

	sim    *tss.Container
	roster *session.Roster
	conns  transport
	store  *store.Store // nil disables persistence

	cfg  config.SimConfig
	sess config.SessionConfig

	nextEntityID  sim.EntityID
	playerShips   map[session.PlayerID]sim.EntityID
	lastHashCheck time.Time
}

// New constructs a server controller bound to an already-listening
// transport. store may be nil to disable disk persistence.
func New(conns transport, roster *session.Roster, cfg config.SimConfig, sess config.SessionConfig, st *store.Store) *Controller {
	seed := cfg.RNGSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ctrl := &Controller{
		sim:          tss.New(0, seed, cfg.Delays, spaceship.Factories(), spaceship.Handler{}),
		roster:       roster,
		conns:        conns,
		store:        st,
		cfg:          cfg,
		sess:         sess,
		nextEntityID: 1,
		playerShips:  make(map[session.PlayerID]sim.EntityID),
	}
	ctrl.sim.LimitCommandsPerFrame(cfg.Limits.MaxCommandsPerFrame)
	return ctrl
}

// Run drives the accept loop and the fixed-rate tick loop until ctx is
// cancelled. Only the tick goroutine ever touches sim/roster state;
// AcceptLoop only ever touches the transport and is supervised
// alongside it via errgroup.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.conns.AcceptLoop(ctx)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Second / time.Duration(c.cfg.TickRate))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.tick()
			}
		}
	})

	return g.Wait()
}

func (c *Controller) tick() {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, peer := range c.conns.Joins() {
		x, y := spawnPoint(peer)
		if err := c.joinLocked(peer, x, y); err != nil {
			log.Printf("spacelock: join for peer %d failed: %v", peer, err)
		}
	}

	for _, msg := range c.conns.Drain() {
		c.handleInbound(msg)
	}

	if err := c.sim.Step(); err != nil {
		log.Printf("spacelock: server step error: %v", err)
	}
	c.sim.PruneLog()

	c.scavengeMissiles()
	c.scavengeDestroyedShips()
	c.reapTimedOutPeers()

	if time.Since(c.lastHashCheck) >= c.sess.HashCheckInterval {
		c.broadcastHashCheck()
		c.lastHashCheck = time.Now()
	}

	metrics.PeerCount.Set(float64(c.roster.Len()))
	metrics.RecordTick(time.Since(start))
}

func (c *Controller) handleInbound(msg session.Inbound) {
	if p, ok := c.roster.Get(msg.Peer); ok && !p.Touch() {
		return // over its datagram budget: traffic dropped, peer stays alive
	}

	tag, r, err := wire.PeekTag(msg.Payload)
	if err != nil {
		return // truncated/unknown tag: dropped, no session impact
	}

	switch tag {
	case wire.TagCommand:
		cmd, err := wire.DecodeCommand(r)
		if err != nil {
			metrics.RecordCommandRejected("malformed")
			log.Printf("spacelock: dropping malformed command from peer %d: %v", msg.Peer, err)
			return
		}
		c.intakeCommand(msg.Peer, cmd)

	case wire.TagSync:
		s, err := wire.DecodeSync(r)
		if err != nil {
			return
		}
		reply := wire.EncodeSyncReply(wire.Sync{EchoedFrame: s.EchoedFrame, ServerFrame: c.sim.LeadingFrame()})
		if conn, ok := c.conns.Conn(msg.Peer); ok {
			_ = conn.SendReliable(reply)
		}

	case wire.TagGameStateRequest:
		c.sendFullState(msg.Peer)
	}
}

// intakeCommand marks the command authoritative, rejects anything older
// than the trailing frame, and otherwise pushes and broadcasts it —
// including a reflection back to the sender, which doubles as the
// authoritative-version ACK the client upgrades its optimistic copy
// with.
func (c *Controller) intakeCommand(sender session.PlayerID, cmd sim.Command) {
	cmd.PlayerID = sender
	cmd.Authoritative = true

	if max := c.cfg.Limits.MaxCommandPayloadBytes; max > 0 && len(cmd.Payload) > max {
		metrics.RecordCommandRejected("too_large")
		return
	}

	if cmd.Frame < c.sim.TrailingFrame() {
		metrics.RecordCommandRejected("too_old")
		if conn, ok := c.conns.Conn(sender); ok {
			_ = conn.SendReliable(wire.EncodeCommand(cmd)) // echoed so the client can purge its optimistic copy
		}
		return
	}

	lead := c.sim.LeadingFrame()
	switch c.sim.PushCommand(cmd) {
	case tss.NeedsFullResync:
		// The server's own leading snapshot cannot rewind past its own
		// trailing one; this is an internal inconsistency, not a
		// client-facing error.
		log.Printf("spacelock: server PushCommand returned NeedsFullResync for frame %d, this should be unreachable", cmd.Frame)
		return
	case tss.Rejected:
		// Per-frame log capacity hit: the command was never applied, so
		// it must not be broadcast. The sender's optimistic copy drifts
		// until the next hash check forces a resync, which is the
		// intended cost of flooding a frame.
		metrics.RecordCommandRejected("over_capacity")
		return
	}

	if cmd.Frame < lead {
		metrics.RecordRollback(int64(lead - cmd.Frame))
	}

	c.conns.Broadcast(wire.EncodeCommand(cmd))
}

// Join admits a new player: assigns a monotone entity id, spawns a ship
// via an authoritative add_entity command at the next frame, and sends
// the joiner the current leading snapshot so it can initialize its
// simulation without any rewind. Exported for tests and for a caller
// that wants to force a join outside the normal accept-loop
// notification path; Run's own tick drains connections via
// transport.Joins and calls joinLocked directly instead, since it
// already holds c.mu.
func (c *Controller) Join(peer session.PlayerID, spawnX, spawnY float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinLocked(peer, spawnX, spawnY)
}

// spawnPoint deterministically spreads joining players' spawn
// positions across a grid so simultaneous joins never stack ships on
// the same point.
func spawnPoint(peer session.PlayerID) (float64, float64) {
	const cell = 150.0
	const cols = 8
	i := int64(peer)
	return float64(i%cols) * cell, float64(i/cols) * cell
}

func (c *Controller) joinLocked(peer session.PlayerID, spawnX, spawnY float64) error {
	id := c.nextEntityID
	c.nextEntityID++

	ship := spaceship.NewShip(id, peer, spawnX, spawnY)
	frame := c.sim.LeadingFrame() + 1
	if res := c.sim.AddEntity(ship, frame, true); res != tss.OK {
		return errors.Errorf("spacelock: failed to add ship for player %d: %v", peer, res)
	}
	c.playerShips[peer] = id

	// Full state first: the joiner's state install discards its command
	// log, so the ADD_ENTITY for its own ship has to arrive after the
	// install to survive into its replay.
	c.sendFullState(peer)
	c.conns.Broadcast(wire.EncodeAddEntity(frame, spaceship.ShipKind, serializeEntity(ship)))
	return nil
}

func (c *Controller) sendFullState(peer session.PlayerID) {
	conn, ok := c.conns.Conn(peer)
	if !ok {
		return
	}
	payload := serializeSnapshot(c.sim.Leading())
	_ = conn.SendReliable(wire.EncodeGameStateResponse(payload))
	metrics.FullResyncsTotal.Inc()

	if c.store != nil {
		_ = c.store.Put(int64(c.sim.Leading().Frame()), payload)
	}
}

// scavengeMissiles turns exploded missiles into authoritative
// remove_entity commands for the next frame, the only path by which a
// missile leaves the leading snapshot.
func (c *Controller) scavengeMissiles() {
	frame := c.sim.LeadingFrame() + 1
	for _, id := range spaceship.ScavengeExpired(c.sim.Leading()) {
		if res := c.sim.RemoveEntity(id, frame, true); res == tss.OK {
			c.conns.Broadcast(wire.EncodeRemoveEntity(frame, id))
		}
	}
}

// scavengeDestroyedShips turns ships missile hits reduced to zero HP
// into authoritative remove_entity commands, the same scavenge pattern
// as scavengeMissiles applied to the other entity kind that can die.
func (c *Controller) scavengeDestroyedShips() {
	frame := c.sim.LeadingFrame() + 1
	for _, id := range spaceship.ScavengeDestroyedShips(c.sim.Leading()) {
		if res := c.sim.RemoveEntity(id, frame, true); res == tss.OK {
			c.conns.Broadcast(wire.EncodeRemoveEntity(frame, id))
		}
		for peer, shipID := range c.playerShips {
			if shipID == id {
				delete(c.playerShips, peer)
			}
		}
	}
}

// reapTimedOutPeers turns silent peers into a player-leave
// remove_entity command at the next frame.
func (c *Controller) reapTimedOutPeers() {
	frame := c.sim.LeadingFrame() + 1
	for _, id := range c.roster.Expired(c.sess.PeerDeadline) {
		c.roster.Leave(id)
		metrics.PeerTimeoutsTotal.Inc()

		shipID, ok := c.playerShips[id]
		if !ok {
			continue
		}
		delete(c.playerShips, id)
		if res := c.sim.RemoveEntity(shipID, frame, true); res == tss.OK {
			c.conns.Broadcast(wire.EncodeRemoveEntity(frame, shipID))
		}
	}
}

// Stats is a point-in-time snapshot of controller state safe to expose
// over the admin HTTP surface: no entity data, just the counters an
// operator needs to see the simulation is alive and roughly in sync.
type Stats struct {
	LeadingFrame  sim.Frame
	TrailingFrame sim.Frame
	PeerCount     int
	EntityCount   int
}

// Stats reports the controller's current counters for the admin
// surface's /debug/snapshot endpoint.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		LeadingFrame:  c.sim.LeadingFrame(),
		TrailingFrame: c.sim.TrailingFrame(),
		PeerCount:     c.roster.Len(),
		EntityCount:   c.sim.Leading().Count(),
	}
}

// CommandLogStats is the admin surface's view of the command log: how
// many frames are tracked and how many commands each holds.
type CommandLogStats struct {
	Frames int
	Counts map[sim.Frame]int
}

// CommandLog reports the live command log's per-frame occupancy for the
// admin surface's /debug/commandlog endpoint.
func (c *Controller) CommandLog() CommandLogStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := c.sim.Log().FrameCounts()
	return CommandLogStats{Frames: len(counts), Counts: counts}
}

func (c *Controller) broadcastHashCheck() {
	hc := wire.HashCheck{TrailingFrame: c.sim.TrailingFrame(), Hash: c.sim.SnapshotHash()}
	c.conns.BroadcastUnreliable(wire.EncodeHashCheck(hc))
	metrics.HashChecksTotal.Inc()
}

// Package client implements the client-side controller: a local
// simulation kept in step with the server via a variable timestep plus
// a small time-sync correction, optimistic local command insertion with
// upgrade-on-echo, and desync recovery driven by periodic hash checks.
package client

import (
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"spacelock/internal/config"
	"spacelock/internal/netcode/metrics"
	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/session"
	"spacelock/internal/netcode/sim"
	"spacelock/internal/netcode/tss"
	"spacelock/internal/netcode/wire"
	"spacelock/internal/spaceship"
)

// ConnState is the client's connection lifecycle.
type ConnState int

const (
	Unconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// transport is the subset of *session.Client the controller depends on,
// kept as an interface so it can be exercised against a fake server
// connection without a live QUIC dial, like internal/netcode/server's
// own transport dependency.
type transport interface {
	Send(payload []byte) error
	SendUnreliable(payload []byte) error
	Drain() []session.Inbound
	Close() error
}

// maxCorrectionFramesPerTick bounds the time-sync correction term so
// catching up to the server never advances more than one extra frame in
// a single tick. Anything larger shows up as visible jitter.
const maxCorrectionFramesPerTick = 1

// Controller owns the client's local TSS and its connection to the
// server. A caller's input-capture collaborator drives local commands in
// through SubmitCommand; Update must be called once per host tick.
type Controller struct {
	mu sync.Mutex

	sim       *tss.Container
	conns     transport
	playerID  int32
	tickRate  int
	syncEvery time.Duration

	state ConnState

	accumulator  time.Duration
	tickInterval time.Duration

	lastSyncSent    time.Time
	targetFrame     sim.Frame
	haveTargetFrame bool
}

// New constructs a client controller bound to an already-connected
// transport. The local simulation starts empty; the first
// GAME_STATE_RESPONSE (requested immediately after construction by the
// caller) replaces it with the server's authoritative state.
func New(conns transport, playerID int32, cfg config.SimConfig, clientCfg config.ClientConfig) *Controller {
	seed := cfg.RNGSeed
	if seed == 0 {
		seed = 1
	}
	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = 30
	}
	return &Controller{
		sim:          tss.New(0, seed, cfg.Delays, spaceship.Factories(), spaceship.Handler{}),
		conns:        conns,
		playerID:     playerID,
		tickRate:     tickRate,
		syncEvery:    clientCfg.SyncInterval,
		state:        Connecting,
		tickInterval: time.Second / time.Duration(tickRate),
	}
}

// State returns the controller's current connection state.
func (c *Controller) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LeadingFrame returns the local leading frame, mostly for tests and
// debug display.
func (c *Controller) LeadingFrame() sim.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sim.LeadingFrame()
}

// Leading exposes the leading snapshot for read-only rendering use.
func (c *Controller) Leading() *sim.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sim.Leading()
}

// SnapshotHash returns the trailing snapshot's fingerprint, the same
// value compared against an incoming HASH_CHECK, exposed for
// diagnostic display.
func (c *Controller) SnapshotHash() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sim.SnapshotHash()
}

// RequestJoin sends the join-time full-state request. Actual roster
// admission happens out of band (the transport's connect handshake);
// this just primes the simulation with the server's current state once
// it arrives.
func (c *Controller) RequestJoin() error {
	return c.conns.Send(wire.EncodeGameStateRequest())
}

// SubmitCommand is the input-capture entry point: a local command is
// inserted into the local simulation at the current leading frame,
// marked non-authoritative, and sent to the server. The server will
// later reflect an authoritative version back, upgrading the log entry
// in place (handled in handleCommand).
func (c *Controller) SubmitCommand(kind int32, payload []byte) error {
	c.mu.Lock()
	cmd := sim.Command{
		PlayerID: c.playerID,
		Frame:    c.sim.LeadingFrame(),
		Kind:     kind,
		Payload:  payload,
	}
	c.sim.PushCommand(cmd) // local frame == leading frame: never triggers rollback.
	c.mu.Unlock()

	return c.conns.Send(wire.EncodeCommand(cmd))
}

// Update advances the local simulation by elapsed wall-clock time and
// services any messages received since the last call. It must be called
// once per host tick.
func (c *Controller) Update(elapsed time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accumulator += elapsed
	framesToRun := 0
	for c.accumulator >= c.tickInterval {
		c.accumulator -= c.tickInterval
		framesToRun++
	}
	framesToRun += c.correctionTerm()

	if framesToRun > 0 {
		if err := c.sim.RunToFrame(c.sim.LeadingFrame() + sim.Frame(framesToRun)); err != nil {
			return errors.Wrap(err, "client: advancing local simulation")
		}
	}

	for _, msg := range c.conns.Drain() {
		c.handleInbound(msg.Payload)
	}

	if c.state == Connected && time.Since(c.lastSyncSent) >= c.syncEvery {
		if err := c.conns.Send(wire.EncodeSyncRequest(c.sim.LeadingFrame())); err != nil {
			return errors.Wrap(err, "client: sending sync probe")
		}
		c.lastSyncSent = time.Now()
	}

	return nil
}

// correctionTerm returns the extra (or fewer) frames to step this tick
// to converge toward targetFrame, bounded to
// ±maxCorrectionFramesPerTick.
func (c *Controller) correctionTerm() int {
	if !c.haveTargetFrame {
		return 0
	}
	diff := int64(c.targetFrame - c.sim.LeadingFrame())
	if diff > maxCorrectionFramesPerTick {
		return maxCorrectionFramesPerTick
	}
	if diff < -maxCorrectionFramesPerTick {
		return -maxCorrectionFramesPerTick
	}
	return int(diff)
}

func (c *Controller) handleInbound(payload []byte) {
	tag, r, err := wire.PeekTag(payload)
	if err != nil {
		return // truncated/unknown tag: dropped, no session impact
	}

	switch tag {
	case wire.TagCommand:
		cmd, err := wire.DecodeCommand(r)
		if err != nil {
			return
		}
		c.handleCommand(cmd)

	case wire.TagSync:
		s, err := wire.DecodeSync(r)
		if err != nil {
			return
		}
		c.handleSync(s)

	case wire.TagHashCheck:
		hc, err := wire.DecodeHashCheck(r)
		if err != nil {
			return
		}
		c.handleHashCheck(hc)

	case wire.TagGameStateResponse:
		blob, err := wire.DecodeGameStateResponse(r)
		if err != nil {
			return
		}
		c.installFullState(blob)

	case wire.TagAddEntity:
		ae, err := wire.DecodeAddEntity(r)
		if err != nil {
			return
		}
		cmd := sim.NewAddEntityCommandFromBytes(0, ae.Frame, true, ae.Kind, ae.SerializedEntity)
		c.pushAuthoritative(cmd)

	case wire.TagRemoveEntity:
		re, err := wire.DecodeRemoveEntity(r)
		if err != nil {
			return
		}
		cmd := sim.NewRemoveEntityCommand(0, re.Frame, true, re.ID)
		c.pushAuthoritative(cmd)
	}
}

// handleCommand pushes a server-echoed authoritative command into the
// local simulation. Because the log's dedup rule upgrades a matching
// non-authoritative entry in place, this is the same call whether cmd
// was newly accepted-and-broadcast or is the literal bounce-back of a
// command the server rejected as too old: if the client's own trailing
// frame has itself already passed cmd.Frame, PushCommand reports TooOld
// and the client escalates to a full resync rather than trying to roll
// back past the deepest snapshot it retains.
func (c *Controller) handleCommand(cmd sim.Command) {
	c.pushAuthoritative(cmd)
}

func (c *Controller) pushAuthoritative(cmd sim.Command) {
	switch c.sim.PushCommand(cmd) {
	case tss.OK:
	case tss.TooOld, tss.NeedsFullResync:
		// Purge whatever local optimistic prediction shares this
		// command's key (harmless no-op if it was never inserted, or was
		// already upgraded and is about to be discarded by the resync
		// below anyway), then escalate: a command this client's own
		// trailing frame has already passed is, by definition, a
		// rollback target deeper than anything retained.
		c.sim.PurgeCommand(cmd)
		if err := c.conns.Send(wire.EncodeGameStateRequest()); err != nil {
			log.Printf("spacelock: client failed to request full resync: %v", err)
		}
	}
}

// handleSync updates the time-sync estimate: one-way latency is half
// the round trip since the echoed local frame, and the target frame to
// converge toward is the server's own current frame plus that latency.
func (c *Controller) handleSync(s wire.Sync) {
	nowLocal := c.sim.LeadingFrame()
	latency := (nowLocal - s.EchoedFrame) / 2
	if latency < 0 {
		latency = 0
	}
	c.targetFrame = s.ServerFrame + latency
	c.haveTargetFrame = true
}

// handleHashCheck compares the server's trailing-frame hash against the
// client's own once its own trailing snapshot has reached that exact
// frame. A check for a frame the client's trailing hasn't reached yet is
// skipped rather than forced: nothing in this TSS advances the trailing
// snapshot independently of the leading one, so the same frame will be
// checked again on its own once the client catches up naturally (the
// time-sync correction already keeps leading, and so trailing, within a
// few frames of the server's).
func (c *Controller) handleHashCheck(hc wire.HashCheck) {
	if c.sim.TrailingFrame() != hc.TrailingFrame {
		return
	}
	metrics.HashChecksTotal.Inc()
	if c.sim.SnapshotHash() != hc.Hash {
		metrics.HashMismatchesTotal.Inc()
		log.Printf("spacelock: hash mismatch at frame %d (local 0x%08x, server 0x%08x), requesting full state",
			hc.TrailingFrame, c.sim.SnapshotHash(), hc.Hash)
		if err := c.conns.Send(wire.EncodeGameStateRequest()); err != nil {
			log.Printf("spacelock: client failed to request resync after hash mismatch: %v", err)
		}
	}
}

// installFullState replaces the local simulation with the server's
// leading snapshot — the desync recovery path, also used for the
// initial join.
func (c *Controller) installFullState(blob []byte) {
	r := packet.NewReader(blob)
	snap, err := sim.Deserialize(r, spaceship.Factories(), spaceship.Handler{})
	if err != nil {
		log.Printf("spacelock: client failed to install full state: %v", err)
		return
	}
	c.sim.Replace(snap)
	c.state = Connected
	metrics.FullResyncsTotal.Inc()
	log.Printf("spacelock: installed full state at frame %d", snap.Frame())
}

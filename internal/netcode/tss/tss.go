// Package tss implements the Trailing-State Synchronization container:
// an ordered list of simulation snapshots at configured frame-lags,
// command injection with rollback-by-replay, and deterministic
// stepping. There is no inverse step — cloning a more-trailing snapshot
// and replaying the command log forward is the only rewind mechanism in
// this package.
package tss

import (
	"github.com/pkg/errors"

	"spacelock/internal/netcode/cmdlog"
	"spacelock/internal/netcode/sim"
)

// ErrorKind enumerates the outcomes of PushCommand and PurgeCommand.
type ErrorKind int

const (
	// OK means the command was accepted (and any required rollback
	// completed successfully).
	OK ErrorKind = iota
	// TooOld means the command's frame is older than the trailing
	// snapshot's frame; the command carries no information this
	// container can still use.
	TooOld
	// NeedsFullResync means a rollback target lies deeper than any
	// retained snapshot; the caller must request a full state resync.
	NeedsFullResync
	// Rejected means the command log's per-frame capacity refused the
	// command; nothing was inserted and no snapshot changed.
	Rejected
)

func (k ErrorKind) String() string {
	switch k {
	case OK:
		return "ok"
	case TooOld:
		return "too_old"
	case NeedsFullResync:
		return "needs_full_resync"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Container holds N parallel snapshots at configured frame-lags, all
// descended from the same origin by replay of the same command log.
type Container struct {
	delays    []uint32 // ascending, delays[0] == 0
	snaps     []*sim.Snapshot
	log       *cmdlog.Log
	cmdCap    int // per-frame log capacity, carried across Replace
	factories map[uint8]sim.EntityFactory
	handler   sim.CommandHandler
	current   sim.Frame
}

// New creates a TSS container with snapshots bootstrapped at the given
// origin frame and rng seed. delays must be ascending with delays[0] == 0;
// New panics if that invariant is violated, since it can only be a
// programming error in the embedding controller, never a runtime
// condition.
func New(origin sim.Frame, seed int64, delays []uint32, factories map[uint8]sim.EntityFactory, handler sim.CommandHandler) *Container {
	if len(delays) == 0 || delays[0] != 0 {
		panic("tss: delays must be non-empty and start at 0")
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			panic("tss: delays must be strictly ascending")
		}
	}

	snaps := make([]*sim.Snapshot, len(delays))
	for i := range delays {
		snaps[i] = sim.NewSnapshot(origin, seed, factories, handler)
	}

	return &Container{
		delays:    delays,
		snaps:     snaps,
		log:       cmdlog.New(),
		factories: factories,
		handler:   handler,
		current:   origin,
	}
}

// LeadingFrame returns the leading snapshot's frame (== current_frame).
func (c *Container) LeadingFrame() sim.Frame { return c.current }

// TrailingFrame returns the most-trailing snapshot's frame.
func (c *Container) TrailingFrame() sim.Frame { return c.snaps[len(c.snaps)-1].Frame() }

// Leading returns the leading (index 0) snapshot.
func (c *Container) Leading() *sim.Snapshot { return c.snaps[0] }

// Trailing returns the most-trailing snapshot.
func (c *Container) Trailing() *sim.Snapshot { return c.snaps[len(c.snaps)-1] }

// Log exposes the underlying command log, primarily for controllers that
// need to prune it once all snapshots have advanced past a frame.
func (c *Container) Log() *cmdlog.Log { return c.log }

// LimitCommandsPerFrame caps the log's per-frame command count (0 means
// unbounded). The cap survives Replace.
func (c *Container) LimitCommandsPerFrame(n int) {
	c.cmdCap = n
	c.log.LimitPerFrame(n)
}

func targetFrame(leading sim.Frame, delay uint32) sim.Frame {
	t := leading - sim.Frame(delay)
	if t < 0 {
		return 0
	}
	return t
}

// Step increments the leading frame by one and advances every snapshot to
// its configured lag behind it, consuming commands in deterministic order
// at each intermediate frame.
func (c *Container) Step() error {
	c.current++
	for i := range c.snaps {
		want := targetFrame(c.current, c.delays[i])
		if err := c.advance(c.snaps[i], want); err != nil {
			return err
		}
	}
	return nil
}

// RunToFrame repeatedly steps until the leading frame reaches f. Used by
// the client controller to compensate for variable timesteps.
func (c *Container) RunToFrame(f sim.Frame) error {
	for c.current < f {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) advance(snap *sim.Snapshot, want sim.Frame) error {
	for snap.Frame() < want {
		// Stepping out of frame F applies F's commands, so a snapshot at
		// frame F is untouched by any command stamped F or later.
		next := snap.Frame() + 1
		cmds := c.log.CommandsAt(snap.Frame())
		if err := snap.Step(cmds); err != nil {
			return errors.Wrapf(err, "tss: stepping to frame %d", next)
		}
	}
	return nil
}

// PushCommand inserts a command for any future-or-retained frame,
// rolling back and replaying every snapshot whose frame has already
// passed it. Commands older than the trailing snapshot are rejected.
func (c *Container) PushCommand(cmd sim.Command) ErrorKind {
	trailing := c.TrailingFrame()
	if cmd.Frame < trailing {
		return TooOld
	}

	switch c.log.Insert(cmd) {
	case cmdlog.Duplicate:
		return OK
	case cmdlog.RejectedOverCap:
		return Rejected
	}
	return c.rewindPast(cmd.Frame)
}

// PurgeCommand removes a previously inserted command. The server
// rejected it as too late, so every snapshot that had already stepped
// past its frame must be rebuilt without it. The log entry is matched
// ignoring the authoritative flag, so an entry already upgraded to
// authoritative is removed too. A no-op if no matching command is
// present.
func (c *Container) PurgeCommand(cmd sim.Command) ErrorKind {
	if !c.log.Remove(cmd) {
		return OK
	}
	return c.rewindPast(cmd.Frame)
}

// rewindPast rebuilds every snapshot whose frame has advanced past f from
// the nearest retained more-trailing snapshot, replaying the log forward.
// Shared by PushCommand (a new/changed command at f) and PurgeCommand (a
// command at f disappearing) since both invalidate exactly the same set
// of snapshots.
func (c *Container) rewindPast(f sim.Frame) ErrorKind {
	affectedAny := false
	for _, snap := range c.snaps {
		if snap.Frame() > f {
			affectedAny = true
			break
		}
	}
	if !affectedAny {
		return OK
	}

	for i, snap := range c.snaps {
		if snap.Frame() <= f {
			continue
		}
		j := c.findRewindSource(i, f)
		if j < 0 {
			return NeedsFullResync
		}
		clone := c.snaps[j].Clone()
		want := targetFrame(c.current, c.delays[i])
		if err := c.advance(clone, want); err != nil {
			return NeedsFullResync
		}
		c.snaps[i] = clone
	}
	return OK
}

// findRewindSource returns the smallest index j > i whose snapshot frame
// is at or behind cmdFrame, i.e. the nearest retained more-trailing
// snapshot that can serve as the replay source. Returns -1 if none is
// retained deeply enough. PushCommand never gets -1: it already rejected
// anything older than the trailing-most snapshot as TooOld, and that
// snapshot qualifies for everything else. PurgeCommand gets -1 when the
// purged command is older than the trailing-most snapshot.
func (c *Container) findRewindSource(i int, cmdFrame sim.Frame) int {
	for j := i + 1; j < len(c.snaps); j++ {
		if c.snaps[j].Frame() <= cmdFrame {
			return j
		}
	}
	return -1
}

// AddEntity injects an add_entity command for the given frame.
// authoritative should be true when called from the server controller or
// while replaying a server-sourced broadcast.
func (c *Container) AddEntity(e sim.Entity, frame sim.Frame, authoritative bool) ErrorKind {
	return c.PushCommand(sim.NewAddEntityCommand(0, frame, authoritative, e))
}

// RemoveEntity injects a remove_entity command for the given frame.
func (c *Container) RemoveEntity(id sim.EntityID, frame sim.Frame, authoritative bool) ErrorKind {
	return c.PushCommand(sim.NewRemoveEntityCommand(0, frame, authoritative, id))
}

// SnapshotHash returns the trailing-most snapshot's hash, the only hash
// ever compared across peers because its frame lags far enough that the
// authoritative command stream for that frame is guaranteed settled.
func (c *Container) SnapshotHash() uint32 { return c.Trailing().Hash() }

// PruneLog discards log entries strictly before the trailing frame; safe
// once every snapshot has advanced past that frame, i.e. always, since the
// trailing snapshot is by construction the one furthest behind.
func (c *Container) PruneLog() { c.log.Prune(c.TrailingFrame()) }

// Replace discards every snapshot and rebuilds the container around a
// single authoritative snapshot — the full-resync path, fed by a
// GAME_STATE_RESPONSE. All snapshots start identical to the supplied
// one; they diverge again only as new commands arrive.
func (c *Container) Replace(snap *sim.Snapshot) {
	c.current = snap.Frame()
	c.log = cmdlog.New()
	c.log.LimitPerFrame(c.cmdCap)
	snaps := make([]*sim.Snapshot, len(c.delays))
	for i := range c.delays {
		snaps[i] = snap.Clone()
	}
	c.snaps = snaps
}

package spaceship

import (
	"math"

	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/sim"
)

// MissileKind identifies a Missile entity's payload shape.
const MissileKind uint8 = 2

// Missile lifetime is counted in frames rather than wall-clock time so
// it replays identically regardless of host tick rate.
const (
	MissileSpeed      = 14.0
	MissileFuseFrames = 90
	MissileDamage     = 25
)

// Missile travels in a straight line from its spawn point and expires
// after a fixed number of frames. Its id is derived deterministically
// from the firing command (see DeriveMissileID). Missile.Step never
// removes itself — entity lifecycle only ever happens through a
// remove_entity command — it only flips Exploded, which the owning
// controller checks after stepping to decide whether to emit that
// command (see ScavengeExpired).
type Missile struct {
	id          sim.EntityID
	OwnerShipID sim.EntityID
	X, Y        float64
	VX, VY      float64
	FramesLeft  int32
	Exploded    bool
}

// DeriveMissileID combines the firing ship's entity id with its own
// monotone fire-sequence counter into a missile id that both the server
// and every client compute identically while replaying the same Fire
// command — the reason this id needs no server round-trip the way Ship
// ids do. The upper 48 bits carry the owner id and the lower 16 carry
// the sequence number, which bounds a single ship to 65536 live-or-past
// missile ids before they cycle; a ship firing that many times without
// ever getting its entities pruned is not a scenario this core needs to
// defend against.
func DeriveMissileID(owner sim.EntityID, fireSeq uint32) sim.EntityID {
	return sim.EntityID(uint64(owner)<<16 | uint64(uint16(fireSeq)))
}

func NewMissile(id, owner sim.EntityID, x, y, heading float64) *Missile {
	return &Missile{
		id:          id,
		OwnerShipID: owner,
		X:           x,
		Y:           y,
		VX:          math.Cos(heading) * MissileSpeed,
		VY:          math.Sin(heading) * MissileSpeed,
		FramesLeft:  MissileFuseFrames,
	}
}

func (m *Missile) ID() sim.EntityID { return m.id }
func (m *Missile) Kind() uint8      { return MissileKind }

// Step moves the missile along its fixed heading, checks for a
// proximity-fuse hit against the nearest non-owner ship via the
// broad-phase grid, and counts down its fuse. Once it hits, reaches the
// end of its fuse, or leaves the world bounds, it marks itself Exploded
// rather than removing itself; the remove_entity command comes later
// from the scavenge pass.
func (m *Missile) Step(view *sim.View) {
	if m.Exploded {
		return
	}
	m.X += m.VX
	m.Y += m.VY

	if target := newGrid(view).queryNearest(m.X, m.Y, m.OwnerShipID); target != nil {
		target.HP -= MissileDamage
		m.Exploded = true
		return
	}

	m.FramesLeft--
	if m.FramesLeft <= 0 {
		m.Exploded = true
		return
	}
	if m.X < 0 || m.X > WorldWidth || m.Y < 0 || m.Y > WorldHeight {
		m.Exploded = true
	}
}

func (m *Missile) Serialize(w *packet.Writer) {
	w.WriteU64(uint64(m.id))
	w.WriteU64(uint64(m.OwnerShipID))
	w.WriteF64(m.X)
	w.WriteF64(m.Y)
	w.WriteF64(m.VX)
	w.WriteF64(m.VY)
	w.WriteI32(m.FramesLeft)
	w.WriteBool(m.Exploded)
}

// DecodeMissile is the EntityFactory for MissileKind.
func DecodeMissile(r *packet.Reader) (sim.Entity, error) {
	id, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	owner, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	m := &Missile{id: sim.EntityID(id), OwnerShipID: sim.EntityID(owner)}
	if m.X, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if m.Y, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if m.VX, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if m.VY, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if m.FramesLeft, err = r.ReadI32(); err != nil {
		return nil, err
	}
	if m.Exploded, err = r.ReadBool(); err != nil {
		return nil, err
	}
	return m, nil
}

// ScavengeDestroyedShips returns the ids of every ship whose HP has been
// driven to zero or below by missile hits. Mirrors ScavengeExpired: a
// ship never removes itself from Step, the controller turns the result
// into an authoritative remove_entity command for the next frame.
func ScavengeDestroyedShips(snap *sim.Snapshot) []sim.EntityID {
	var out []sim.EntityID
	snap.Each(func(e sim.Entity) {
		if s, ok := e.(*Ship); ok && s.HP <= 0 {
			out = append(out, s.ID())
		}
	})
	return out
}

// ScavengeExpired returns the ids of every exploded missile in snap.
// The server controller calls this once per tick after stepping and
// emits an authoritative remove_entity command for each id at the next
// frame — the only path by which a missile actually leaves the
// snapshot.
func ScavengeExpired(snap *sim.Snapshot) []sim.EntityID {
	var out []sim.EntityID
	snap.Each(func(e sim.Entity) {
		if m, ok := e.(*Missile); ok && m.Exploded {
			out = append(out, m.ID())
		}
	})
	return out
}

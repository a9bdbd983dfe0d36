// Package spaceship is the game domain built on the simulation core:
// ships and missiles as sim.Entity implementations, and the command
// kinds (thrust, turn, fire, dock) a CommandHandler applies to them.
// Everything here steps deterministically per frame; nothing reads the
// wall clock.
package spaceship

import (
	"math"

	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/sim"
)

// ShipKind identifies a Ship entity's payload shape to the snapshot's
// entity-factory table.
const ShipKind uint8 = 1

// Physical tuning constants.
const (
	ThrustAccel  = 0.12
	Drag         = 0.99
	MaxSpeed     = 6.0
	TurnRate     = 0.05 // radians per frame while turning
	WorldWidth   = 4000.0
	WorldHeight  = 4000.0
	BoundsMargin = 40.0
)

// Ship is a player-controlled vessel. OwnerPlayerID ties it back to the
// session.PlayerID that controls it; it is not itself the entity id
// (entity ids are server-assigned, independent of player identity).
type Ship struct {
	id            sim.EntityID
	OwnerPlayerID int32
	X, Y          float64
	VX, VY        float64
	Heading       float64
	Thrusting     bool
	TurnLeft      bool
	TurnRight     bool
	Docked        bool
	HP            int32
	FireSeq       uint32
}

// NewShip constructs a ship at a given spawn point, owned by player.
func NewShip(id sim.EntityID, owner int32, x, y float64) *Ship {
	return &Ship{id: id, OwnerPlayerID: owner, X: x, Y: y, HP: 100}
}

func (s *Ship) ID() sim.EntityID { return s.id }
func (s *Ship) Kind() uint8      { return ShipKind }

// Step advances the ship one frame: apply turning, apply thrust along
// the current heading, clamp speed, integrate velocity into position,
// apply drag, and clamp to world bounds.
func (s *Ship) Step(view *sim.View) {
	if s.Docked {
		return
	}

	if s.TurnLeft {
		s.Heading -= TurnRate
	}
	if s.TurnRight {
		s.Heading += TurnRate
	}

	if s.Thrusting {
		s.VX += math.Cos(s.Heading) * ThrustAccel
		s.VY += math.Sin(s.Heading) * ThrustAccel
	}

	speed := math.Hypot(s.VX, s.VY)
	if speed > MaxSpeed {
		s.VX = (s.VX / speed) * MaxSpeed
		s.VY = (s.VY / speed) * MaxSpeed
	}

	s.X += s.VX
	s.Y += s.VY

	s.VX *= Drag
	s.VY *= Drag

	s.X = math.Max(BoundsMargin, math.Min(WorldWidth-BoundsMargin, s.X))
	s.Y = math.Max(BoundsMargin, math.Min(WorldHeight-BoundsMargin, s.Y))
}

// Serialize writes every field Step or a command handler can mutate, in
// a fixed order its factory must mirror exactly for Clone/hash/resync
// to agree.
func (s *Ship) Serialize(w *packet.Writer) {
	w.WriteU64(uint64(s.id))
	w.WriteI32(s.OwnerPlayerID)
	w.WriteF64(s.X)
	w.WriteF64(s.Y)
	w.WriteF64(s.VX)
	w.WriteF64(s.VY)
	w.WriteF64(s.Heading)
	w.WriteBool(s.Thrusting)
	w.WriteBool(s.TurnLeft)
	w.WriteBool(s.TurnRight)
	w.WriteBool(s.Docked)
	w.WriteI32(s.HP)
	w.WriteU32(s.FireSeq)
}

// DecodeShip is the EntityFactory for ShipKind.
func DecodeShip(r *packet.Reader) (sim.Entity, error) {
	id, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	owner, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	s := &Ship{id: sim.EntityID(id), OwnerPlayerID: owner}
	if s.X, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if s.Y, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if s.VX, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if s.VY, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if s.Heading, err = r.ReadF64(); err != nil {
		return nil, err
	}
	if s.Thrusting, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if s.TurnLeft, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if s.TurnRight, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if s.Docked, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if s.HP, err = r.ReadI32(); err != nil {
		return nil, err
	}
	if s.FireSeq, err = r.ReadU32(); err != nil {
		return nil, err
	}
	return s, nil
}

package spaceship

import (
	"github.com/pkg/errors"

	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/sim"
)

// Command kinds. Must stay non-negative: sim.KindAddEntity/KindRemoveEntity
// reserve the negative range for the core's own entity lifecycle commands.
const (
	KindThrust int32 = 0
	KindTurn   int32 = 1
	KindFire   int32 = 2
	KindDock   int32 = 3
)

// NewThrustCommand sets a ship's thrust intent on or off starting next frame.
func NewThrustCommand(player int32, frame sim.Frame, ship sim.EntityID, on bool) sim.Command {
	w := packet.NewWriter()
	w.WriteU64(uint64(ship))
	w.WriteBool(on)
	return sim.Command{PlayerID: player, Frame: frame, Kind: KindThrust, Payload: w.Bytes()}
}

// TurnDirection is the payload of a turn command: -1 left, 0 neither, 1 right.
type TurnDirection int8

const (
	TurnNone  TurnDirection = 0
	TurnLeft  TurnDirection = -1
	TurnRight TurnDirection = 1
)

// NewTurnCommand sets a ship's turning intent.
func NewTurnCommand(player int32, frame sim.Frame, ship sim.EntityID, dir TurnDirection) sim.Command {
	w := packet.NewWriter()
	w.WriteU64(uint64(ship))
	w.WriteU8(uint8(int8(dir)))
	return sim.Command{PlayerID: player, Frame: frame, Kind: KindTurn, Payload: w.Bytes()}
}

// NewFireCommand requests a ship fire a missile. It carries no missile
// id: the id is derived deterministically inside Apply from the ship's
// own fire-sequence counter (see DeriveMissileID), so the command stays
// a pure function of (ship state, payload) with nothing the sender has
// to allocate.
func NewFireCommand(player int32, frame sim.Frame, ship sim.EntityID) sim.Command {
	w := packet.NewWriter()
	w.WriteU64(uint64(ship))
	return sim.Command{PlayerID: player, Frame: frame, Kind: KindFire, Payload: w.Bytes()}
}

// NewDockCommand sets a ship's docked state (docked ships neither move
// nor fire).
func NewDockCommand(player int32, frame sim.Frame, ship sim.EntityID, docked bool) sim.Command {
	w := packet.NewWriter()
	w.WriteU64(uint64(ship))
	w.WriteBool(docked)
	return sim.Command{PlayerID: player, Frame: frame, Kind: KindDock, Payload: w.Bytes()}
}

// Handler is the sim.CommandHandler for the spaceship domain.
type Handler struct{}

func lookupShip(snap *sim.Snapshot, id sim.EntityID) (*Ship, error) {
	e, ok := snap.Lookup(id)
	if !ok {
		// A command for an already-removed ship (e.g. the player left
		// between sending and the server applying it) is not malformed,
		// just stale; dropping it silently keeps replay deterministic
		// without surfacing a spurious error on a legitimate race.
		return nil, nil
	}
	ship, ok := e.(*Ship)
	if !ok {
		return nil, errors.Errorf("spaceship: entity %d is not a ship", id)
	}
	return ship, nil
}

// Apply dispatches a command to its ship. It is a pure function of the
// command payload and the snapshot, as required by the core's
// CommandHandler contract.
func (Handler) Apply(cmd sim.Command, snap *sim.Snapshot) error {
	switch cmd.Kind {
	case KindThrust:
		return applyThrust(cmd, snap)
	case KindTurn:
		return applyTurn(cmd, snap)
	case KindFire:
		return applyFire(cmd, snap)
	case KindDock:
		return applyDock(cmd, snap)
	default:
		return errors.Errorf("spaceship: unknown command kind %d", cmd.Kind)
	}
}

func applyThrust(cmd sim.Command, snap *sim.Snapshot) error {
	r := packet.NewReader(cmd.Payload)
	id, err := r.ReadU64()
	if err != nil {
		return errors.Wrap(err, "spaceship: decode thrust ship id")
	}
	on, err := r.ReadBool()
	if err != nil {
		return errors.Wrap(err, "spaceship: decode thrust flag")
	}
	ship, err := lookupShip(snap, sim.EntityID(id))
	if err != nil || ship == nil {
		return err
	}
	ship.Thrusting = on
	return nil
}

func applyTurn(cmd sim.Command, snap *sim.Snapshot) error {
	r := packet.NewReader(cmd.Payload)
	id, err := r.ReadU64()
	if err != nil {
		return errors.Wrap(err, "spaceship: decode turn ship id")
	}
	raw, err := r.ReadU8()
	if err != nil {
		return errors.Wrap(err, "spaceship: decode turn direction")
	}
	ship, err := lookupShip(snap, sim.EntityID(id))
	if err != nil || ship == nil {
		return err
	}
	dir := TurnDirection(int8(raw))
	ship.TurnLeft = dir == TurnLeft
	ship.TurnRight = dir == TurnRight
	return nil
}

func applyFire(cmd sim.Command, snap *sim.Snapshot) error {
	r := packet.NewReader(cmd.Payload)
	id, err := r.ReadU64()
	if err != nil {
		return errors.Wrap(err, "spaceship: decode fire ship id")
	}
	ship, err := lookupShip(snap, sim.EntityID(id))
	if err != nil || ship == nil {
		return err
	}
	if ship.Docked {
		return nil
	}
	ship.FireSeq++
	missileID := DeriveMissileID(ship.id, ship.FireSeq)
	missile := NewMissile(missileID, ship.id, ship.X, ship.Y, ship.Heading)
	snap.AddEntity(missile)
	return nil
}

func applyDock(cmd sim.Command, snap *sim.Snapshot) error {
	r := packet.NewReader(cmd.Payload)
	id, err := r.ReadU64()
	if err != nil {
		return errors.Wrap(err, "spaceship: decode dock ship id")
	}
	docked, err := r.ReadBool()
	if err != nil {
		return errors.Wrap(err, "spaceship: decode dock flag")
	}
	ship, err := lookupShip(snap, sim.EntityID(id))
	if err != nil || ship == nil {
		return err
	}
	ship.Docked = docked
	if docked {
		ship.Thrusting = false
		ship.TurnLeft = false
		ship.TurnRight = false
	}
	return nil
}

// Factories returns the EntityFactory table for every entity kind this
// package defines, ready to hand to sim.NewSnapshot/sim.Deserialize.
func Factories() map[uint8]sim.EntityFactory {
	return map[uint8]sim.EntityFactory{
		ShipKind:    DecodeShip,
		MissileKind: DecodeMissile,
	}
}

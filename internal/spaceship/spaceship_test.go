package spaceship

import (
	"math"
	"testing"

	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/sim"
)

func newTestSnapshot() *sim.Snapshot {
	return sim.NewSnapshot(0, 1, Factories(), Handler{})
}

func TestShipThrustAccelerates(t *testing.T) {
	snap := newTestSnapshot()
	ship := NewShip(1, 1, 100, 100)
	snap.AddEntity(ship)

	cmd := NewThrustCommand(1, 1, 1, true)
	if err := snap.Step([]sim.Command{cmd}); err != nil {
		t.Fatalf("step: %v", err)
	}

	e, _ := snap.Lookup(1)
	got := e.(*Ship)
	if got.VX == 0 && got.VY == 0 {
		t.Fatal("expected thrust to accelerate the ship")
	}
}

func TestShipTurnChangesHeadingOverTime(t *testing.T) {
	snap := newTestSnapshot()
	ship := NewShip(1, 1, 100, 100)
	snap.AddEntity(ship)

	cmd := NewTurnCommand(1, 1, 1, TurnRight)
	if err := snap.Step([]sim.Command{cmd}); err != nil {
		t.Fatalf("step: %v", err)
	}
	e, _ := snap.Lookup(1)
	if e.(*Ship).Heading <= 0 {
		t.Fatalf("expected heading to increase turning right, got %f", e.(*Ship).Heading)
	}
}

func TestFireSpawnsDeterministicMissileID(t *testing.T) {
	snap := newTestSnapshot()
	ship := NewShip(1, 1, 100, 100)
	snap.AddEntity(ship)

	cmd := NewFireCommand(1, 1, 1)
	if err := snap.Step([]sim.Command{cmd}); err != nil {
		t.Fatalf("step: %v", err)
	}

	wantID := DeriveMissileID(1, 1)
	if _, ok := snap.Lookup(wantID); !ok {
		t.Fatalf("expected missile %d to exist after fire", wantID)
	}
	if snap.Count() != 2 {
		t.Fatalf("expected ship + missile, got %d entities", snap.Count())
	}
}

func TestTwoReplaysOfSameFireProduceIdenticalMissileID(t *testing.T) {
	snapA := newTestSnapshot()
	snapA.AddEntity(NewShip(1, 1, 100, 100))
	snapB := newTestSnapshot()
	snapB.AddEntity(NewShip(1, 1, 100, 100))

	cmd := NewFireCommand(1, 1, 1)
	snapA.Step([]sim.Command{cmd})
	snapB.Step([]sim.Command{cmd})

	if snapA.Hash() != snapB.Hash() {
		t.Fatal("expected identical hash from identically replaying the same fire command")
	}
}

func TestMissileExpiresAfterFuseAndIsScavenged(t *testing.T) {
	snap := newTestSnapshot()
	snap.AddEntity(NewShip(1, 1, 100, 100))
	snap.Step([]sim.Command{NewFireCommand(1, 1, 1)})

	missileID := DeriveMissileID(1, 1)
	for i := 0; i < MissileFuseFrames; i++ {
		if err := snap.Step(nil); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	e, ok := snap.Lookup(missileID)
	if !ok {
		t.Fatal("expected missile to still be present (pending removal) once exploded")
	}
	if !e.(*Missile).Exploded {
		t.Fatal("expected missile to be marked exploded after its fuse elapsed")
	}

	expired := ScavengeExpired(snap)
	if len(expired) != 1 || expired[0] != missileID {
		t.Fatalf("expected scavenge to report the expired missile, got %v", expired)
	}

	rm := sim.NewRemoveEntityCommand(0, snap.Frame()+1, true, missileID)
	if err := snap.Step([]sim.Command{rm}); err != nil {
		t.Fatalf("step with remove: %v", err)
	}
	if _, ok := snap.Lookup(missileID); ok {
		t.Fatal("expected missile gone after remove_entity command")
	}
}

func TestMissileHitsNearbyShipAndDamagesIt(t *testing.T) {
	snap := newTestSnapshot()
	shooter := NewShip(1, 1, 0, 100)
	target := NewShip(2, 2, 14, 100) // within one step of the missile's spawn point
	snap.AddEntity(shooter)
	snap.AddEntity(target)

	if err := snap.Step([]sim.Command{NewFireCommand(1, 1, 1)}); err != nil {
		t.Fatalf("fire step: %v", err)
	}

	e, _ := snap.Lookup(2)
	hit := e.(*Ship)
	if hit.HP != 100-MissileDamage {
		t.Fatalf("expected target to take %d damage, HP=%d", MissileDamage, hit.HP)
	}

	missileID := DeriveMissileID(1, 1)
	me, ok := snap.Lookup(missileID)
	if !ok || !me.(*Missile).Exploded {
		t.Fatal("expected missile to explode on hit")
	}
}

func TestMissileIgnoresItsOwnShipAsATarget(t *testing.T) {
	snap := newTestSnapshot()
	shooter := NewShip(1, 1, 100, 100)
	snap.AddEntity(shooter)

	if err := snap.Step([]sim.Command{NewFireCommand(1, 1, 1)}); err != nil {
		t.Fatalf("fire step: %v", err)
	}

	e, _ := snap.Lookup(1)
	if e.(*Ship).HP != 100 {
		t.Fatal("expected the firing ship to never be hit by its own missile")
	}
}

func TestScavengeDestroyedShipsReportsZeroHP(t *testing.T) {
	snap := newTestSnapshot()
	snap.AddEntity(NewShip(1, 1, 100, 100))
	e, _ := snap.Lookup(1)
	e.(*Ship).HP = 0

	dead := ScavengeDestroyedShips(snap)
	if len(dead) != 1 || dead[0] != 1 {
		t.Fatalf("expected ship 1 reported destroyed, got %v", dead)
	}
}

func TestDockStopsThrustAndTurn(t *testing.T) {
	snap := newTestSnapshot()
	snap.AddEntity(NewShip(1, 1, 100, 100))
	snap.Step([]sim.Command{
		NewThrustCommand(1, 1, 1, true),
		NewTurnCommand(1, 1, 1, TurnRight),
	})
	snap.Step([]sim.Command{NewDockCommand(1, 2, 1, true)})

	e, _ := snap.Lookup(1)
	ship := e.(*Ship)
	if ship.Thrusting || ship.TurnLeft || ship.TurnRight {
		t.Fatal("expected docking to clear thrust/turn intent")
	}
	if !ship.Docked {
		t.Fatal("expected ship to be docked")
	}

	xBefore, yBefore := ship.X, ship.Y
	snap.Step([]sim.Command{NewThrustCommand(1, 3, 1, true)})
	e2, _ := snap.Lookup(1)
	ship2 := e2.(*Ship)
	if ship2.X != xBefore || ship2.Y != yBefore {
		t.Fatal("expected a docked ship not to move even with thrust commanded")
	}
}

func TestShipSerializeRoundTrips(t *testing.T) {
	ship := NewShip(7, 3, 50, 60)
	ship.Heading = math.Pi / 4
	ship.Thrusting = true
	ship.FireSeq = 5

	w := packet.NewWriter()
	ship.Serialize(w)
	decoded, err := DecodeShip(packet.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(*Ship)
	if got.ID() != 7 || got.OwnerPlayerID != 3 || got.FireSeq != 5 || !got.Thrusting {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

package sim

import "spacelock/internal/netcode/packet"

// Entity is the user contract for anything stepped inside a
// Snapshot. Step must be a pure function of the entity and the View
// passed to it: no wall-clock time, no thread identity, no state outside
// the snapshot. Serialize must round-trip exactly through the paired
// EntityFactory registered for Kind().
type Entity interface {
	ID() EntityID
	Kind() uint8
	Step(view *View)
	Serialize(w *packet.Writer)
}

// EntityFactory decodes an Entity of one fixed Kind from a reader scoped
// to exactly that entity's serialized payload (the entity decodes its own
// id from that payload, the same way Serialize wrote it).
type EntityFactory func(r *packet.Reader) (Entity, error)

// CommandHandler is the user contract for applying a domain command to
// a snapshot. Apply must be a pure function of the command's payload
// and the snapshot: no wall-clock time, no external state.
type CommandHandler interface {
	Apply(cmd Command, snap *Snapshot) error
}

// View is the restricted, read-mostly handle to a Snapshot that an
// Entity's Step receives. It intentionally exposes no way to add or
// remove entities — entity lifecycle is a property of command
// application (see Snapshot.Step), not of per-entity stepping, so that
// Step stays a pure function of (entity, view).
type View struct {
	snap *Snapshot
}

// Frame returns the frame the snapshot is stepping into.
func (v *View) Frame() Frame { return v.snap.frame }

// Lookup returns the entity with the given id, if present.
func (v *View) Lookup(id EntityID) (Entity, bool) {
	e, ok := v.snap.entities[id]
	return e, ok
}

// Each visits every entity in deterministic ascending-id order.
func (v *View) Each(fn func(Entity)) {
	for _, id := range v.snap.orderedIDs() {
		fn(v.snap.entities[id])
	}
}

// Rand returns the snapshot's deterministic per-frame random source.
// Because entities are always visited in ascending-id order, two
// snapshots built from the same command sequence draw from this source
// in the same sequence regardless of wire delivery order.
func (v *View) Rand() RandSource { return v.snap.rng }

// RandSource is the minimal deterministic randomness surface exposed to
// entity Step functions, satisfied by *rand.Rand.
type RandSource interface {
	Float64() float64
	Int63() int64
}

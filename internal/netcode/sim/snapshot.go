package sim

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"spacelock/internal/netcode/nhash"
	"spacelock/internal/netcode/packet"
)

// Snapshot is a pure, deterministic, steppable world at a specific frame.
// It supports clone, serialize, hash, and apply-command.
type Snapshot struct {
	frame     Frame
	entities  map[EntityID]Entity
	order     []EntityID
	orderOK   bool
	rngSeed   int64
	rng       *rand.Rand
	factories map[uint8]EntityFactory
	handler   CommandHandler
}

// NewSnapshot creates an empty snapshot at the given origin frame. seed
// seeds the deterministic per-frame random source. factories and
// handler are the embedding game's user contracts; factories must
// contain an entry for every entity Kind the game will ever add.
func NewSnapshot(frame Frame, seed int64, factories map[uint8]EntityFactory, handler CommandHandler) *Snapshot {
	return &Snapshot{
		frame:     frame,
		entities:  make(map[EntityID]Entity),
		rngSeed:   seed,
		rng:       rand.New(rand.NewSource(seed)),
		factories: factories,
		handler:   handler,
		orderOK:   true,
	}
}

// Frame returns the snapshot's current frame.
func (s *Snapshot) Frame() Frame { return s.frame }

// Lookup returns the entity with the given id, if present.
func (s *Snapshot) Lookup(id EntityID) (Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Each visits every entity in deterministic ascending-id order.
func (s *Snapshot) Each(fn func(Entity)) {
	for _, id := range s.orderedIDs() {
		fn(s.entities[id])
	}
}

// Count returns the number of live entities.
func (s *Snapshot) Count() int { return len(s.entities) }

// AddEntity inserts or replaces an entity. Available to a CommandHandler
// applying a command that deterministically spawns something (e.g. a
// fired projectile whose id is derived from the firing command itself),
// and used internally when replaying a KindAddEntity command.
func (s *Snapshot) AddEntity(e Entity) {
	s.entities[e.ID()] = e
	s.orderOK = false
}

// RemoveEntity deletes an entity if present.
func (s *Snapshot) RemoveEntity(id EntityID) {
	delete(s.entities, id)
	s.orderOK = false
}

func (s *Snapshot) orderedIDs() []EntityID {
	if s.orderOK {
		return s.order
	}
	ids := make([]EntityID, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.order = ids
	s.orderOK = true
	return s.order
}

// Step advances the snapshot one frame: it increments the frame, applies
// cmds (in the caller-supplied deterministic order, see
// cmdlog.Log.CommandsAt), then steps every entity exactly once in
// ascending-id order. tss.Container passes the commands stamped with the
// frame being left, so a snapshot at frame F has applied every command
// for frames before F and none for F itself.
func (s *Snapshot) Step(cmds []Command) error {
	s.frame++
	for _, cmd := range cmds {
		if err := s.applyCommand(cmd); err != nil {
			return err
		}
	}

	// The next frame's seed must be a pure function of the previous
	// seed — never of how many values entities drew from rng last frame —
	// or a clone rebuilt from (frame, seed) would diverge from the
	// original on its next step.
	s.rngSeed = s.rngSeed*6364136223846793005 + 1442695040888963407
	s.rng.Seed(s.rngSeed)

	view := &View{snap: s}
	for _, id := range s.orderedIDs() {
		if e, ok := s.entities[id]; ok {
			e.Step(view)
		}
	}
	return nil
}

func (s *Snapshot) applyCommand(cmd Command) error {
	switch cmd.Kind {
	case KindAddEntity:
		return s.applyAddEntity(cmd)
	case KindRemoveEntity:
		return s.applyRemoveEntity(cmd)
	default:
		if s.handler == nil {
			return nil
		}
		return s.handler.Apply(cmd, s)
	}
}

func (s *Snapshot) applyAddEntity(cmd Command) error {
	r := packet.NewReader(cmd.Payload)
	kind, err := r.ReadU8()
	if err != nil {
		return errors.Wrap(err, "sim: decode add_entity kind")
	}
	inner, err := r.ReadPacket()
	if err != nil {
		return errors.Wrap(err, "sim: decode add_entity payload")
	}
	factory, ok := s.factories[kind]
	if !ok {
		return errors.Errorf("sim: no entity factory registered for kind %d", kind)
	}
	e, err := factory(inner)
	if err != nil {
		return errors.Wrap(err, "sim: entity factory failed")
	}
	s.AddEntity(e)
	return nil
}

func (s *Snapshot) applyRemoveEntity(cmd Command) error {
	r := packet.NewReader(cmd.Payload)
	rawID, err := r.ReadU64()
	if err != nil {
		return errors.Wrap(err, "sim: decode remove_entity id")
	}
	s.RemoveEntity(EntityID(rawID))
	return nil
}

// Clone returns a fully independent copy of the snapshot by round-tripping
// every entity through its own Serialize/factory pair. This both
// guarantees independence for rollback replay and exercises every
// entity's serialize/deserialize pair in passing (a clone that silently
// dropped state would corrupt gameplay immediately, not just the hash
// check). Clone panics only if a factory fails to decode; it does not
// compare the decoded entity with the original.
func (s *Snapshot) Clone() *Snapshot {
	clone := NewSnapshot(s.frame, s.rngSeed, s.factories, s.handler)
	for _, id := range s.orderedIDs() {
		e := s.entities[id]
		w := packet.NewWriter()
		e.Serialize(w)
		factory := s.factories[e.Kind()]
		cp, err := factory(packet.NewReader(w.Bytes()))
		if err != nil {
			// A factory that cannot decode what its own Serialize just
			// produced is a contract violation by the embedding game;
			// there is no recovery path that preserves determinism.
			panic(errors.Wrap(err, "sim: entity failed to round-trip during clone"))
		}
		clone.entities[cp.ID()] = cp
	}
	clone.order = append([]EntityID(nil), s.order...)
	clone.orderOK = true
	return clone
}

// Hash returns the snapshot's order-sensitive fingerprint. Entities
// are visited in ascending-id order so that two snapshots representing the
// same logical state hash identically regardless of the order commands
// arrived over the wire.
func (s *Snapshot) Hash() uint32 {
	h := nhash.New()
	h.WriteI64(int64(s.frame))
	h.WriteI64(s.rngSeed)
	h.WriteI32(int32(len(s.entities)))
	for _, id := range s.orderedIDs() {
		e := s.entities[id]
		h.WriteU64(uint64(id))
		h.WriteU8(e.Kind())
		w := packet.NewWriter()
		e.Serialize(w)
		h.WriteBytes(w.Bytes())
	}
	return h.Sum()
}

// Serialize writes the full snapshot — the GAME_STATE_RESPONSE payload
// shape: frame, rng seed, then every entity in ascending-id order as
// (kind, blob-of-entity-bytes).
func (s *Snapshot) Serialize(w *packet.Writer) {
	w.WriteI64(int64(s.frame))
	w.WriteI64(s.rngSeed)
	w.WriteI32(int32(len(s.entities)))
	for _, id := range s.orderedIDs() {
		e := s.entities[id]
		w.WriteU8(e.Kind())
		inner := packet.NewWriter()
		e.Serialize(inner)
		w.WritePacket(inner)
	}
}

// Deserialize reconstructs a snapshot written by Serialize. factories and
// handler are supplied fresh by the caller (the embedding game's
// contracts are not themselves serialized).
func Deserialize(r *packet.Reader, factories map[uint8]EntityFactory, handler CommandHandler) (*Snapshot, error) {
	frame, err := r.ReadI64()
	if err != nil {
		return nil, errors.Wrap(err, "sim: decode frame")
	}
	seed, err := r.ReadI64()
	if err != nil {
		return nil, errors.Wrap(err, "sim: decode rng seed")
	}
	count, err := r.ReadI32()
	if err != nil {
		return nil, errors.Wrap(err, "sim: decode entity count")
	}
	snap := NewSnapshot(Frame(frame), seed, factories, handler)
	for i := int32(0); i < count; i++ {
		kind, err := r.ReadU8()
		if err != nil {
			return nil, errors.Wrap(err, "sim: decode entity kind")
		}
		inner, err := r.ReadPacket()
		if err != nil {
			return nil, errors.Wrap(err, "sim: decode entity payload")
		}
		factory, ok := factories[kind]
		if !ok {
			return nil, errors.Errorf("sim: no entity factory registered for kind %d", kind)
		}
		e, err := factory(inner)
		if err != nil {
			return nil, errors.Wrap(err, "sim: entity factory failed")
		}
		snap.AddEntity(e)
	}
	return snap, nil
}
